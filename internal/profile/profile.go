// Package profile picks the video encode profile for a job from the
// acceleration hints present in the execution environment.
package profile

import (
	"os"
	"runtime"
	"strings"

	"github.com/samber/lo"

	"audio-sync/internal/domain"
)

// Hint is the acceleration vendor advertised by the environment.
type Hint string

const (
	NoHint     Hint = "none"
	NvidiaHint Hint = "nvidia"
	AmdHint    Hint = "amd"
	IntelHint  Hint = "intel"
)

// Environment variables that advertise a GPU vendor.
const (
	EnvNvidia = "CUDA_VISIBLE_DEVICES"
	EnvAmd    = "VCE"
	EnvIntel  = "VAAPI"
)

// DefaultVaapiDevice is the first DRM render node on Linux.
const DefaultVaapiDevice = "/dev/dri/renderD128"

// Detector reports the acceleration hint for the current environment.
type Detector interface {
	Detect() Hint
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func() Hint

// Detect calls f.
func (f DetectorFunc) Detect() Hint {
	return f()
}

// EnvDetector reads vendor hints from process environment variables.
type EnvDetector struct {
	lookupEnv func(string) (string, bool)
}

// NewEnvDetector builds a detector over the real process environment.
func NewEnvDetector() *EnvDetector {
	return &EnvDetector{lookupEnv: os.LookupEnv}
}

// NewEnvDetectorForTests builds a detector over an injected lookup.
func NewEnvDetectorForTests(lookupEnv func(string) (string, bool)) *EnvDetector {
	return &EnvDetector{lookupEnv: lookupEnv}
}

// Detect returns the first matching hint: NVIDIA, then AMD, then Intel.
// NVIDIA needs a non-empty device list; AMD and Intel only need presence.
func (d *EnvDetector) Detect() Hint {
	if v, ok := d.lookupEnv(EnvNvidia); ok && strings.TrimSpace(v) != "" {
		return NvidiaHint
	}
	if _, ok := d.lookupEnv(EnvAmd); ok {
		return AmdHint
	}
	if _, ok := d.lookupEnv(EnvIntel); ok {
		return IntelHint
	}
	return NoHint
}

// Options tunes profile construction.
type Options struct {
	Threads     int
	VaapiDevice string
}

func (o Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}

func (o Options) vaapiDevice() string {
	if d := strings.TrimSpace(o.VaapiDevice); d != "" {
		return d
	}
	return DefaultVaapiDevice
}

// Select returns the profile for hint. Unknown hints get the software profile.
func Select(hint Hint, opts Options) domain.EncodeProfile {
	threads := opts.threads()

	switch hint {
	case NvidiaHint:
		return domain.NewEncodeProfile("nvenc-lossless", "hevc_nvenc", threads, map[string]string{
			"preset": "p7",
			"tune":   "lossless",
			"rc":     "vbr_hq",
			"cq":     "0",
			"gpu":    "0",
		})
	case AmdHint:
		return domain.NewEncodeProfile("amf-quality", "hevc_amf", threads, map[string]string{
			"preset": "quality",
			"tune":   "lossless",
		})
	case IntelHint:
		p := domain.NewEncodeProfile("vaapi-fast", "hevc_vaapi", threads, map[string]string{
			"preset": "ultrafast",
		})
		p = p.WithHWArgs(
			"-init_hw_device", "vaapi=va:"+opts.vaapiDevice(),
			"-filter_hw_device", "va",
		)
		p.VideoFilter = "format=nv12,hwupload"
		return p
	default:
		return domain.NewEncodeProfile("x265-fast", "libx265", threads, map[string]string{
			"preset": "ultrafast",
			"crf":    "28",
		})
	}
}

// Hints lists every hint in selection priority order, fallback last.
func Hints() []Hint {
	return []Hint{NvidiaHint, AmdHint, IntelHint, NoHint}
}

// Selector re-detects the environment on every call.
type Selector struct {
	Detector Detector
	Options  Options
}

// NewSelector builds a selector over the process environment.
func NewSelector(opts Options) *Selector {
	return &Selector{Detector: NewEnvDetector(), Options: opts}
}

// Select detects the current hint and returns its profile.
func (s *Selector) Select() (Hint, domain.EncodeProfile) {
	hint := NoHint
	if s.Detector != nil {
		hint = s.Detector.Detect()
	}
	return hint, Select(hint, s.Options)
}

// Catalog returns every profile for display, marking the one that matches selected.
func Catalog(selected Hint, opts Options) []domain.EncodeProfileView {
	return lo.Map(Hints(), func(h Hint, _ int) domain.EncodeProfileView {
		return View(h, Select(h, opts), h == selected)
	})
}

// View converts a profile to its frontend shape.
func View(hint Hint, p domain.EncodeProfile, selected bool) domain.EncodeProfileView {
	return domain.EncodeProfileView{
		Hint:        string(hint),
		Name:        p.Name,
		VideoCodec:  p.VideoCodec,
		ThreadCount: p.ThreadCount,
		Params:      p.Params(),
		HWArgs:      p.HWArgs(),
		VideoFilter: p.VideoFilter,
		Selected:    selected,
	}
}
