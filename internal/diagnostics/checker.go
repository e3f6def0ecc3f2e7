package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/samber/lo"

	"audio-sync/internal/domain"
	"audio-sync/internal/profile"
)

const encoderListTimeout = 10 * time.Second

// Checker validates external tools, writable paths and the encode profile.
type Checker struct {
	lookPath     func(string) (string, error)
	mkdirAll     func(string, os.FileMode) error
	createTemp   func(string, string) (*os.File, error)
	remove       func(string) error
	listEncoders func(ffmpegPath string) (string, error)
	selector     *profile.Selector
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(settings domain.Settings) *Checker {
	return &Checker{
		lookPath:     exec.LookPath,
		mkdirAll:     os.MkdirAll,
		createTemp:   os.CreateTemp,
		remove:       os.Remove,
		listEncoders: ffmpegEncoders,
		selector: profile.NewSelector(profile.Options{
			Threads:     runtime.NumCPU(),
			VaapiDevice: settings.VaapiDevice,
		}),
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffmpegItem := c.checkTool("ffmpeg", settings.FFmpegPath, domain.DiagnosticStatusFail,
		"Install ffmpeg and ensure the binary is available on PATH before starting a sync job.")
	items := []domain.DiagnosticItem{
		ffmpegItem,
		c.checkTool("ffprobe", settings.FFprobePath, domain.DiagnosticStatusWarn,
			"Without ffprobe, merge progress is coarse and long trims are not checked up front."),
		c.checkDir("output_dir", "Output directory", settings.OutputDir,
			"Merged files are written next to the source video."),
		c.checkDir("scratch_dir", "Scratch directory", settings.ScratchDir,
			"The adjusted audio track is written to the output directory."),
		c.checkEncodeProfile(settings.FFmpegPath, ffmpegItem.Status == domain.DiagnosticStatusPass),
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkTool verifies a CLI executable resolves; missing gets missingStatus.
func (c *Checker) checkTool(name, configured string, missingStatus domain.DiagnosticStatus, hint string) domain.DiagnosticItem {
	bin := strings.TrimSpace(configured)
	if bin == "" {
		bin = name
	}

	path, err := c.lookPath(bin)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  missingStatus,
			Message: fmt.Sprintf("Tool not found: %s", bin),
			Hint:    hint,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkDir validates an optional directory's existence and write access.
func (c *Checker) checkDir(id, name, dir, emptyMessage string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = emptyMessage
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory or clear the setting."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkEncodeProfile reports the selected profile and whether ffmpeg ships its encoder.
func (c *Checker) checkEncodeProfile(ffmpegPath string, ffmpegFound bool) domain.DiagnosticItem {
	hint, p := c.selector.Select()
	item := domain.DiagnosticItem{
		ID:      "encode_profile",
		Name:    "Encode profile",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Using %s (%s), hardware hint: %s", p.Name, p.VideoCodec, hint),
	}
	if !ffmpegFound || c.listEncoders == nil {
		return item
	}

	out, err := c.listEncoders(ffmpegPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message += "; could not list ffmpeg encoders"
		return item
	}
	if !hasEncoder(out, p.VideoCodec) {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("ffmpeg has no %s encoder, merges with %s will fail", p.VideoCodec, p.Name)
		item.Hint = fmt.Sprintf("Install an ffmpeg build with %s or unset the %s hint.", p.VideoCodec, hint)
	}
	return item
}

// hasEncoder scans "ffmpeg -encoders" output for codec.
func hasEncoder(listing, codec string) bool {
	return lo.SomeBy(strings.Split(listing, "\n"), func(line string) bool {
		fields := strings.Fields(line)
		return len(fields) >= 2 && fields[1] == codec
	})
}

func ffmpegEncoders(ffmpegPath string) (string, error) {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(context.Background(), encoderListTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	listEncoders func(string) (string, error),
	selector *profile.Selector,
) *Checker {
	return &Checker{
		lookPath:     lookPath,
		mkdirAll:     mkdirAll,
		createTemp:   createTemp,
		remove:       remove,
		listEncoders: listEncoders,
		selector:     selector,
	}
}
