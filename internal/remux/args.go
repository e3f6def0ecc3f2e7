package remux

import (
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"audio-sync/internal/domain"
	"audio-sync/internal/offset"
)

const (
	scratchPrefix = "temp_audio_adjusted"
	outputSuffix  = "_audio_replaced"
	defaultExt    = ".mkv"
)

var baseGlobalArgs = []string{"-hide_banner", "-nostdin"}

// buildAdjustArgs renders the audio adjustment step for one instruction.
func buildAdjustArgs(ins offset.Instruction, scratchPath, audioCodec string) []string {
	inKw := ffmpeg.KwArgs{}
	for k, v := range ins.InputOptions() {
		inKw[k] = v
	}

	outKw := ffmpeg.KwArgs{"c:a": audioCodec}
	if filter := ins.Filter(); filter != "" {
		outKw["af"] = filter
	}

	return ffmpeg.Input(ins.AudioPath, inKw).
		Output(scratchPath, outKw).
		GlobalArgs(baseGlobalArgs...).
		OverWriteOutput().
		GetArgs()
}

// buildMergeArgs maps the first video stream of the source and the first
// audio stream of the adjusted track into one output.
func buildMergeArgs(videoPath, scratchPath, outputPath string, p domain.EncodeProfile, audioCodec string) []string {
	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(scratchPath)

	kw := ffmpeg.KwArgs{
		"c:v":     p.VideoCodec,
		"c:a":     audioCodec,
		"threads": strconv.Itoa(p.ThreadCount),
	}
	for _, key := range p.ParamKeys() {
		value, _ := p.Param(key)
		kw[key] = value
	}
	if p.VideoFilter != "" {
		kw["vf"] = p.VideoFilter
	}

	global := append([]string{}, baseGlobalArgs...)
	global = append(global, "-nostats", "-progress", "pipe:1")
	global = append(global, p.HWArgs()...)

	return ffmpeg.Output(
		[]*ffmpeg.Stream{video.Get("v:0"), audio.Get("a:0")},
		outputPath,
		kw,
	).
		GlobalArgs(global...).
		OverWriteOutput().
		GetArgs()
}

// scratchFileName names the per-job adjusted audio track.
func scratchFileName(id string) string {
	return scratchPrefix + "-" + id + ".mka"
}

// outputFileName derives "<base>_audio_replaced<ext>" from the video path.
func outputFileName(videoPath string) string {
	base := filepath.Base(videoPath)
	ext := filepath.Ext(base)
	name := strings.TrimSpace(strings.TrimSuffix(base, ext))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "output"
	}
	if ext == "" {
		ext = defaultExt
	}
	return name + outputSuffix + ext
}
