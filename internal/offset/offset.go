// Package offset turns a signed audio offset into the audio preprocessing
// step that realigns the track with the picture.
//
// A negative offset trims the head of the audio track, a positive offset
// prepends silence on every channel, and zero copies the track unchanged.
package offset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidOffset is returned when the offset text is not a finite number.
var ErrInvalidOffset = errors.New("invalid offset value")

// Kind names the timing transformation applied to the audio track.
type Kind string

const (
	KindCopy  Kind = "copy"
	KindTrim  Kind = "trim"
	KindDelay Kind = "delay"
)

// Instruction is the resolved audio preprocessing step.
type Instruction struct {
	Kind      Kind    `json:"kind"`
	AudioPath string  `json:"audioPath"`
	Seconds   float64 `json:"seconds"`
}

// Parse reads user-entered offset text. Empty text means no offset.
func Parse(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, text)
	}
	return v, nil
}

// Resolve maps an offset in seconds to an instruction. It keeps no state.
func Resolve(seconds float64, audioPath string) Instruction {
	switch {
	case seconds < 0:
		return Instruction{Kind: KindTrim, AudioPath: audioPath, Seconds: -seconds}
	case seconds > 0:
		return Instruction{Kind: KindDelay, AudioPath: audioPath, Seconds: seconds}
	default:
		return Instruction{Kind: KindCopy, AudioPath: audioPath}
	}
}

// DelayMillis returns the delay rounded to whole milliseconds, or 0 when the
// instruction is not a delay.
func (i Instruction) DelayMillis() int64 {
	if i.Kind != KindDelay {
		return 0
	}
	return int64(math.Round(i.Seconds * 1000))
}

// Filter returns the audio filter expression for the instruction.
// all=1 applies the same delay to every channel regardless of layout.
func (i Instruction) Filter() string {
	if i.Kind != KindDelay {
		return ""
	}
	return fmt.Sprintf("adelay=delays=%d:all=1", i.DelayMillis())
}

// InputOptions returns options applied to the audio input, keyed by ffmpeg
// option name without the leading dash.
func (i Instruction) InputOptions() map[string]string {
	if i.Kind != KindTrim {
		return nil
	}
	return map[string]string{"ss": FormatSeconds(i.Seconds)}
}

// String renders the instruction for logs and UI messages.
func (i Instruction) String() string {
	switch i.Kind {
	case KindTrim:
		return fmt.Sprintf("trim %ss from the start of the audio", FormatSeconds(i.Seconds))
	case KindDelay:
		return fmt.Sprintf("delay audio by %dms on all channels", i.DelayMillis())
	default:
		return "copy audio unchanged"
	}
}

// FormatSeconds renders seconds without trailing zeros, e.g. 2.5 -> "2.5".
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
