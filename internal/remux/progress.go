package remux

import (
	"math"
	"strconv"
	"strings"
)

// Progress is one merge progress snapshot.
type Progress struct {
	Frame          int64   `json:"frame"`
	OutTimeSeconds float64 `json:"outTimeSeconds"`
	Speed          float64 `json:"speed"`
	// Percent is -1 when the total duration is unknown.
	Percent float64 `json:"percent"`
	Done    bool    `json:"done"`
}

// progressParser folds ffmpeg "-progress" key=value lines into snapshots.
type progressParser struct {
	totalSeconds float64
	current      Progress
}

func newProgressParser(totalSeconds float64) *progressParser {
	return &progressParser{
		totalSeconds: totalSeconds,
		current:      Progress{Percent: percentOf(0, totalSeconds)},
	}
}

// ParseLine consumes one line and returns a snapshot at each block end.
func (pp *progressParser) ParseLine(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		if frame, err := strconv.ParseInt(value, 10, 64); err == nil {
			pp.current.Frame = frame
		}
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			pp.current.OutTimeSeconds = float64(us) / 1e6
		}
	case "out_time":
		if seconds := timeToSeconds(value); seconds > 0 {
			pp.current.OutTimeSeconds = seconds
		}
	case "speed":
		if speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			pp.current.Speed = speed
		}
	case "progress":
		pp.current.Done = value == "end"
		pp.current.Percent = percentOf(pp.current.OutTimeSeconds, pp.totalSeconds)
		if pp.current.Done && pp.totalSeconds > 0 {
			pp.current.Percent = 100
		}
		return pp.current, true
	}

	return Progress{}, false
}

func percentOf(seconds, total float64) float64 {
	if total <= 0 {
		return -1
	}
	pct := seconds / total * 100
	return math.Min(math.Max(pct, 0), 100)
}

// timeToSeconds converts ffmpeg HH:MM:SS.micro timestamps to seconds.
func timeToSeconds(timeStr string) float64 {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}

	return hours*3600 + minutes*60 + seconds
}
