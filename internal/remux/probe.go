package remux

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeOutput struct {
	Format probeFormat `json:"format"`
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
}

// probeDuration returns the container duration of path in seconds.
func (p *Pipeline) probeDuration(ctx context.Context, path string) (float64, error) {
	if strings.TrimSpace(p.ffprobePath) == "" {
		return 0, fmt.Errorf("ffprobe is not configured")
	}

	c := command{Name: p.ffprobePath, Args: buildProbeArgs(path)}
	res, err := p.runner.Run(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if out.Format.Duration == "" {
		return 0, fmt.Errorf("duration not available in format metadata")
	}

	duration, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", out.Format.Duration, err)
	}
	return duration, nil
}
