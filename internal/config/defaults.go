package config

import (
	"os"
	"path/filepath"

	"audio-sync/internal/domain"
	"audio-sync/internal/profile"
)

// DefaultSettings returns baseline local configuration for first launch.
// Empty OutputDir writes next to the source video.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		AudioCodec:  "eac3",
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		VaapiDevice: profile.DefaultVaapiDevice,
		LogLevel:    "info",
	}
}

// DefaultPath is where settings live unless overridden.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".audio-sync", "settings.yaml")
}

// WithDefaults fills every empty field of cfg from DefaultSettings.
func WithDefaults(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	fill := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}
	fill(&cfg.AudioCodec, def.AudioCodec)
	fill(&cfg.FFmpegPath, def.FFmpegPath)
	fill(&cfg.FFprobePath, def.FFprobePath)
	fill(&cfg.VaapiDevice, def.VaapiDevice)
	fill(&cfg.LogLevel, def.LogLevel)
	return cfg
}
