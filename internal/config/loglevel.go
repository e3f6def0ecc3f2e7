package config

import (
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"

	"audio-sync/internal/domain"
)

// LoggerLevel picks the level an entrypoint runs at: flagLevel when the
// --log-level flag was given, otherwise the persisted logLevel setting.
// On a bad setting flagLevel is returned with the error.
func LoggerLevel(settings domain.Settings, flagLevel logger.Level, flagChanged bool) (logger.Level, error) {
	if flagChanged {
		return flagLevel, nil
	}

	name := strings.TrimSpace(settings.LogLevel)
	if name == "" {
		name = DefaultSettings().LogLevel
	}
	level := flagLevel
	if err := level.Set(name); err != nil {
		return flagLevel, fmt.Errorf("invalid logLevel %q: %w", settings.LogLevel, err)
	}
	return level, nil
}
