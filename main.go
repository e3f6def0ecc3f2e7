package main

import (
	"context"
	"embed"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"

	"audio-sync/internal/bootstrap"
	"audio-sync/internal/config"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	settingsPath := pflag.String("config", "", "the path to the settings file (.yaml or .json)")
	pflag.Parse()

	path := *settingsPath
	if path == "" {
		path = config.DefaultPath()
	}
	// A load error resurfaces from bootstrap below.
	settings, _ := config.NewFileStore(path).Load()
	level, levelErr := config.LoggerLevel(settings, loggerLevel, pflag.CommandLine.Changed("log-level"))

	l := logrus.Default().WithLevel(level)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)
	if levelErr != nil {
		logger.Warnf(ctx, "%s: %v", path, levelErr)
	}

	app, err := bootstrap.NewWithAssets(ctx, appAssets, path)
	if err != nil {
		logger.Panicf(ctx, "bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		logger.Panicf(ctx, "run app: %v", err)
	}
}
