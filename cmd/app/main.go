package main

import (
	"log/slog"
	"os"

	"github.com/ragaeeb/al-iyaal-kids/internal/bootstrap"
	"github.com/ragaeeb/al-iyaal-kids/internal/config"
)

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	app, err := bootstrap.New(logger)
	if err != nil {
		logger.Error("bootstrap app", "error", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		logger.Error("run app", "error", err)
		os.Exit(1)
	}
}

// newLogger honours the persisted log level and its environment override.
func newLogger() *slog.Logger {
	level := config.LogLevel(config.DefaultLogLevel)
	settings, err := config.NewJSONStore(config.SettingsPath()).Load()
	if err != nil {
		settings = config.DefaultSettings()
	}
	if getenv, err := config.FileEnv(config.EnvFilePath(), os.Getenv); err == nil {
		level = config.LogLevel(config.ApplyEnv(settings, getenv).LogLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
