package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ragaeeb/al-iyaal-kids/internal/config"
	"github.com/ragaeeb/al-iyaal-kids/internal/controller"
	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/paths"
	"github.com/ragaeeb/al-iyaal-kids/internal/tui"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"
)

var titles = map[domain.TaskKind]string{
	domain.TaskKindTranscription: "Generate subtitles",
	domain.TaskKindFlag:          "Flag subtitles",
	domain.TaskKindRemoveMusic:   "Remove music",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("al-iyaal-tui", flag.ContinueOnError)
	dir := fs.String("dir", "", "input folder")
	kindName := fs.String("kind", string(domain.TaskKindTranscription), "task kind: transcription, flag or remove_music")
	configPath := fs.String("config", config.SettingsPath(), "settings file path")
	logPath := fs.String("log", filepath.Join(config.AppDir(), "tui.log"), "log file path, empty to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind, ok := domain.ParseTaskKind(*kindName)
	if !ok || kind == domain.TaskKindCut {
		return fmt.Errorf("unsupported task kind: %s", *kindName)
	}
	inputDir := strings.TrimSpace(*dir)
	if inputDir == "" {
		return errors.New("-dir is required")
	}

	settings, err := config.NewJSONStore(*configPath).Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	getenv, err := config.FileEnv(config.EnvFilePath(), os.Getenv)
	if err != nil {
		return err
	}
	settings = config.ApplyEnv(settings, getenv)

	logger, closeLog, err := newLogger(*logPath, config.LogLevel(settings.LogLevel))
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	service := worker.NewService(
		worker.RuntimePathsFromSettings(settings),
		config.NewModerationStore(config.ModerationPath()),
		logger,
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := service.Close(ctx); err != nil {
			logger.Warn("stop worker", "error", err)
		}
	}()

	ctrl := controller.New(service,
		controller.WithLogger(logger),
		controller.WithYapMode(settings.YapMode),
		controller.WithComputeMode(settings.ComputeMode),
	)
	changes := make(chan struct{}, 1)
	unsubscribe := ctrl.Subscribe(tui.Notifier(changes))
	defer unsubscribe()

	if err := ctrl.Open(context.Background()); err != nil {
		return err
	}
	defer ctrl.Close()
	ctrl.SetInputDir(inputDir)

	start := func(ctx context.Context) (worker.StartResponse, error) {
		return ctrl.Start(ctx, worker.StartRequest{
			Kind:              kind,
			InputDir:          inputDir,
			AllowedExtensions: paths.AllowedExtensionsFor(kind),
			YapMode:           settings.YapMode,
			ComputeMode:       settings.ComputeMode,
		})
	}

	model := tui.New(titles[kind]+" · "+inputDir, ctrl, start, changes)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

// newLogger writes to path, or discards logs when path is empty. The terminal
// belongs to the UI.
func newLogger(path string, level slog.Level) (*slog.Logger, func(), error) {
	if strings.TrimSpace(path) == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = file.Close() }, nil
}
