package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Fields left
// empty in the file fall back to their defaults.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	return WithDefaults(cfg), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	return writeJSON(s.path, cfg)
}

// WithDefaults fills every empty field of cfg from DefaultSettings.
func WithDefaults(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()

	cfg.PythonPath = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.PythonPath), def.PythonPath)
	cfg.WorkerScript = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.WorkerScript), def.WorkerScript)
	cfg.FFmpegPath = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.FFmpegPath), def.FFmpegPath)
	cfg.YapPath = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.YapPath), def.YapPath)
	cfg.DemucsPath = strings.TrimSpace(cfg.DemucsPath)
	cfg.ComputeMode = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.ComputeMode), def.ComputeMode)
	cfg.YapMode = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.YapMode), def.YapMode)
	cfg.LogLevel = lo.CoalesceOrEmpty(strings.ToLower(strings.TrimSpace(cfg.LogLevel)), def.LogLevel)
	return cfg
}

// Environment variables the worker runtime honours.
const (
	EnvPythonPath = "AIYAAL_PYTHON_PATH"
	EnvFFmpegPath = "AIYAAL_FFMPEG_PATH"
	EnvYapPath    = "AIYAAL_YAP_PATH"
	EnvDemucsPath = "AIYAAL_DEMUCS_PATH"
	EnvLogLevel   = "AIYAAL_LOG_LEVEL"
)

// ApplyEnv overlays non-empty AIYAAL_* variables onto cfg.
func ApplyEnv(cfg domain.Settings, getenv func(string) string) domain.Settings {
	if getenv == nil {
		getenv = os.Getenv
	}

	overlay := func(target *string, key string) {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			*target = value
		}
	}
	overlay(&cfg.PythonPath, EnvPythonPath)
	overlay(&cfg.FFmpegPath, EnvFFmpegPath)
	overlay(&cfg.YapPath, EnvYapPath)
	overlay(&cfg.DemucsPath, EnvDemucsPath)
	overlay(&cfg.LogLevel, EnvLogLevel)
	return cfg
}

// LogLevel maps the settings level name to a slog level, defaulting to info.
func LogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
