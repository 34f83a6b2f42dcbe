package config

import (
	"os"
	"path/filepath"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

const (
	// AppDirName is the per-user directory holding settings and the runtime.
	AppDirName = ".al-iyaal"

	ModeAuto        = "auto"
	DefaultLogLevel = "info"
)

// AppDir returns ~/.al-iyaal, or a relative fallback when home is unknown.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// SettingsPath is where the app settings document lives.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// ModerationPath is where the moderation settings document lives.
func ModerationPath() string {
	return filepath.Join(AppDir(), "moderation.json")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	root := AppDir()

	return domain.Settings{
		PythonPath:   filepath.Join(root, "runtime", "venv", "bin", "python3"),
		WorkerScript: filepath.Join(root, "python-worker", "worker.py"),
		FFmpegPath:   "ffmpeg",
		YapPath:      "yap",
		ComputeMode:  ModeAuto,
		YapMode:      ModeAuto,
		LogLevel:     DefaultLogLevel,
	}
}
