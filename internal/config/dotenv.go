package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFilePath is the optional dotenv file holding AIYAAL_* overrides.
func EnvFilePath() string {
	return filepath.Join(AppDir(), ".env")
}

// FileEnv returns a lookup that prefers getenv and falls back to the
// variables in the dotenv file at path. A missing file yields getenv itself.
func FileEnv(path string, getenv func(string) string) (func(string) string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return getenv, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	return func(key string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return values[key]
	}, nil
}
