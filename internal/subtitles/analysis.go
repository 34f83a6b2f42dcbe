package subtitles

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// LoadFile reads and parses an SRT file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitles %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// LoadAnalysis reads a flagging sidecar written by the worker.
func LoadAnalysis(path string) (domain.AnalysisSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AnalysisSidecar{}, fmt.Errorf("read analysis %s: %w", path, err)
	}

	var sidecar domain.AnalysisSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return domain.AnalysisSidecar{}, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	return sidecar, nil
}
