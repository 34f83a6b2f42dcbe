package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// RemoveMusicOutputDir is the folder created next to remove-music inputs.
const RemoveMusicOutputDir = "audio_replaced"

// CollectFiles lists regular files directly inside dir whose extension is
// allowed. Results are absolute-as-given paths in lexical order.
func CollectFiles(dir string, allowedExtensions []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	allowed := NormalizeExtensions(allowedExtensions)
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !hasExtension(entry.Name(), allowed) {
			continue
		}
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}

// SubtitlePath returns the .srt sidecar location for a video.
func SubtitlePath(videoPath string) string {
	return replaceExt(videoPath, ".srt")
}

// AnalysisPath returns the flagging sidecar location for a video or subtitle.
func AnalysisPath(path string) string {
	return replaceExt(path, ".analysis.json")
}

// RemoveMusicOutputPath returns where remove-music batches write into.
func RemoveMusicOutputPath(inputDir string) string {
	return filepath.Join(inputDir, RemoveMusicOutputDir)
}

// ListVideos enumerates videos in dir with their sidecar presence.
func ListVideos(dir string, allowedExtensions []string) ([]domain.VideoListItem, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = VideoExtensions
	}
	files, err := CollectFiles(dir, allowedExtensions)
	if err != nil {
		return nil, err
	}

	items := make([]domain.VideoListItem, 0, len(files))
	for _, path := range files {
		item := domain.VideoListItem{
			FileName: DisplayName(path),
			Path:     path,
		}
		if srt := SubtitlePath(path); fileExists(srt) {
			item.SrtPath = srt
			item.HasSrt = true
		}
		if analysis := AnalysisPath(path); fileExists(analysis) {
			item.AnalysisPath = analysis
			item.HasAnalysis = true
		}
		items = append(items, item)
	}
	return items, nil
}

// ListSrtFiles enumerates subtitle files in dir with their analysis sidecar.
func ListSrtFiles(dir string) ([]domain.SrtListItem, error) {
	files, err := CollectFiles(dir, SubtitleExtensions)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SrtListItem, 0, len(files))
	for _, path := range files {
		item := domain.SrtListItem{
			FileName: DisplayName(path),
			Path:     path,
		}
		if analysis := AnalysisPath(path); fileExists(analysis) {
			item.AnalysisPath = analysis
			item.HasAnalysis = true
		}
		items = append(items, item)
	}
	return items, nil
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range allowed {
		if ext == candidate {
			return true
		}
	}
	return false
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
