// Package paths derives job identities from input paths and discovers
// candidate media files in a folder.
package paths

import (
	"strings"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

var (
	// VideoExtensions are accepted by remove-music, transcription and cut tasks.
	VideoExtensions = []string{".mp4", ".mov"}
	// SubtitleExtensions are accepted by flag tasks.
	SubtitleExtensions = []string{".srt"}
)

// AllowedExtensionsFor returns the input allow-list for a task kind.
func AllowedExtensionsFor(kind domain.TaskKind) []string {
	if kind == domain.TaskKindFlag {
		return append([]string(nil), SubtitleExtensions...)
	}
	return append([]string(nil), VideoExtensions...)
}

// DeriveJobID lower-cases path and collapses every run of characters outside
// [a-z0-9] into a single dash. The result never starts or ends with a dash.
func DeriveJobID(path string) string {
	var b strings.Builder
	b.Grow(len(path))

	pendingDash := false
	for _, r := range strings.ToLower(path) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}

// DisplayName returns the last path segment, or path itself when it has none.
func DisplayName(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// NormalizeExtensions trims, lower-cases and dot-prefixes each extension.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return lo.Uniq(out)
}

// IsAllowedPath reports whether path ends with one of the allowed extensions,
// ignoring case.
func IsAllowedPath(path string, allowedExtensions []string) bool {
	lowered := strings.ToLower(path)
	for _, ext := range allowedExtensions {
		if ext != "" && strings.HasSuffix(lowered, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// FilterAllowed keeps the paths accepted by IsAllowedPath, preserving order.
func FilterAllowed(paths []string, allowedExtensions []string) []string {
	return lo.Filter(paths, func(path string, _ int) bool {
		return IsAllowedPath(path, allowedExtensions)
	})
}
