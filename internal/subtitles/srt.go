// Package subtitles parses SRT files and converts between subtitle timings,
// display clocks and cut ranges.
package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one subtitle cue.
type Entry struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
}

var cueTiming = regexp.MustCompile(`(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)

// Parse reads SRT content. Blocks with fewer than three lines, a
// non-numeric index or no timing line are skipped.
func Parse(content string) []Entry {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSpace(strings.ReplaceAll(normalized, "\r", "\n"))
	if normalized == "" {
		return nil
	}

	var entries []Entry
	for _, block := range strings.Split(normalized, "\n\n") {
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}

		index, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
		if err != nil || math.IsInf(index, 0) || math.IsNaN(index) {
			continue
		}

		match := cueTiming.FindStringSubmatch(lines[1])
		if match == nil {
			continue
		}

		entries = append(entries, Entry{
			Index:     int(index),
			StartTime: ParseTime(match[1]),
			EndTime:   ParseTime(match[2]),
			Text:      strings.Join(lines[2:], "\n"),
		})
	}
	return entries
}

// ParseTime converts "HH:MM:SS,mmm" to seconds. Malformed input yields 0.
func ParseTime(value string) float64 {
	parts := strings.Split(value, ":")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return 0
	}
	secs, millis, ok := strings.Cut(parts[2], ",")
	if !ok || secs == "" || millis == "" {
		return 0
	}

	hh, errH := strconv.Atoi(parts[0])
	mm, errM := strconv.Atoi(parts[1])
	ss, errS := strconv.Atoi(secs)
	ms, errMs := strconv.Atoi(millis)
	if errH != nil || errM != nil || errS != nil || errMs != nil {
		return 0
	}
	return float64(hh*3600+mm*60+ss) + float64(ms)/1000
}

// FormatClock renders seconds as m:ss, or h:mm:ss when maxDuration reaches
// an hour so every clock in one video has the same shape.
func FormatClock(seconds, maxDuration float64) string {
	hh, mm, ss := splitClock(seconds)
	if maxDuration >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", hh, mm, ss)
	}
	return fmt.Sprintf("%d:%02d", mm, ss)
}

// ParseClock converts "h:mm:ss", "m:ss" or "ss" to seconds. Non-numeric
// pieces count as zero.
func ParseClock(value string) float64 {
	pieces := strings.Split(strings.TrimSpace(value), ":")

	total := 0.0
	multiplier := 1.0
	for i := len(pieces) - 1; i >= 0; i-- {
		piece, err := strconv.ParseFloat(strings.TrimSpace(pieces[i]), 64)
		if err == nil {
			total += piece * multiplier
		}
		multiplier *= 60
	}
	return total
}

// toClock renders whole seconds with the hour only when non-zero.
func toClock(seconds float64) string {
	hh, mm, ss := splitClock(math.Max(0, seconds))
	if hh > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hh, mm, ss)
	}
	return fmt.Sprintf("%d:%02d", mm, ss)
}

func splitClock(seconds float64) (int, int, int) {
	whole := int(math.Floor(seconds))
	return whole / 3600, (whole % 3600) / 60, whole % 60
}
