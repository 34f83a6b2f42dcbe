package subtitles

import (
	"regexp"
	"sort"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

var rangePattern = regexp.MustCompile(`(\d{1,2}:\d{2}(?::\d{2})?)\s*-\s*(\d{1,2}:\d{2}(?::\d{2})?)`)

// SuggestCutRanges turns flagged segments of the selected priorities into
// cut ranges ordered by start time. With no priorities only high is used.
func SuggestCutRanges(segments []domain.FlaggedSegment, priorities ...domain.Priority) []domain.CutRange {
	if len(priorities) == 0 {
		priorities = []domain.Priority{domain.PriorityHigh}
	}

	selected := lo.Filter(segments, func(segment domain.FlaggedSegment, _ int) bool {
		return lo.Contains(priorities, segment.Priority)
	})
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].StartTime != selected[j].StartTime {
			return selected[i].StartTime < selected[j].StartTime
		}
		return selected[i].Priority.Rank() < selected[j].Priority.Rank()
	})

	return lo.Map(selected, func(segment domain.FlaggedSegment, _ int) domain.CutRange {
		return domain.CutRange{Start: toClock(segment.StartTime), End: toClock(segment.EndTime)}
	})
}

// ParseRangeInput extracts every "start-end" clock pair from free text.
func ParseRangeInput(value string) []domain.CutRange {
	matches := rangePattern.FindAllStringSubmatch(value, -1)
	return lo.Map(matches, func(match []string, _ int) domain.CutRange {
		return domain.CutRange{Start: match[1], End: match[2]}
	})
}

// ValidateRange reports whether r names a non-empty span.
func ValidateRange(r domain.CutRange) bool {
	return ParseClock(r.End) > ParseClock(r.Start)
}
