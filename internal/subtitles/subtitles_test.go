package subtitles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

func TestParse(t *testing.T) {
	entries := Parse("1\n00:00:01,000 --> 00:00:02,500\nLine 1\n\n2\n00:00:03,000 --> 00:00:04,000\nLine 2")

	require.Len(t, entries, 2)
	assert.Equal(t, 1.0, entries[0].StartTime)
	assert.Equal(t, 2.5, entries[0].EndTime)
	assert.Equal(t, "Line 2", entries[1].Text)
	assert.Equal(t, 2, entries[1].Index)
}

func TestParseSkipsMalformedBlocks(t *testing.T) {
	content := "x\n00:00:01,000 --> 00:00:02,000\nbad index\r\n\r\n" +
		"2\nnot a timing\ntext\r\n\r\n" +
		"3\n00:00:05,000\r\n\r\n" +
		"4\r00:01:00,250 --> 00:01:02,000\rfirst\rsecond"

	entries := Parse(content)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Index)
	assert.Equal(t, 60.25, entries[0].StartTime)
	assert.Equal(t, "first\nsecond", entries[0].Text)

	assert.Empty(t, Parse("  \n "))
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, 3723.5, ParseTime("01:02:03,500"))
	assert.Zero(t, ParseTime("01:02"))
	assert.Zero(t, ParseTime("01:02:03"))
	assert.Zero(t, ParseTime("aa:02:03,000"))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "1:05", FormatClock(65.9, 120))
	assert.Equal(t, "0:01:05", FormatClock(65, 3600))
	assert.Equal(t, "1:01:01", FormatClock(3661, 3661))
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, 65.0, ParseClock("1:05"))
	assert.Equal(t, 3661.0, ParseClock(" 1:01:01 "))
	assert.Equal(t, 42.0, ParseClock("42"))
	assert.Equal(t, 5.0, ParseClock("x:05"))
}

func TestSuggestCutRangesDefaultsToHigh(t *testing.T) {
	segments := []domain.FlaggedSegment{
		{StartTime: 10.1, EndTime: 12.2, Priority: domain.PriorityMedium, RuleID: "profanity"},
		{StartTime: 4.2, EndTime: 5.9, Priority: domain.PriorityHigh, RuleID: "aqeedah"},
	}

	assert.Equal(t, []domain.CutRange{{Start: "0:04", End: "0:05"}}, SuggestCutRanges(segments))
}

func TestSuggestCutRangesOrdersByStartThenPriority(t *testing.T) {
	segments := []domain.FlaggedSegment{
		{StartTime: 3700, EndTime: 3710, Priority: domain.PriorityLow},
		{StartTime: 30, EndTime: 31, Priority: domain.PriorityMedium},
		{StartTime: 30, EndTime: 40, Priority: domain.PriorityHigh},
	}

	got := SuggestCutRanges(segments, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow)
	assert.Equal(t, []domain.CutRange{
		{Start: "0:30", End: "0:40"},
		{Start: "0:30", End: "0:31"},
		{Start: "1:01:40", End: "1:01:50"},
	}, got)
	assert.Equal(t, domain.PriorityLow, segments[0].Priority, "input must not be reordered")
}

func TestParseRangeInput(t *testing.T) {
	got := ParseRangeInput("0:04 - 0:05, 1:02:03-1:02:09\nbogus 5-6")
	assert.Equal(t, []domain.CutRange{
		{Start: "0:04", End: "0:05"},
		{Start: "1:02:03", End: "1:02:09"},
	}, got)
	assert.Empty(t, ParseRangeInput("nothing here"))
}

func TestValidateRange(t *testing.T) {
	assert.True(t, ValidateRange(domain.CutRange{Start: "0:04", End: "0:05"}))
	assert.False(t, ValidateRange(domain.CutRange{Start: "0:05", End: "0:05"}))
}

func TestLoadAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.analysis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"engine": "rules",
		"flagged": [{"startTime": 1, "endTime": 2, "text": "xmas", "reason": "r", "priority": "high", "category": "aqeedah", "ruleId": "aqeedah_christmas"}],
		"summary": "1 flagged",
		"createdAt": "2025-01-01T00:00:00Z",
		"videoFileName": "a.mp4"
	}`), 0o644))

	sidecar, err := LoadAnalysis(path)
	require.NoError(t, err)
	require.Len(t, sidecar.Flagged, 1)
	assert.Equal(t, domain.PriorityHigh, sidecar.Flagged[0].Priority)
	assert.Equal(t, []domain.CutRange{{Start: "0:01", End: "0:02"}}, SuggestCutRanges(sidecar.Flagged))

	_, err = LoadAnalysis(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
