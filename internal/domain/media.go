package domain

// VideoListItem describes one video in a folder and its sidecar files.
type VideoListItem struct {
	FileName     string `json:"fileName"`
	Path         string `json:"path"`
	SrtPath      string `json:"srtPath,omitempty"`
	AnalysisPath string `json:"analysisPath,omitempty"`
	HasSrt       bool   `json:"hasSrt"`
	HasAnalysis  bool   `json:"hasAnalysis"`
}

// SrtListItem describes one subtitle file and its analysis sidecar.
type SrtListItem struct {
	FileName     string `json:"fileName"`
	Path         string `json:"path"`
	AnalysisPath string `json:"analysisPath,omitempty"`
	HasAnalysis  bool   `json:"hasAnalysis"`
}

// Priority ranks how urgently flagged content should be cut.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of high, medium, or low.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Rank orders priorities with high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// FlaggedSegment is one subtitle span matched by a moderation rule.
type FlaggedSegment struct {
	StartTime float64  `json:"startTime"`
	EndTime   float64  `json:"endTime"`
	Text      string   `json:"text"`
	Reason    string   `json:"reason"`
	Priority  Priority `json:"priority"`
	Category  string   `json:"category"`
	RuleID    string   `json:"ruleId"`
}

// AnalysisSidecar is the worker's flagging output stored next to a subtitle file.
type AnalysisSidecar struct {
	Engine        string           `json:"engine"`
	Flagged       []FlaggedSegment `json:"flagged"`
	Summary       string           `json:"summary"`
	CreatedAt     string           `json:"createdAt"`
	VideoFileName string           `json:"videoFileName"`
}

// ModerationRule matches subtitle text by substring patterns.
type ModerationRule struct {
	RuleID   string   `json:"ruleId"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
	Reason   string   `json:"reason"`
	Patterns []string `json:"patterns"`
}

// ModerationSettings is the document handed to flag tasks.
type ModerationSettings struct {
	ContentCriteria    string           `json:"contentCriteria"`
	PriorityGuidelines string           `json:"priorityGuidelines"`
	ProfanityWords     []string         `json:"profanityWords"`
	Rules              []ModerationRule `json:"rules"`
}
