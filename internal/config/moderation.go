package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// DefaultModerationRules are applied until the user saves their own.
func DefaultModerationRules() []domain.ModerationRule {
	return []domain.ModerationRule{
		{
			RuleID:   "aqeedah_christmas",
			Category: "aqeedah",
			Priority: domain.PriorityHigh,
			Reason:   "Promotes non-Islamic religious celebration.",
			Patterns: []string{"christmas", "xmas", "easter"},
		},
		{
			RuleID:   "aqeedah_shirk",
			Category: "aqeedah",
			Priority: domain.PriorityHigh,
			Reason:   "Contains shirk-related expressions.",
			Patterns: []string{"worship", "pray to", "god of", "goddess"},
		},
		{
			RuleID:   "magic_sorcery",
			Category: "magic",
			Priority: domain.PriorityHigh,
			Reason:   "References magic or sorcery.",
			Patterns: []string{"spell", "sorcery", "magic ritual", "witchcraft", "summon"},
		},
		{
			RuleID:   "romance_dating",
			Category: "relationships",
			Priority: domain.PriorityMedium,
			Reason:   "References romantic relationship themes.",
			Patterns: []string{"boyfriend", "girlfriend", "date", "kiss", "romantic"},
		},
		{
			RuleID:   "violent_language",
			Category: "violence",
			Priority: domain.PriorityMedium,
			Reason:   "Contains violent phrasing.",
			Patterns: []string{"kill", "murder", "stab", "blood", "beat up"},
		},
	}
}

// DefaultModerationSettings returns the document used on first launch.
func DefaultModerationSettings() domain.ModerationSettings {
	return domain.ModerationSettings{
		ProfanityWords: []string{},
		Rules:          DefaultModerationRules(),
	}
}

// ParseLines splits free text into trimmed, non-empty lines.
func ParseLines(text string) []string {
	return normalizeList(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// NormalizeModerationSettings trims and drops blank entries in the word and
// pattern lists. Every other field is kept verbatim.
func NormalizeModerationSettings(settings domain.ModerationSettings) domain.ModerationSettings {
	settings.ProfanityWords = normalizeList(settings.ProfanityWords)
	settings.Rules = lo.Map(settings.Rules, func(rule domain.ModerationRule, _ int) domain.ModerationRule {
		rule.Patterns = normalizeList(rule.Patterns)
		return rule
	})
	return settings
}

func normalizeList(values []string) []string {
	return lo.FilterMap(values, func(value string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(value)
		return trimmed, trimmed != ""
	})
}

// ModerationStore persists the moderation settings document.
type ModerationStore struct {
	path string
}

// NewModerationStore creates a JSON-backed moderation store.
func NewModerationStore(path string) *ModerationStore {
	return &ModerationStore{path: path}
}

// Load reads the document, returning defaults when the file is missing.
// A document that fails validation is reported, never applied.
func (s *ModerationStore) Load() (domain.ModerationSettings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultModerationSettings(), nil
		}
		return domain.ModerationSettings{}, err
	}

	if err := ValidateModerationJSON(data); err != nil {
		return domain.ModerationSettings{}, fmt.Errorf("moderation settings %s: %w", s.path, err)
	}

	var settings domain.ModerationSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.ModerationSettings{}, fmt.Errorf("parse moderation settings %s: %w", s.path, err)
	}
	return NormalizeModerationSettings(settings), nil
}

// Save normalizes, validates and writes settings. Normalizing first turns nil
// lists into empty arrays.
func (s *ModerationStore) Save(settings domain.ModerationSettings) error {
	normalized := NormalizeModerationSettings(settings)
	if !IsValidModerationSettings(normalized) {
		return ErrInvalidModerationSettings
	}
	return writeJSON(s.path, normalized)
}
