package domain

import (
	"time"

	"github.com/samber/lo"
)

// DiagnosticStatus is the outcome of one worker runtime check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one runtime check. Fixable failures can be handed to the
// install-or-fix command.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
	Fixable bool             `json:"fixable"`
}

// DiagnosticReport is the preflight shown before any task is started.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Failed returns the items that did not pass.
func (r DiagnosticReport) Failed() []DiagnosticItem {
	return lo.Filter(r.Items, func(item DiagnosticItem, _ int) bool {
		return item.Status == DiagnosticStatusFail
	})
}

// Item returns the check with the given id.
func (r DiagnosticReport) Item(id string) (DiagnosticItem, bool) {
	return lo.Find(r.Items, func(item DiagnosticItem) bool { return item.ID == id })
}
