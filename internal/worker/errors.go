package worker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkerNotRunning is returned when a command needs a live worker process.
	ErrWorkerNotRunning = errors.New("Worker is not running.")
	// ErrUnsupportedCancelMode rejects cancellation modes other than stop_after_current.
	ErrUnsupportedCancelMode = errors.New("Unsupported cancellation mode. Use stop_after_current.")
	// ErrNoInputFiles is returned when source selection resolves to zero files.
	ErrNoInputFiles = errors.New("no matching input files were found")
	// ErrUnmappedEvent marks a well-formed worker message with no engine counterpart.
	ErrUnmappedEvent = errors.New("worker event has no task mapping")
)

// ProcessError is a stage-aware worker process failure with command context.
type ProcessError struct {
	Stage    string   `json:"stage"`
	Message  string   `json:"message"`
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Err      error    `json:"-"`
}

// Error formats process failures for logs and UI.
func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	if e.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		strings.Join(append([]string{e.Command}, e.Args...), " "),
		e.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *ProcessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
