package worker

import (
	"encoding/json"
	"fmt"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
)

// CancelModeStopAfterCurrent lets the running job finish before the task halts.
const CancelModeStopAfterCurrent = "stop_after_current"

// DefaultCutOutputMode writes the cleaned clip next to the source video.
const DefaultCutOutputMode = "video_cleaned_default"

// CommandType is the wire discriminant of a command sent to the worker.
type CommandType string

const (
	CommandStartBatch              CommandType = "start_batch"
	CommandStartTranscriptionBatch CommandType = "start_transcription_batch"
	CommandStartFlagBatch          CommandType = "start_flag_batch"
	CommandStartCutJob             CommandType = "start_cut_job"
	CommandCancelBatch             CommandType = "cancel_batch"
	CommandCancelTask              CommandType = "cancel_task"
)

// Command is one JSON line written to the worker's stdin.
type Command struct {
	Type        CommandType                `json:"type"`
	BatchID     string                     `json:"batchId,omitempty"`
	TaskID      string                     `json:"taskId,omitempty"`
	InputPaths  []string                   `json:"inputPaths,omitempty"`
	OutputDir   string                     `json:"outputDir,omitempty"`
	ComputeMode string                     `json:"computeMode,omitempty"`
	YapMode     string                     `json:"yapMode,omitempty"`
	Settings    *domain.ModerationSettings `json:"settings,omitempty"`
	VideoPath   string                     `json:"videoPath,omitempty"`
	Ranges      []domain.CutRange          `json:"ranges,omitempty"`
	OutputMode  string                     `json:"outputMode,omitempty"`
	Mode        string                     `json:"mode,omitempty"`
}

// MarshalLine encodes the command as a newline-terminated JSON document.
func (c Command) MarshalLine() ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode worker command: %w", err)
	}
	return append(payload, '\n'), nil
}

// CancelCommand builds the kind-specific cancellation command.
func CancelCommand(taskID string, kind domain.TaskKind, mode string) Command {
	if kind == domain.TaskKindRemoveMusic {
		return Command{Type: CommandCancelBatch, BatchID: taskID, Mode: mode}
	}
	return Command{Type: CommandCancelTask, TaskID: taskID, Mode: mode}
}

// wireEvent mirrors every field any worker message may carry. Required
// fields are pointers so absence can be told apart from zero values.
type wireEvent struct {
	Type        string              `json:"type"`
	BatchID     string              `json:"batchId"`
	TaskID      string              `json:"taskId"`
	TaskKind    string              `json:"taskKind"`
	JobID       *string             `json:"jobId"`
	ProgressPct *float64            `json:"progressPct"`
	OutputPath  string              `json:"outputPath"`
	Artifacts   json.RawMessage     `json:"artifacts"`
	Error       *string             `json:"error"`
	Message     *string             `json:"message"`
	Stream      string              `json:"stream"`
	Summary     *domain.TaskSummary `json:"summary"`
	Status      *string             `json:"status"`
}

// ParseEvent decodes one worker stdout line into an engine event. Legacy
// batch messages map onto remove_music tasks. Messages that are well formed
// but cannot be routed return an error wrapping ErrUnmappedEvent.
func ParseEvent(line []byte) (jobs.Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return jobs.Event{}, fmt.Errorf("parse worker event: %w", err)
	}

	switch raw.Type {
	case "job_progress":
		if raw.ProgressPct == nil {
			return jobs.Event{}, missingField(raw.Type, "progressPct")
		}
		return raw.jobEvent(func(taskID string, kind domain.TaskKind, jobID string) jobs.Event {
			return jobs.JobProgress(taskID, kind, jobID, *raw.ProgressPct)
		})

	case "job_done":
		return raw.jobEvent(func(taskID string, kind domain.TaskKind, jobID string) jobs.Event {
			event := jobs.JobDone(taskID, kind, jobID, raw.OutputPath)
			event.Artifacts = raw.Artifacts
			return event
		})

	case "job_error":
		if raw.Error == nil {
			return jobs.Event{}, missingField(raw.Type, "error")
		}
		return raw.jobEvent(func(taskID string, kind domain.TaskKind, jobID string) jobs.Event {
			return jobs.JobError(taskID, kind, jobID, *raw.Error)
		})

	case "job_log":
		if raw.Message == nil {
			return jobs.Event{}, missingField(raw.Type, "message")
		}
		return raw.jobEvent(func(taskID string, kind domain.TaskKind, jobID string) jobs.Event {
			return jobs.JobLog(taskID, kind, jobID, *raw.Message, raw.Stream)
		})

	case "batch_done":
		if raw.BatchID == "" {
			return jobs.Event{}, missingField(raw.Type, "batchId")
		}
		if raw.Summary == nil {
			return jobs.Event{}, missingField(raw.Type, "summary")
		}
		return jobs.TaskDone(raw.BatchID, domain.TaskKindRemoveMusic, *raw.Summary), nil

	case "task_done":
		if raw.TaskID == "" {
			return jobs.Event{}, missingField(raw.Type, "taskId")
		}
		if raw.Summary == nil {
			return jobs.Event{}, missingField(raw.Type, "summary")
		}
		kind, ok := domain.ParseTaskKind(raw.TaskKind)
		if !ok {
			return jobs.Event{}, fmt.Errorf("%w: task kind %q", ErrUnmappedEvent, raw.TaskKind)
		}
		return jobs.TaskDone(raw.TaskID, kind, *raw.Summary), nil

	case "worker_status":
		if raw.Status == nil {
			return jobs.Event{}, missingField(raw.Type, "status")
		}
		if raw.Message == nil {
			return jobs.Event{}, missingField(raw.Type, "message")
		}
		status := domain.WorkerStatus(*raw.Status)
		switch status {
		case domain.WorkerStatusStarting, domain.WorkerStatusReady, domain.WorkerStatusError:
			return jobs.WorkerStatusChanged(status, *raw.Message), nil
		default:
			return jobs.Event{}, fmt.Errorf("%w: worker status %q", ErrUnmappedEvent, *raw.Status)
		}

	default:
		return jobs.Event{}, fmt.Errorf("parse worker event: unknown type %q", raw.Type)
	}
}

func (w wireEvent) jobEvent(build func(taskID string, kind domain.TaskKind, jobID string) jobs.Event) (jobs.Event, error) {
	if w.JobID == nil {
		return jobs.Event{}, missingField(w.Type, "jobId")
	}
	if w.BatchID != "" {
		return build(w.BatchID, domain.TaskKindRemoveMusic, *w.JobID), nil
	}
	if w.TaskID == "" {
		return jobs.Event{}, fmt.Errorf("%w: %s without task id", ErrUnmappedEvent, w.Type)
	}
	kind, ok := domain.ParseTaskKind(w.TaskKind)
	if !ok {
		return jobs.Event{}, fmt.Errorf("%w: task kind %q", ErrUnmappedEvent, w.TaskKind)
	}
	return build(w.TaskID, kind, *w.JobID), nil
}

func missingField(eventType, field string) error {
	return fmt.Errorf("parse worker event: %s missing field %s", eventType, field)
}
