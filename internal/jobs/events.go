package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// EventType classifies messages emitted by the worker.
type EventType string

const (
	EventTypeJobProgress  EventType = "job_progress"
	EventTypeJobDone      EventType = "job_done"
	EventTypeJobError     EventType = "job_error"
	EventTypeJobLog       EventType = "job_log"
	EventTypeTaskDone     EventType = "task_done"
	EventTypeWorkerStatus EventType = "worker_status"
)

// Event is one tagged worker message. Type selects which fields are set.
// Worker status events carry no task id.
type Event struct {
	Seq         int64               `json:"seq,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Type        EventType           `json:"type"`
	TaskID      string              `json:"taskId,omitempty"`
	TaskKind    domain.TaskKind     `json:"taskKind,omitempty"`
	JobID       string              `json:"jobId,omitempty"`
	ProgressPct float64             `json:"progressPct,omitempty"`
	OutputPath  string              `json:"outputPath,omitempty"`
	Artifacts   json.RawMessage     `json:"artifacts,omitempty"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
	Stream      string              `json:"stream,omitempty"`
	Summary     *domain.TaskSummary `json:"summary,omitempty"`
	Status      domain.WorkerStatus `json:"status,omitempty"`
}

// JobProgress builds a progress event.
func JobProgress(taskID string, kind domain.TaskKind, jobID string, pct float64) Event {
	return Event{Type: EventTypeJobProgress, TaskID: taskID, TaskKind: kind, JobID: jobID, ProgressPct: pct}
}

// JobDone builds a job completion event.
func JobDone(taskID string, kind domain.TaskKind, jobID, outputPath string) Event {
	return Event{Type: EventTypeJobDone, TaskID: taskID, TaskKind: kind, JobID: jobID, OutputPath: outputPath}
}

// JobError builds a per-job failure event.
func JobError(taskID string, kind domain.TaskKind, jobID, message string) Event {
	return Event{Type: EventTypeJobError, TaskID: taskID, TaskKind: kind, JobID: jobID, Error: message}
}

// JobLog builds a diagnostic line event. Stream defaults to stdout.
func JobLog(taskID string, kind domain.TaskKind, jobID, message, stream string) Event {
	if stream == "" {
		stream = "stdout"
	}
	return Event{Type: EventTypeJobLog, TaskID: taskID, TaskKind: kind, JobID: jobID, Message: message, Stream: stream}
}

// TaskDone builds the aggregate completion event.
func TaskDone(taskID string, kind domain.TaskKind, summary domain.TaskSummary) Event {
	return Event{Type: EventTypeTaskDone, TaskID: taskID, TaskKind: kind, Summary: &summary}
}

// WorkerStatusChanged builds a worker liveness event.
func WorkerStatusChanged(status domain.WorkerStatus, message string) Event {
	return Event{Type: EventTypeWorkerStatus, Status: status, Message: message}
}

// Validate checks that the fields required by the event's variant are set.
func (e Event) Validate() error {
	switch e.Type {
	case EventTypeJobProgress, EventTypeJobDone, EventTypeJobLog:
		return e.requireJob()
	case EventTypeJobError:
		if err := e.requireJob(); err != nil {
			return err
		}
		if e.Error == "" {
			return fmt.Errorf("%s: missing error", e.Type)
		}
		return nil
	case EventTypeTaskDone:
		if e.TaskID == "" {
			return fmt.Errorf("%s: missing task id", e.Type)
		}
		if e.Summary == nil {
			return fmt.Errorf("%s: missing summary", e.Type)
		}
		return nil
	case EventTypeWorkerStatus:
		switch e.Status {
		case domain.WorkerStatusIdle, domain.WorkerStatusStarting, domain.WorkerStatusReady, domain.WorkerStatusError:
			return nil
		default:
			return fmt.Errorf("%s: unknown status %q", e.Type, e.Status)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e Event) requireJob() error {
	if e.TaskID == "" {
		return fmt.Errorf("%s: missing task id", e.Type)
	}
	if e.JobID == "" {
		return fmt.Errorf("%s: missing job id", e.Type)
	}
	return nil
}
