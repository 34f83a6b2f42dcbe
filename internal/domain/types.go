package domain

// TaskKind identifies which worker pipeline a task runs through.
type TaskKind string

const (
	TaskKindRemoveMusic   TaskKind = "remove_music"
	TaskKindTranscription TaskKind = "transcription"
	TaskKindFlag          TaskKind = "flag"
	TaskKindCut           TaskKind = "cut"
)

// Valid reports whether k belongs to the closed set of task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindRemoveMusic, TaskKindTranscription, TaskKindFlag, TaskKindCut:
		return true
	default:
		return false
	}
}

// ParseTaskKind maps a wire tag to a task kind.
func ParseTaskKind(raw string) (TaskKind, bool) {
	kind := TaskKind(raw)
	return kind, kind.Valid()
}

// JobStatus tracks one input file inside a task.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// TaskStatus is the aggregate status derived from job events.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the aggregate has been closed by the worker.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// WorkerStatus is the liveness of the out-of-process worker.
type WorkerStatus string

const (
	WorkerStatusIdle     WorkerStatus = "idle"
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusReady    WorkerStatus = "ready"
	WorkerStatusError    WorkerStatus = "error"
)

// JobRecord is one file's unit of processing.
type JobRecord struct {
	JobID       string    `json:"jobId"`
	FileName    string    `json:"fileName"`
	InputPath   string    `json:"inputPath"`
	OutputPath  string    `json:"outputPath,omitempty"`
	Status      JobStatus `json:"status"`
	ProgressPct int       `json:"progressPct"`
	Error       string    `json:"error,omitempty"`
	Logs        []string  `json:"logs"`
}

// TaskSummary counts job outcomes reported by the worker on completion.
type TaskSummary struct {
	OK        int `json:"ok"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// TaskAggregate groups the jobs started together by one command.
type TaskAggregate struct {
	TaskID   string       `json:"taskId"`
	TaskKind TaskKind     `json:"taskKind"`
	Status   TaskStatus   `json:"status"`
	Jobs     []JobRecord  `json:"jobs"`
	Summary  *TaskSummary `json:"summary,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (t TaskAggregate) Clone() TaskAggregate {
	out := t
	out.Jobs = make([]JobRecord, len(t.Jobs))
	for i, job := range t.Jobs {
		if job.Logs != nil {
			logs := make([]string, len(job.Logs))
			copy(logs, job.Logs)
			job.Logs = logs
		}
		out.Jobs[i] = job
	}
	if t.Summary != nil {
		summary := *t.Summary
		out.Summary = &summary
	}
	return out
}

// Job returns the record with the given id.
func (t TaskAggregate) Job(jobID string) (JobRecord, bool) {
	for _, job := range t.Jobs {
		if job.JobID == jobID {
			return job, true
		}
	}
	return JobRecord{}, false
}

// CutRange is one clock-formatted span to remove from a video.
type CutRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Settings contains user-selectable runtime configuration for the worker.
type Settings struct {
	PythonPath   string `json:"pythonPath"`
	WorkerScript string `json:"workerScript"`
	FFmpegPath   string `json:"ffmpegPath"`
	YapPath      string `json:"yapPath"`
	DemucsPath   string `json:"demucsPath"`
	ComputeMode  string `json:"computeMode"`
	YapMode      string `json:"yapMode"`
	LogLevel     string `json:"logLevel"`
}
