package jobs

import (
	"math"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/paths"
)

// UnfinishedJobError is recorded on jobs still running when their task ends.
const UnfinishedJobError = "Worker ended before emitting final job state."

// ActionType classifies inputs to Reduce.
type ActionType string

const (
	ActionSetInputDir         ActionType = "set_selected_input_dir"
	ActionStartRequested      ActionType = "start_requested"
	ActionStartSucceeded      ActionType = "start_succeeded"
	ActionStartFailed         ActionType = "start_failed"
	ActionClearError          ActionType = "clear_error"
	ActionCommandFailed       ActionType = "command_failed"
	ActionLoadVideosRequested ActionType = "load_videos_requested"
	ActionLoadVideosSucceeded ActionType = "load_videos_succeeded"
	ActionLoadVideosFailed    ActionType = "load_videos_failed"
	ActionSelectVideo         ActionType = "select_video"
	ActionApplyEvent          ActionType = "apply_event"
)

// Action is either a local UI action or a wrapped worker event.
type Action struct {
	Type       ActionType
	InputDir   string
	TaskID     string
	TaskKind   domain.TaskKind
	InputPaths []string
	Message    string
	Videos     []domain.VideoListItem
	VideoPath  string
	Event      Event
}

func SetInputDir(dir string) Action { return Action{Type: ActionSetInputDir, InputDir: dir} }
func StartRequested() Action        { return Action{Type: ActionStartRequested} }
func StartFailed(msg string) Action { return Action{Type: ActionStartFailed, Message: msg} }
func ClearError() Action            { return Action{Type: ActionClearError} }
func ApplyEvent(event Event) Action { return Action{Type: ActionApplyEvent, Event: event} }

// CommandFailed records the error of a rejected cancel or query command.
func CommandFailed(msg string) Action {
	return Action{Type: ActionCommandFailed, Message: msg}
}

// StartSucceeded seeds a new task with one queued job per resolved path.
func StartSucceeded(taskID string, kind domain.TaskKind, inputPaths []string) Action {
	return Action{Type: ActionStartSucceeded, TaskID: taskID, TaskKind: kind, InputPaths: inputPaths}
}

func LoadVideosRequested() Action { return Action{Type: ActionLoadVideosRequested} }

func LoadVideosSucceeded(videos []domain.VideoListItem) Action {
	return Action{Type: ActionLoadVideosSucceeded, Videos: videos}
}

func LoadVideosFailed(msg string) Action {
	return Action{Type: ActionLoadVideosFailed, Message: msg}
}

func SelectVideo(path string) Action {
	return Action{Type: ActionSelectVideo, VideoPath: path}
}

// Reduce maps the current state and one action to the next state. It has no
// side effects and never mutates state.
func Reduce(state State, action Action) State {
	switch action.Type {
	case ActionSetInputDir:
		state.SelectedInputDir = action.InputDir
		return state
	case ActionStartRequested:
		state.ErrorMessage = ""
		state.StartInFlight = true
		return state
	case ActionStartSucceeded:
		state.StartInFlight = false
		state.ActiveTaskID = action.TaskID
		if _, exists := state.Tasks[action.TaskID]; exists {
			return state
		}
		return state.withTask(NewTask(action.TaskID, action.TaskKind, action.InputPaths))
	case ActionStartFailed:
		state.ErrorMessage = action.Message
		state.StartInFlight = false
		return state
	case ActionClearError:
		state.ErrorMessage = ""
		return state
	case ActionCommandFailed:
		state.ErrorMessage = action.Message
		return state
	case ActionLoadVideosRequested:
		state.ErrorMessage = ""
		state.LoadingVideos = true
		return state
	case ActionLoadVideosSucceeded:
		state.LoadingVideos = false
		state.Videos = append([]domain.VideoListItem(nil), action.Videos...)
		return state
	case ActionLoadVideosFailed:
		state.ErrorMessage = action.Message
		state.LoadingVideos = false
		return state
	case ActionSelectVideo:
		state.SelectedVideoPath = action.VideoPath
		return state
	case ActionApplyEvent:
		return reduceEvent(state, action.Event)
	default:
		return state
	}
}

func reduceEvent(state State, event Event) State {
	if event.Type == EventTypeWorkerStatus {
		state.WorkerStatus = event.Status
		state.WorkerMessage = event.Message
		return state
	}

	task, ok := state.Tasks[event.TaskID]
	if !ok {
		// Stale or duplicated delivery for a task this controller never saw.
		return state
	}

	next, changed := ApplyTaskEvent(task, event)
	if !changed {
		return state
	}
	return state.withTask(next)
}

// NewTask builds a queued aggregate from resolved input paths in order.
func NewTask(taskID string, kind domain.TaskKind, inputPaths []string) domain.TaskAggregate {
	return domain.TaskAggregate{
		TaskID:   taskID,
		TaskKind: kind,
		Status:   domain.TaskStatusQueued,
		Jobs: lo.Map(inputPaths, func(inputPath string, _ int) domain.JobRecord {
			return domain.JobRecord{
				JobID:     paths.DeriveJobID(inputPath),
				FileName:  paths.DisplayName(inputPath),
				InputPath: inputPath,
				Status:    domain.JobStatusQueued,
				Logs:      []string{},
			}
		}),
	}
}

// ApplyTaskEvent applies one task-scoped event to an aggregate. The second
// result is false when the event had no effect and task was returned as is.
func ApplyTaskEvent(task domain.TaskAggregate, event Event) (domain.TaskAggregate, bool) {
	switch event.Type {
	case EventTypeJobProgress:
		pct := ClampProgress(event.ProgressPct)
		next, ok := updateJob(task, event.JobID, func(job domain.JobRecord) (domain.JobRecord, bool) {
			if job.Status.IsTerminal() {
				return job, false
			}
			job.ProgressPct = pct
			job.Status = domain.JobStatusRunning
			return job, true
		})
		if !ok {
			return task, false
		}
		if !next.Status.IsTerminal() {
			next.Status = domain.TaskStatusRunning
		}
		return next, true

	case EventTypeJobDone:
		return updateJob(task, event.JobID, func(job domain.JobRecord) (domain.JobRecord, bool) {
			job.Status = domain.JobStatusCompleted
			job.ProgressPct = 100
			job.OutputPath = event.OutputPath
			job.Error = ""
			return job, true
		})

	case EventTypeJobError:
		return updateJob(task, event.JobID, func(job domain.JobRecord) (domain.JobRecord, bool) {
			job.Status = domain.JobStatusFailed
			job.Error = event.Error
			return job, true
		})

	case EventTypeJobLog:
		return updateJob(task, event.JobID, func(job domain.JobRecord) (domain.JobRecord, bool) {
			logs := make([]string, len(job.Logs), len(job.Logs)+1)
			copy(logs, job.Logs)
			job.Logs = append(logs, event.Message)
			return job, true
		})

	case EventTypeTaskDone:
		if task.Summary != nil || event.Summary == nil {
			return task, false
		}
		return closeTask(task, *event.Summary), true

	case EventTypeWorkerStatus:
		return task, false

	default:
		return task, false
	}
}

// closeTask forces every non-terminal job into a terminal status and records
// the worker's summary.
func closeTask(task domain.TaskAggregate, summary domain.TaskSummary) domain.TaskAggregate {
	task.Jobs = lo.Map(task.Jobs, func(job domain.JobRecord, _ int) domain.JobRecord {
		switch job.Status {
		case domain.JobStatusQueued:
			job.Status = domain.JobStatusCancelled
		case domain.JobStatusRunning:
			job.Status = domain.JobStatusFailed
			if job.Error == "" {
				job.Error = UnfinishedJobError
			}
		}
		return job
	})

	if summary.Cancelled > 0 {
		task.Status = domain.TaskStatusCancelled
	} else {
		task.Status = domain.TaskStatusCompleted
	}
	task.Summary = &summary
	return task
}

func updateJob(
	task domain.TaskAggregate,
	jobID string,
	transform func(domain.JobRecord) (domain.JobRecord, bool),
) (domain.TaskAggregate, bool) {
	idx := -1
	for i, job := range task.Jobs {
		if job.JobID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return task, false
	}

	updated, changed := transform(task.Jobs[idx])
	if !changed {
		return task, false
	}

	jobs := make([]domain.JobRecord, len(task.Jobs))
	copy(jobs, task.Jobs)
	jobs[idx] = updated
	task.Jobs = jobs
	return task, true
}

// ClampProgress rounds pct to the nearest integer and clamps it to [0, 100].
func ClampProgress(pct float64) int {
	if math.IsNaN(pct) {
		return 0
	}
	rounded := math.Round(pct)
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return int(rounded)
}
