package jobs

import (
	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// InitialWorkerMessage is shown until the worker reports its first status.
const InitialWorkerMessage = "Worker has not started yet."

// State is one immutable snapshot of everything the controller tracks.
// Reduce never mutates a State it receives; treat snapshots as read-only.
type State struct {
	SelectedInputDir  string                          `json:"selectedInputDir"`
	Tasks             map[string]domain.TaskAggregate `json:"tasksById"`
	TaskOrder         []string                        `json:"taskOrder"`
	ActiveTaskID      string                          `json:"activeTaskId,omitempty"`
	StartInFlight     bool                            `json:"startInFlight"`
	WorkerStatus      domain.WorkerStatus             `json:"workerStatus"`
	WorkerMessage     string                          `json:"workerMessage"`
	ErrorMessage      string                          `json:"errorMessage,omitempty"`
	Videos            []domain.VideoListItem          `json:"videos"`
	LoadingVideos     bool                            `json:"isLoadingVideos"`
	SelectedVideoPath string                          `json:"selectedVideoPath,omitempty"`
}

// NewState returns the empty state a controller starts from.
func NewState() State {
	return State{
		Tasks:         map[string]domain.TaskAggregate{},
		WorkerStatus:  domain.WorkerStatusIdle,
		WorkerMessage: InitialWorkerMessage,
	}
}

// Task returns the aggregate with the given id.
func (s State) Task(taskID string) (domain.TaskAggregate, bool) {
	task, ok := s.Tasks[taskID]
	return task, ok
}

// withTask returns a copy of s whose task map holds task under its id.
func (s State) withTask(task domain.TaskAggregate) State {
	tasks := make(map[string]domain.TaskAggregate, len(s.Tasks)+1)
	for id, existing := range s.Tasks {
		tasks[id] = existing
	}
	if _, exists := tasks[task.TaskID]; !exists {
		s.TaskOrder = append(append([]string(nil), s.TaskOrder...), task.TaskID)
	}
	tasks[task.TaskID] = task
	s.Tasks = tasks
	return s
}
