// Package controller owns one engine state for its lifetime. It subscribes to
// the worker transport, applies events in order through jobs.Reduce, and
// turns command outcomes into actions.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/paths"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"
)

var (
	// ErrNoActiveTask is returned by CancelActive when nothing has been started.
	ErrNoActiveTask = errors.New("no active task")
	// ErrNoInputDir is returned when a folder-based task has no folder selected.
	ErrNoInputDir = errors.New("select an input folder first")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller is closed")
)

// Transport is the worker boundary the controller drives.
type Transport interface {
	Start(ctx context.Context, req worker.StartRequest) (worker.StartResponse, error)
	Cancel(ctx context.Context, req worker.CancelRequest) (worker.CancelAck, error)
	Query(ctx context.Context, taskID string) (domain.TaskAggregate, bool, error)
	Subscribe(ctx context.Context) (<-chan jobs.Event, func(), error)
}

// VideoLister is implemented by transports that can enumerate folder videos.
type VideoLister interface {
	ListVideos(dir string, allowedExtensions []string) ([]domain.VideoListItem, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithYapMode sets the transcription engine mode sent with transcription tasks.
func WithYapMode(mode string) Option {
	return func(c *Controller) { c.yapMode = mode }
}

// WithComputeMode sets the compute mode sent with remove-music batches.
func WithComputeMode(mode string) Option {
	return func(c *Controller) { c.computeMode = mode }
}

// Controller is the single writer of engine state.
type Controller struct {
	transport   Transport
	logger      *slog.Logger
	yapMode     string
	computeMode string

	state atomic.Pointer[jobs.State]

	// dispatchMu serializes Reduce calls and listener notification.
	dispatchMu sync.Mutex
	listeners  map[int]func(jobs.State)
	nextID     int
	// held keeps events for tasks the worker reported before Start returned.
	held []jobs.Event

	lifecycleMu sync.Mutex
	opened      bool
	closed      bool
	unsubscribe func()
	consumed    chan struct{}
}

// New builds a controller over transport with an empty state.
func New(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		logger:    slog.Default(),
		listeners: map[int]func(jobs.State){},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "controller")

	initial := jobs.NewState()
	c.state.Store(&initial)
	return c
}

// Open subscribes to worker events and starts the consumer. It must return
// before any command is issued so no event can race the subscription.
func (c *Controller) Open(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return nil
	}

	events, unsubscribe, err := c.transport.Subscribe(ctx)
	if err != nil {
		c.logger.Error("subscribe to worker events", "error", err)
		c.Dispatch(jobs.ApplyEvent(jobs.WorkerStatusChanged(
			domain.WorkerStatusError,
			fmt.Sprintf("Failed to subscribe to worker events: %v", err),
		)))
		return fmt.Errorf("subscribe to worker events: %w", err)
	}

	c.opened = true
	c.unsubscribe = unsubscribe
	c.consumed = make(chan struct{})
	go c.consume(events, c.consumed)
	return nil
}

// Close ends the subscription and waits for the consumer to drain.
func (c *Controller) Close() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if !c.opened {
		return
	}

	c.unsubscribe()
	<-c.consumed
}

func (c *Controller) consume(events <-chan jobs.Event, done chan<- struct{}) {
	defer close(done)
	for event := range events {
		if err := event.Validate(); err != nil {
			c.logger.Warn("drop invalid worker event", "error", err)
			continue
		}
		c.applyEvent(event)
	}
}

// applyEvent holds task events that arrive while a start is in flight and
// the task has not been seeded yet. Start replays them once it is.
func (c *Controller) applyEvent(event jobs.Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	state := *c.state.Load()
	if event.TaskID != "" {
		task, known := state.Task(event.TaskID)
		switch {
		case !known && state.StartInFlight:
			c.held = append(c.held, event)
			return
		case !known:
			c.logger.Debug("event for unknown task", "task_id", event.TaskID, "type", event.Type)
		case event.JobID != "":
			if _, ok := task.Job(event.JobID); !ok {
				c.logger.Debug("event for unknown job", "task_id", event.TaskID, "job_id", event.JobID, "type", event.Type)
			}
		}
	}
	c.dispatchLocked(jobs.ApplyEvent(event))
}

// releaseHeld seeds or fails a start and then replays the held events that
// belong to taskID. Events for any other task are stale.
func (c *Controller) releaseHeld(action jobs.Action, taskID string) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.dispatchLocked(action)
	held := c.held
	c.held = nil
	for _, event := range held {
		if taskID == "" || event.TaskID != taskID {
			c.logger.Debug("drop held event", "task_id", event.TaskID, "type", event.Type)
			continue
		}
		c.dispatchLocked(jobs.ApplyEvent(event))
	}
}

// Dispatch applies one action and notifies listeners with the new snapshot.
// Listeners run on the dispatching goroutine and must not call Dispatch.
func (c *Controller) Dispatch(action jobs.Action) jobs.State {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	return c.dispatchLocked(action)
}

func (c *Controller) dispatchLocked(action jobs.Action) jobs.State {
	next := jobs.Reduce(*c.state.Load(), action)
	c.state.Store(&next)

	for _, listener := range c.listeners {
		listener(next)
	}
	return next
}

// Snapshot returns the latest immutable state.
func (c *Controller) Snapshot() jobs.State {
	return *c.state.Load()
}

// Subscribe registers fn for every state change and returns its remover.
func (c *Controller) Subscribe(fn func(jobs.State)) func() {
	c.dispatchMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.dispatchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.dispatchMu.Lock()
			delete(c.listeners, id)
			c.dispatchMu.Unlock()
		})
	}
}

// SetInputDir records the folder used by folder-based tasks.
func (c *Controller) SetInputDir(dir string) {
	c.Dispatch(jobs.SetInputDir(strings.TrimSpace(dir)))
}

// ClearError clears the last command error.
func (c *Controller) ClearError() {
	c.Dispatch(jobs.ClearError())
}

// SelectVideo records the video chosen for cutting.
func (c *Controller) SelectVideo(path string) {
	c.Dispatch(jobs.SelectVideo(path))
}

// Start issues a start command and seeds the aggregate on success.
func (c *Controller) Start(ctx context.Context, req worker.StartRequest) (worker.StartResponse, error) {
	c.Dispatch(jobs.StartRequested())

	resp, err := c.transport.Start(ctx, req)
	if err != nil {
		c.logger.Warn("start task", "kind", req.Kind, "error", err)
		c.releaseHeld(jobs.StartFailed(err.Error()), "")
		return worker.StartResponse{}, err
	}

	c.releaseHeld(jobs.StartSucceeded(resp.TaskID, req.Kind, resp.InputPaths), resp.TaskID)
	c.logger.Info("task started", "task_id", resp.TaskID, "kind", req.Kind, "files", resp.FileCount)
	return resp, nil
}

// StartTranscription generates subtitles for the given videos.
func (c *Controller) StartTranscription(ctx context.Context, inputPaths []string) (worker.StartResponse, error) {
	return c.Start(ctx, worker.StartRequest{
		Kind:              domain.TaskKindTranscription,
		InputPaths:        inputPaths,
		AllowedExtensions: paths.AllowedExtensionsFor(domain.TaskKindTranscription),
		YapMode:           c.yapMode,
	})
}

// StartFlagging runs moderation rules over the given subtitle files.
func (c *Controller) StartFlagging(ctx context.Context, inputPaths []string) (worker.StartResponse, error) {
	return c.Start(ctx, worker.StartRequest{
		Kind:              domain.TaskKindFlag,
		InputPaths:        inputPaths,
		AllowedExtensions: paths.AllowedExtensionsFor(domain.TaskKindFlag),
	})
}

// StartRemoveMusic processes every video in the selected folder.
func (c *Controller) StartRemoveMusic(ctx context.Context) (worker.StartResponse, error) {
	dir := c.Snapshot().SelectedInputDir
	if dir == "" {
		c.Dispatch(jobs.StartFailed(ErrNoInputDir.Error()))
		return worker.StartResponse{}, ErrNoInputDir
	}

	return c.Start(ctx, worker.StartRequest{
		Kind:              domain.TaskKindRemoveMusic,
		InputDir:          dir,
		AllowedExtensions: paths.AllowedExtensionsFor(domain.TaskKindRemoveMusic),
		ComputeMode:       c.computeMode,
	})
}

// StartCut exports videoPath without the given ranges.
func (c *Controller) StartCut(ctx context.Context, videoPath string, ranges []domain.CutRange) (worker.StartResponse, error) {
	return c.Start(ctx, worker.StartRequest{
		Kind:      domain.TaskKindCut,
		VideoPath: videoPath,
		Ranges:    ranges,
	})
}

// CancelActive requests stop-after-current for the active aggregate.
func (c *Controller) CancelActive(ctx context.Context) (worker.CancelAck, error) {
	taskID := c.Snapshot().ActiveTaskID
	if taskID == "" {
		return worker.CancelAck{}, ErrNoActiveTask
	}
	return c.Cancel(ctx, taskID)
}

// Cancel requests stop-after-current for taskID. The effect arrives later as
// a task_done event.
func (c *Controller) Cancel(ctx context.Context, taskID string) (worker.CancelAck, error) {
	ack, err := c.transport.Cancel(ctx, worker.CancelRequest{
		TaskID: taskID,
		Mode:   worker.CancelModeStopAfterCurrent,
	})
	if err != nil {
		c.logger.Warn("cancel task", "task_id", taskID, "error", err)
		c.Dispatch(jobs.CommandFailed(err.Error()))
		return worker.CancelAck{}, err
	}

	c.logger.Info("cancel requested", "task_id", taskID, "accepted", ack.Accepted)
	return ack, nil
}

// Query asks the transport for its view of taskID.
func (c *Controller) Query(ctx context.Context, taskID string) (domain.TaskAggregate, bool, error) {
	task, ok, err := c.transport.Query(ctx, taskID)
	if err != nil {
		c.Dispatch(jobs.CommandFailed(err.Error()))
		return domain.TaskAggregate{}, false, err
	}
	return task, ok, nil
}

// LoadVideos lists the videos in dir when the transport supports listing.
// With no extensions the default video set is used.
func (c *Controller) LoadVideos(dir string, allowedExtensions ...string) ([]domain.VideoListItem, error) {
	lister, ok := c.transport.(VideoLister)
	if !ok {
		return nil, errors.New("transport cannot list videos")
	}
	if len(allowedExtensions) == 0 {
		allowedExtensions = paths.VideoExtensions
	}

	c.Dispatch(jobs.LoadVideosRequested())
	videos, err := lister.ListVideos(dir, allowedExtensions)
	if err != nil {
		c.Dispatch(jobs.LoadVideosFailed(err.Error()))
		return nil, err
	}
	c.Dispatch(jobs.LoadVideosSucceeded(videos))
	return videos, nil
}

// ActiveTask returns the most recently started aggregate.
func (c *Controller) ActiveTask() (domain.TaskAggregate, bool) {
	return jobs.ActiveTask(c.Snapshot())
}

// AverageProgress returns the active aggregate's mean progress.
func (c *Controller) AverageProgress() int {
	return jobs.AverageProgress(c.Snapshot())
}

// SortedJobs returns the active aggregate's jobs ordered by name.
func (c *Controller) SortedJobs() []domain.JobRecord {
	task, ok := c.ActiveTask()
	if !ok {
		return nil
	}
	return jobs.SortedJobs(task.Jobs)
}
