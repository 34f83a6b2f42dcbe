package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/paths"
)

const eventHistorySize = 1000

// StartRequest selects the inputs for a new task. Either InputDir or
// InputPaths names the sources; cut tasks use VideoPath and Ranges instead.
type StartRequest struct {
	Kind              domain.TaskKind   `json:"taskKind"`
	InputDir          string            `json:"inputDir,omitempty"`
	InputPaths        []string          `json:"inputPaths,omitempty"`
	AllowedExtensions []string          `json:"allowedExtensions,omitempty"`
	VideoPath         string            `json:"videoPath,omitempty"`
	Ranges            []domain.CutRange `json:"ranges,omitempty"`
	YapMode           string            `json:"yapMode,omitempty"`
	ComputeMode       string            `json:"computeMode,omitempty"`
}

// StartResponse reports the task id and the inputs the worker will process.
type StartResponse struct {
	TaskID     string          `json:"taskId"`
	BatchID    string          `json:"batchId,omitempty"`
	TaskKind   domain.TaskKind `json:"taskKind"`
	FileCount  int             `json:"fileCount"`
	InputPaths []string        `json:"inputPaths"`
}

// CancelRequest asks the worker to stop a task.
type CancelRequest struct {
	TaskID string `json:"taskId"`
	Mode   string `json:"mode"`
}

// CancelAck reports whether the cancellation was handed to the worker.
type CancelAck struct {
	TaskID   string `json:"taskId"`
	Accepted bool   `json:"accepted"`
}

// ModerationSource supplies the rules sent with flag tasks.
type ModerationSource interface {
	Load() (domain.ModerationSettings, error)
}

// Service talks to the persistent Python worker. It starts the process on
// first use, keeps a mirror of every task for Query, and republishes worker
// events on its bus.
type Service struct {
	moderation ModerationSource
	starter    processStarter
	environ    func() []string
	newID      func() string
	mkdirAll   func(path string, perm os.FileMode) error
	logger     *slog.Logger
	bus        *jobs.EventBus

	// procMu serializes process startup so at most one worker is spawned.
	procMu sync.Mutex

	mu      sync.Mutex
	runtime RuntimePaths
	proc    *Process
	tasks   map[string]domain.TaskAggregate
	closed  bool

	// emitMu keeps mirror updates and bus publication in the same order.
	emitMu sync.Mutex
}

// NewService constructs the production worker service.
func NewService(runtime RuntimePaths, moderation ModerationSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		moderation: moderation,
		starter:    execStarter{},
		environ:    os.Environ,
		newID:      uuid.NewString,
		mkdirAll:   os.MkdirAll,
		logger:     logger.With("component", "worker"),
		bus:        jobs.NewEventBus(eventHistorySize),
		runtime:    runtime,
		tasks:      map[string]domain.TaskAggregate{},
	}
}

// NewServiceForTests constructs a service with injectable process and id
// dependencies.
func NewServiceForTests(
	runtime RuntimePaths,
	moderation ModerationSource,
	starter processStarter,
	newID func() string,
) *Service {
	s := NewService(runtime, moderation, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.starter = starter
	s.environ = func() []string { return nil }
	if newID != nil {
		s.newID = newID
	}
	return s
}

// SetRuntimePaths replaces the paths used the next time the worker starts.
func (s *Service) SetRuntimePaths(runtime RuntimePaths) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtime = runtime
}

// Start resolves inputs, ensures the worker is running, and queues the
// kind-specific start command.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	if !req.Kind.Valid() {
		return StartResponse{}, fmt.Errorf("unsupported task kind %q", req.Kind)
	}

	inputs, err := resolveInputs(req)
	if err != nil {
		return StartResponse{}, err
	}

	taskID := s.newID()
	cmd, err := s.buildStartCommand(taskID, req, inputs)
	if err != nil {
		return StartResponse{}, err
	}

	if !s.track(jobs.NewTask(taskID, req.Kind, inputs)) {
		return StartResponse{}, errors.New("worker service is closed")
	}

	proc, err := s.ensureProcess(ctx)
	if err == nil {
		err = proc.Send(ctx, cmd)
	}
	if err != nil {
		s.untrack(taskID)
		return StartResponse{}, fmt.Errorf("start %s task: %w", req.Kind, err)
	}

	s.logger.Info("task started", "task_id", taskID, "kind", req.Kind, "files", len(inputs))

	resp := StartResponse{
		TaskID:     taskID,
		TaskKind:   req.Kind,
		FileCount:  len(inputs),
		InputPaths: inputs,
	}
	if req.Kind == domain.TaskKindRemoveMusic {
		resp.BatchID = taskID
	}
	return resp, nil
}

// Cancel forwards a stop-after-current request for a known task.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (CancelAck, error) {
	if req.Mode != CancelModeStopAfterCurrent {
		return CancelAck{}, ErrUnsupportedCancelMode
	}

	s.mu.Lock()
	proc := s.proc
	task, known := s.tasks[req.TaskID]
	s.mu.Unlock()

	if proc == nil || !proc.Alive() {
		return CancelAck{}, ErrWorkerNotRunning
	}

	kind := domain.TaskKindTranscription
	if known {
		kind = task.TaskKind
	}

	err := proc.Send(ctx, CancelCommand(req.TaskID, kind, req.Mode))
	if err != nil && !errors.Is(err, ErrWorkerNotRunning) {
		return CancelAck{}, err
	}

	accepted := err == nil
	s.logger.Info("cancel requested", "task_id", req.TaskID, "accepted", accepted)
	return CancelAck{TaskID: req.TaskID, Accepted: accepted}, nil
}

// Query returns the mirrored aggregate for taskID.
func (s *Service) Query(_ context.Context, taskID string) (domain.TaskAggregate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.TaskAggregate{}, false, nil
	}
	return task.Clone(), true, nil
}

// Subscribe delivers every event published after the call. The subscription
// ends when ctx is done or the returned func is called.
func (s *Service) Subscribe(ctx context.Context) (<-chan jobs.Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, errors.New("worker service is closed")
	}

	ch, unsubscribe := s.bus.Subscribe()
	stop := context.AfterFunc(ctx, unsubscribe)
	return ch, func() {
		stop()
		unsubscribe()
	}, nil
}

// Events returns buffered events newer than sinceSeq.
func (s *Service) Events(sinceSeq int64) []jobs.Event {
	return s.bus.Since(sinceSeq)
}

// ListVideos enumerates candidate videos in dir with their sidecar state.
func (s *Service) ListVideos(dir string, allowedExtensions []string) ([]domain.VideoListItem, error) {
	return paths.ListVideos(dir, allowedExtensions)
}

// ListSrtFiles enumerates subtitle files in dir with their analysis state.
func (s *Service) ListSrtFiles(dir string) ([]domain.SrtListItem, error) {
	return paths.ListSrtFiles(dir)
}

// Close stops the worker and ends every subscription.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	var err error
	if proc != nil {
		err = proc.Stop(ctx)
	}
	s.bus.Close()
	return err
}

func (s *Service) ensureProcess(ctx context.Context) (*Process, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	s.mu.Lock()
	proc := s.proc
	runtime := s.runtime
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, errors.New("worker service is closed")
	}
	if proc != nil && proc.Alive() {
		return proc, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.emit(jobs.WorkerStatusChanged(domain.WorkerStatusStarting, startingMessage))
	proc, err := startProcess(s.starter, runtime, s.environ(), s.emit, s.closeOrphanedTasks, s.logger)
	if err != nil {
		s.logger.Error("start worker", "error", err)
		s.emit(jobs.WorkerStatusChanged(domain.WorkerStatusError, err.Error()))
		return nil, err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	s.emit(jobs.WorkerStatusChanged(domain.WorkerStatusReady, readyMessage))
	return proc, nil
}

func (s *Service) buildStartCommand(taskID string, req StartRequest, inputs []string) (Command, error) {
	switch req.Kind {
	case domain.TaskKindRemoveMusic:
		inputDir := req.InputDir
		if inputDir == "" {
			inputDir = filepath.Dir(inputs[0])
		}
		outputDir := paths.RemoveMusicOutputPath(inputDir)
		if err := s.mkdirAll(outputDir, 0o755); err != nil {
			return Command{}, fmt.Errorf("create output directory: %w", err)
		}
		return Command{
			Type:        CommandStartBatch,
			BatchID:     taskID,
			InputPaths:  inputs,
			OutputDir:   outputDir,
			ComputeMode: defaultMode(req.ComputeMode),
		}, nil

	case domain.TaskKindTranscription:
		return Command{
			Type:       CommandStartTranscriptionBatch,
			TaskID:     taskID,
			InputPaths: inputs,
			YapMode:    defaultMode(req.YapMode),
		}, nil

	case domain.TaskKindFlag:
		if s.moderation == nil {
			return Command{}, errors.New("moderation settings are not configured")
		}
		settings, err := s.moderation.Load()
		if err != nil {
			return Command{}, fmt.Errorf("load moderation settings: %w", err)
		}
		return Command{
			Type:       CommandStartFlagBatch,
			TaskID:     taskID,
			InputPaths: inputs,
			Settings:   &settings,
		}, nil

	case domain.TaskKindCut:
		return Command{
			Type:       CommandStartCutJob,
			TaskID:     taskID,
			VideoPath:  inputs[0],
			Ranges:     req.Ranges,
			OutputMode: DefaultCutOutputMode,
		}, nil

	default:
		return Command{}, fmt.Errorf("unsupported task kind %q", req.Kind)
	}
}

// emit updates the mirror and publishes the event. It is the process sink.
func (s *Service) emit(event jobs.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if event.TaskID != "" {
		s.mu.Lock()
		if task, ok := s.tasks[event.TaskID]; ok {
			if next, changed := jobs.ApplyTaskEvent(task, event); changed {
				s.tasks[event.TaskID] = next
			}
		}
		s.mu.Unlock()
	}

	s.bus.Publish(event)
}

// closeOrphanedTasks ends every unfinished task after the worker died, so no
// job stays queued or running. Queued jobs count as cancelled and running
// jobs as failed.
func (s *Service) closeOrphanedTasks() {
	s.mu.Lock()
	open := lo.Filter(lo.Values(s.tasks), func(task domain.TaskAggregate, _ int) bool {
		return task.Summary == nil
	})
	s.mu.Unlock()
	sort.Slice(open, func(i, j int) bool { return open[i].TaskID < open[j].TaskID })

	for _, task := range open {
		counts := jobs.CountJobs(task)
		summary := domain.TaskSummary{
			OK:        counts[domain.JobStatusCompleted],
			Failed:    counts[domain.JobStatusFailed] + counts[domain.JobStatusRunning],
			Cancelled: counts[domain.JobStatusQueued] + counts[domain.JobStatusCancelled],
		}
		s.logger.Warn("close task after worker exit", "task_id", task.TaskID, "kind", task.TaskKind)
		s.emit(jobs.TaskDone(task.TaskID, task.TaskKind, summary))
	}
}

func (s *Service) track(task domain.TaskAggregate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks[task.TaskID] = task
	return true
}

func (s *Service) untrack(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// resolveInputs applies the kind's allow-list to the request's sources.
func resolveInputs(req StartRequest) ([]string, error) {
	kindAllowed := paths.AllowedExtensionsFor(req.Kind)

	if req.Kind == domain.TaskKindCut {
		video := strings.TrimSpace(req.VideoPath)
		if video == "" {
			return nil, errors.New("video path is required")
		}
		if !paths.IsAllowedPath(video, kindAllowed) {
			return nil, fmt.Errorf("unsupported video file: %s", video)
		}
		if len(req.Ranges) == 0 {
			return nil, errors.New("at least one cut range is required")
		}
		return []string{video}, nil
	}

	allowed := lo.Intersect(paths.NormalizeExtensions(req.AllowedExtensions), kindAllowed)
	if len(allowed) == 0 {
		allowed = kindAllowed
	}

	var inputs []string
	if dir := strings.TrimSpace(req.InputDir); dir != "" {
		collected, err := paths.CollectFiles(dir, allowed)
		if err != nil {
			return nil, err
		}
		inputs = collected
	} else {
		inputs = paths.FilterAllowed(lo.Map(req.InputPaths, func(p string, _ int) string {
			return strings.TrimSpace(p)
		}), allowed)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoInputFiles, strings.Join(allowed, "/"))
	}
	return inputs, nil
}

func defaultMode(mode string) string {
	if strings.TrimSpace(mode) == "" {
		return "auto"
	}
	return mode
}
