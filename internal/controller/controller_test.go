package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"
)

type fakeTransport struct {
	mu        sync.Mutex
	events    chan jobs.Event
	closeOnce sync.Once

	subscribeErr error
	startErr     error
	cancelErr    error
	queryErr     error
	startResp    worker.StartResponse
	// onStart runs before Start returns, as a worker answering early would.
	onStart func()

	starts  []worker.StartRequest
	cancels []worker.CancelRequest
	videos  []domain.VideoListItem
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan jobs.Event, 64)}
}

func (f *fakeTransport) Start(_ context.Context, req worker.StartRequest) (worker.StartResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.onStart != nil {
		f.onStart()
	}
	if f.startErr != nil {
		return worker.StartResponse{}, f.startErr
	}
	return f.startResp, nil
}

func (f *fakeTransport) Cancel(_ context.Context, req worker.CancelRequest) (worker.CancelAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, req)
	if f.cancelErr != nil {
		return worker.CancelAck{}, f.cancelErr
	}
	return worker.CancelAck{TaskID: req.TaskID, Accepted: true}, nil
}

func (f *fakeTransport) Query(_ context.Context, taskID string) (domain.TaskAggregate, bool, error) {
	if f.queryErr != nil {
		return domain.TaskAggregate{}, false, f.queryErr
	}
	return domain.TaskAggregate{TaskID: taskID}, true, nil
}

func (f *fakeTransport) Subscribe(context.Context) (<-chan jobs.Event, func(), error) {
	if f.subscribeErr != nil {
		return nil, nil, f.subscribeErr
	}
	return f.events, func() { f.closeOnce.Do(func() { close(f.events) }) }, nil
}

func (f *fakeTransport) ListVideos(string, []string) ([]domain.VideoListItem, error) {
	return f.videos, nil
}

func newController(t *testing.T, transport *fakeTransport) *Controller {
	t.Helper()
	c := New(transport, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithYapMode("auto"))
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Controller, cond func(jobs.State) bool) jobs.State {
	t.Helper()
	var state jobs.State
	require.Eventually(t, func() bool {
		state = c.Snapshot()
		return cond(state)
	}, 2*time.Second, 5*time.Millisecond)
	return state
}

func TestStartSeedsActiveTask(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{
		TaskID:     "task-1",
		TaskKind:   domain.TaskKindTranscription,
		FileCount:  2,
		InputPaths: []string{"/v/b.mp4", "/v/a.mp4"},
	}
	c := newController(t, transport)

	resp, err := c.StartTranscription(context.Background(), []string{"/v/b.mp4", "/v/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", resp.TaskID)

	require.Len(t, transport.starts, 1)
	assert.Equal(t, domain.TaskKindTranscription, transport.starts[0].Kind)
	assert.Equal(t, "auto", transport.starts[0].YapMode)

	state := c.Snapshot()
	assert.False(t, state.StartInFlight)
	assert.Equal(t, "task-1", state.ActiveTaskID)

	task, ok := c.ActiveTask()
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)
	assert.Len(t, task.Jobs, 2)

	sorted := c.SortedJobs()
	require.Len(t, sorted, 2)
	assert.Equal(t, "a.mp4", sorted[0].FileName)
}

func TestEventsFlowIntoState(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-1", InputPaths: []string{"/v/a.srt"}}
	c := newController(t, transport)

	_, err := c.StartFlagging(context.Background(), []string{"/v/a.srt"})
	require.NoError(t, err)

	jobID := c.SortedJobs()[0].JobID
	transport.events <- jobs.JobProgress("task-1", domain.TaskKindFlag, jobID, 49.6)
	state := waitFor(t, c, func(s jobs.State) bool {
		task, _ := s.Task("task-1")
		return len(task.Jobs) == 1 && task.Jobs[0].ProgressPct == 50
	})
	assert.Equal(t, "task-1", state.ActiveTaskID)
	assert.Equal(t, 50, c.AverageProgress())

	transport.events <- jobs.JobDone("task-1", domain.TaskKindFlag, jobID, "/v/a.analysis.json")
	transport.events <- jobs.TaskDone("task-1", domain.TaskKindFlag, domain.TaskSummary{OK: 1})
	waitFor(t, c, func(s jobs.State) bool {
		task, _ := s.Task("task-1")
		return task.Status == domain.TaskStatusCompleted
	})
}

func TestStartFailureSetsError(t *testing.T) {
	transport := newFakeTransport()
	transport.startErr = worker.ErrNoInputFiles
	c := newController(t, transport)

	_, err := c.StartFlagging(context.Background(), nil)
	require.ErrorIs(t, err, worker.ErrNoInputFiles)

	state := c.Snapshot()
	assert.False(t, state.StartInFlight)
	assert.Equal(t, worker.ErrNoInputFiles.Error(), state.ErrorMessage)
	assert.Empty(t, state.ActiveTaskID)

	c.ClearError()
	assert.Empty(t, c.Snapshot().ErrorMessage)
}

func TestStartRemoveMusicRequiresFolder(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "batch-1", InputPaths: []string{"/v/a.mp4"}}
	c := newController(t, transport)

	_, err := c.StartRemoveMusic(context.Background())
	require.ErrorIs(t, err, ErrNoInputDir)
	assert.Empty(t, transport.starts)

	c.SetInputDir("  /v  ")
	_, err = c.StartRemoveMusic(context.Background())
	require.NoError(t, err)
	require.Len(t, transport.starts, 1)
	assert.Equal(t, "/v", transport.starts[0].InputDir)
	assert.Equal(t, domain.TaskKindRemoveMusic, transport.starts[0].Kind)
}

func TestCancelActive(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-1", InputPaths: []string{"/v/a.mp4"}}
	c := newController(t, transport)

	_, err := c.CancelActive(context.Background())
	require.ErrorIs(t, err, ErrNoActiveTask)

	_, err = c.StartCut(context.Background(), "/v/a.mp4", []domain.CutRange{{Start: "0:01", End: "0:02"}})
	require.NoError(t, err)

	ack, err := c.CancelActive(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	require.Len(t, transport.cancels, 1)
	assert.Equal(t, worker.CancelRequest{TaskID: "task-1", Mode: worker.CancelModeStopAfterCurrent}, transport.cancels[0])

	// Cancellation only lands through task_done.
	task, _ := c.ActiveTask()
	assert.Equal(t, domain.TaskStatusQueued, task.Status)
}

func TestCancelFailureRecordsError(t *testing.T) {
	transport := newFakeTransport()
	transport.cancelErr = worker.ErrWorkerNotRunning
	c := newController(t, transport)

	_, err := c.Cancel(context.Background(), "task-1")
	require.ErrorIs(t, err, worker.ErrWorkerNotRunning)
	assert.Equal(t, "Worker is not running.", c.Snapshot().ErrorMessage)
}

func TestQueryFailureRecordsError(t *testing.T) {
	transport := newFakeTransport()
	transport.queryErr = errors.New("boom")
	c := newController(t, transport)

	_, ok, err := c.Query(context.Background(), "task-1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "boom", c.Snapshot().ErrorMessage)
}

func TestOpenSubscribeFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.subscribeErr = errors.New("closed")
	c := New(transport, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := c.Open(context.Background())
	require.Error(t, err)

	state := c.Snapshot()
	assert.Equal(t, domain.WorkerStatusError, state.WorkerStatus)
	assert.Contains(t, state.WorkerMessage, "closed")
	c.Close()
}

func TestOpenAfterCloseFails(t *testing.T) {
	c := New(newFakeTransport())
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Open(context.Background()), ErrClosed)
}

func TestListenersSeeEveryChange(t *testing.T) {
	transport := newFakeTransport()
	c := newController(t, transport)

	var (
		mu   sync.Mutex
		dirs []string
	)
	unsubscribe := c.Subscribe(func(s jobs.State) {
		mu.Lock()
		dirs = append(dirs, s.SelectedInputDir)
		mu.Unlock()
	})

	c.SetInputDir("/a")
	c.SetInputDir("/b")
	unsubscribe()
	unsubscribe()
	c.SetInputDir("/c")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/a", "/b"}, dirs)
}

func TestLoadVideosAndSelect(t *testing.T) {
	transport := newFakeTransport()
	transport.videos = []domain.VideoListItem{{Path: "/v/a.mp4", FileName: "a.mp4"}}
	c := newController(t, transport)

	videos, err := c.LoadVideos("/v")
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	c.SelectVideo("/v/a.mp4")
	state := c.Snapshot()
	assert.False(t, state.LoadingVideos)
	assert.Equal(t, transport.videos, state.Videos)
	assert.Equal(t, "/v/a.mp4", state.SelectedVideoPath)
}

func TestWorkerStatusEventsUpdateState(t *testing.T) {
	transport := newFakeTransport()
	c := newController(t, transport)

	transport.events <- jobs.WorkerStatusChanged(domain.WorkerStatusReady, "Worker ready.")
	state := waitFor(t, c, func(s jobs.State) bool { return s.WorkerStatus == domain.WorkerStatusReady })
	assert.Equal(t, "Worker ready.", state.WorkerMessage)
}

func TestInvalidEventsAreDropped(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-1", InputPaths: []string{"/v/a.srt"}}
	c := newController(t, transport)

	_, err := c.StartFlagging(context.Background(), []string{"/v/a.srt"})
	require.NoError(t, err)
	jobID := c.SortedJobs()[0].JobID

	transport.events <- jobs.Event{Type: jobs.EventTypeTaskDone, TaskID: "task-1"}
	transport.events <- jobs.JobProgress("task-1", domain.TaskKindFlag, jobID, 10)

	state := waitFor(t, c, func(s jobs.State) bool {
		task, _ := s.Task("task-1")
		return task.Jobs[0].ProgressPct == 10
	})
	task, _ := state.Task("task-1")
	assert.Nil(t, task.Summary)
	assert.Equal(t, domain.TaskStatusRunning, task.Status)
}

func TestEventsBeforeStartReturnsAreKept(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-1", InputPaths: []string{"/v/a.srt"}}
	transport.onStart = func() {
		transport.events <- jobs.JobError("task-1", domain.TaskKindFlag, "v-a-srt", "bad subtitle")
		transport.events <- jobs.TaskDone("task-1", domain.TaskKindFlag, domain.TaskSummary{Failed: 1})
		require.Eventually(t, func() bool { return len(transport.events) == 0 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}
	c := newController(t, transport)

	_, err := c.StartFlagging(context.Background(), []string{"/v/a.srt"})
	require.NoError(t, err)

	state := waitFor(t, c, func(s jobs.State) bool {
		task, ok := s.Task("task-1")
		return ok && task.Summary != nil
	})
	task, _ := state.Task("task-1")
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, domain.TaskSummary{Failed: 1}, *task.Summary)
	require.Len(t, task.Jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, task.Jobs[0].Status)
	assert.Equal(t, "bad subtitle", task.Jobs[0].Error)
}

func TestHeldEventsForOtherTasksAreDropped(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-2", InputPaths: []string{"/v/a.srt"}}
	transport.onStart = func() {
		transport.events <- jobs.TaskDone("task-old", domain.TaskKindFlag, domain.TaskSummary{OK: 1})
		require.Eventually(t, func() bool { return len(transport.events) == 0 }, time.Second, time.Millisecond)
	}
	c := newController(t, transport)

	_, err := c.StartFlagging(context.Background(), []string{"/v/a.srt"})
	require.NoError(t, err)

	transport.events <- jobs.JobProgress("task-2", domain.TaskKindFlag, "v-a-srt", 40)
	state := waitFor(t, c, func(s jobs.State) bool {
		task, _ := s.Task("task-2")
		return len(task.Jobs) == 1 && task.Jobs[0].ProgressPct == 40
	})
	_, known := state.Task("task-old")
	assert.False(t, known)
	assert.Len(t, state.Tasks, 1)
}

func TestUnknownJobEventsAreLogged(t *testing.T) {
	transport := newFakeTransport()
	transport.startResp = worker.StartResponse{TaskID: "task-1", InputPaths: []string{"/v/My Clip - 01.srt"}}
	var logs bytes.Buffer
	c := New(transport, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(c.Close)

	_, err := c.StartFlagging(context.Background(), []string{"/v/My Clip - 01.srt"})
	require.NoError(t, err)

	transport.events <- jobs.JobDone("task-1", domain.TaskKindFlag, "v-my-clip---01-srt", "/v/out.json")
	transport.events <- jobs.JobProgress("task-1", domain.TaskKindFlag, "v-my-clip-01-srt", 5)
	waitFor(t, c, func(s jobs.State) bool {
		task, _ := s.Task("task-1")
		return task.Jobs[0].ProgressPct == 5
	})

	assert.Contains(t, logs.String(), "event for unknown job")
	assert.Contains(t, logs.String(), "v-my-clip---01-srt")
}
