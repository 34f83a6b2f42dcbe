package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/ragaeeb/al-iyaal-kids/internal/config"
	"github.com/ragaeeb/al-iyaal-kids/internal/controller"
	"github.com/ragaeeb/al-iyaal-kids/internal/diagnostics"
	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/paths"
	"github.com/ragaeeb/al-iyaal-kids/internal/subtitles"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Names of the events pushed to the frontend.
const (
	TaskEventName = "task-event"
	TaskStateName = "task-state"
)

const shutdownTimeout = 5 * time.Second

// workerService is the worker surface the desktop app drives.
type workerService interface {
	controller.Transport
	ListVideos(dir string, allowedExtensions []string) ([]domain.VideoListItem, error)
	ListSrtFiles(dir string) ([]domain.SrtListItem, error)
	Events(sinceSeq int64) []jobs.Event
	SetRuntimePaths(runtime worker.RuntimePaths)
	Close(ctx context.Context) error
}

// moderationStore persists the moderation settings document.
type moderationStore interface {
	Load() (domain.ModerationSettings, error)
	Save(domain.ModerationSettings) error
}

// App wires configuration, the worker service, the controller and UI runtime
// callbacks.
type App struct {
	Store      config.Store
	Moderation moderationStore
	Service    workerService
	Controller *controller.Controller

	assets     fs.FS
	checker    *diagnostics.Checker
	installer  *installer
	runtimeDir string
	logger     *slog.Logger
	getenv     func(string) string
	emit       func(ctx context.Context, name string, data ...interface{})

	mu          sync.Mutex
	settings    domain.Settings
	report      domain.DiagnosticReport
	runtimeCtx  context.Context
	stopEvents  context.CancelFunc
	eventsDone  chan struct{}
	unsubscribe func()
}

// SaveAck acknowledges a persisted document.
type SaveAck struct {
	Success bool `json:"success"`
}

// StartBatchRequest starts a remove-music batch over a folder.
type StartBatchRequest struct {
	InputDir          string   `json:"inputDir"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`
}

// StartTranscriptionBatchRequest starts subtitle generation.
type StartTranscriptionBatchRequest struct {
	InputDir          string   `json:"inputDir,omitempty"`
	InputPaths        []string `json:"inputPaths,omitempty"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`
	YapMode           string   `json:"yapMode,omitempty"`
}

// StartFlagBatchRequest starts content flagging over subtitle files.
type StartFlagBatchRequest struct {
	InputDir          string   `json:"inputDir,omitempty"`
	InputPaths        []string `json:"inputPaths,omitempty"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`
}

// StartCutJobRequest exports one video without the given ranges.
type StartCutJobRequest struct {
	VideoPath  string            `json:"videoPath"`
	Ranges     []domain.CutRange `json:"ranges"`
	OutputMode string            `json:"outputMode,omitempty"`
}

// CutJobStartedResponse identifies a started cut task.
type CutJobStartedResponse struct {
	TaskID    string `json:"taskId"`
	VideoPath string `json:"videoPath"`
}

// TaskOverview is one tracked task with its jobs tallied by status.
type TaskOverview struct {
	Task   domain.TaskAggregate     `json:"task"`
	Counts map[domain.JobStatus]int `json:"counts"`
}

// ListVideosRequest lists a folder's videos.
type ListVideosRequest struct {
	InputDir          string   `json:"inputDir"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`
}

// New builds the application with persisted settings and startup diagnostics.
func New(logger *slog.Logger) (*App, error) {
	return NewWithAssets(nil, logger)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	runtimeDir := defaultRuntimeDir()
	if err := ensureRuntimeBinOnPATH(runtimeDir); err != nil {
		return nil, fmt.Errorf("prepare runtime tool path: %w", err)
	}

	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	getenv, err := config.FileEnv(config.EnvFilePath(), os.Getenv)
	if err != nil {
		return nil, err
	}
	settings = config.ApplyEnv(settings, getenv)

	moderation := config.NewModerationStore(config.ModerationPath())
	service := worker.NewService(worker.RuntimePathsFromSettings(settings), moderation, logger)

	app := newApp(store, moderation, service, settings, logger)
	app.getenv = getenv
	app.installer.getenv = getenv
	app.assets = assets
	app.runtimeDir = runtimeDir
	app.checker = diagnostics.NewChecker(runtimeDir)
	app.report = app.checker.Run(settings)
	return app, nil
}

func newApp(
	store config.Store,
	moderation moderationStore,
	service workerService,
	settings domain.Settings,
	logger *slog.Logger,
) *App {
	return &App{
		Store:      store,
		Moderation: moderation,
		Service:    service,
		Controller: controller.New(service,
			controller.WithLogger(logger),
			controller.WithYapMode(settings.YapMode),
			controller.WithComputeMode(settings.ComputeMode),
		),
		installer: newInstaller(),
		logger:    logger.With("component", "app"),
		getenv:    os.Getenv,
		emit:      wailsruntime.EventsEmit,
		settings:  settings,
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Al-Iyaal",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, forwards worker events and state
// changes to the frontend, and opens the controller.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	if err := a.attach(ctx); err != nil {
		a.logger.Error("attach controller", "error", err)
	}
}

func (a *App) attach(ctx context.Context) error {
	eventsCtx, stop := context.WithCancel(context.Background())
	events, unsubscribeEvents, err := a.Service.Subscribe(eventsCtx)
	if err != nil {
		stop()
		return fmt.Errorf("subscribe to worker events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			a.push(TaskEventName, event)
		}
	}()

	unsubscribeState := a.Controller.Subscribe(func(state jobs.State) {
		a.push(TaskStateName, state)
	})

	a.mu.Lock()
	a.stopEvents = func() {
		unsubscribeEvents()
		stop()
	}
	a.eventsDone = done
	a.unsubscribe = unsubscribeState
	a.mu.Unlock()

	return a.Controller.Open(ctx)
}

// Shutdown detaches from the frontend, closes the controller and stops the
// worker.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	stopEvents, done, unsubscribe := a.stopEvents, a.eventsDone, a.unsubscribe
	a.stopEvents, a.eventsDone, a.unsubscribe = nil, nil, nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.Controller.Close()
	if stopEvents != nil {
		stopEvents()
		<-done
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Service.Close(ctx); err != nil {
		a.logger.Warn("stop worker", "error", err)
	}
}

// push emits one runtime notification when the frontend is attached.
func (a *App) push(name string, payload interface{}) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	emit := a.emit
	a.mu.Unlock()
	if ctx != nil && emit != nil {
		emit(ctx, name, payload)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

// RefreshDiagnostics reloads settings and reruns runtime checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	return a.loadSettings()
}

// SaveSettings normalizes and persists settings, points the worker at the new
// runtime and refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.WithDefaults(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.Service.SetRuntimePaths(worker.RuntimePathsFromSettings(normalized))
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// OpenFolderPicker opens a native directory picker and records the choice as
// the input folder.
func (a *App) OpenFolderPicker() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select video folder",
	})
	if err != nil {
		return "", err
	}

	path = strings.TrimSpace(path)
	if path != "" {
		a.Controller.SetInputDir(path)
	}
	return path, nil
}

// OpenOutputFolder opens the given path, or the remove-music output folder of
// the selected input folder, in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		if dir := a.Controller.Snapshot().SelectedInputDir; dir != "" {
			target = filepath.Join(dir, paths.RemoveMusicOutputDir)
		}
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartBatch removes background music from every video in a folder.
func (a *App) StartBatch(req StartBatchRequest) (worker.StartResponse, error) {
	a.Controller.SetInputDir(req.InputDir)
	return a.Controller.Start(context.Background(), worker.StartRequest{
		Kind:              domain.TaskKindRemoveMusic,
		InputDir:          strings.TrimSpace(req.InputDir),
		AllowedExtensions: req.AllowedExtensions,
		ComputeMode:       a.currentSettings().ComputeMode,
	})
}

// StartTranscriptionBatch generates subtitles for a folder or explicit videos.
func (a *App) StartTranscriptionBatch(req StartTranscriptionBatchRequest) (worker.StartResponse, error) {
	yapMode := strings.TrimSpace(req.YapMode)
	if yapMode == "" {
		yapMode = a.currentSettings().YapMode
	}
	return a.Controller.Start(context.Background(), worker.StartRequest{
		Kind:              domain.TaskKindTranscription,
		InputDir:          strings.TrimSpace(req.InputDir),
		InputPaths:        req.InputPaths,
		AllowedExtensions: req.AllowedExtensions,
		YapMode:           yapMode,
	})
}

// StartFlagBatch flags subtitle files against the moderation rules.
func (a *App) StartFlagBatch(req StartFlagBatchRequest) (worker.StartResponse, error) {
	return a.Controller.Start(context.Background(), worker.StartRequest{
		Kind:              domain.TaskKindFlag,
		InputDir:          strings.TrimSpace(req.InputDir),
		InputPaths:        req.InputPaths,
		AllowedExtensions: req.AllowedExtensions,
	})
}

// StartCutJob exports one video without the requested ranges.
func (a *App) StartCutJob(req StartCutJobRequest) (CutJobStartedResponse, error) {
	if req.OutputMode != "" && req.OutputMode != worker.DefaultCutOutputMode {
		return CutJobStartedResponse{}, fmt.Errorf("unsupported output mode: %s", req.OutputMode)
	}

	for _, r := range req.Ranges {
		if !subtitles.ValidateRange(r) {
			return CutJobStartedResponse{}, fmt.Errorf("invalid cut range %s-%s: end must be after start", r.Start, r.End)
		}
	}

	resp, err := a.Controller.StartCut(context.Background(), strings.TrimSpace(req.VideoPath), req.Ranges)
	if err != nil {
		return CutJobStartedResponse{}, err
	}
	return CutJobStartedResponse{TaskID: resp.TaskID, VideoPath: strings.TrimSpace(req.VideoPath)}, nil
}

// CancelBatch asks the worker to stop a remove-music batch after its current file.
func (a *App) CancelBatch(batchID string) (worker.CancelAck, error) {
	return a.Controller.Cancel(context.Background(), strings.TrimSpace(batchID))
}

// CancelTask asks the worker to stop a task after its current file.
func (a *App) CancelTask(req worker.CancelRequest) (worker.CancelAck, error) {
	if req.Mode != "" && req.Mode != worker.CancelModeStopAfterCurrent {
		return worker.CancelAck{}, worker.ErrUnsupportedCancelMode
	}
	return a.Controller.Cancel(context.Background(), strings.TrimSpace(req.TaskID))
}

// GetBatchState returns the worker's view of a remove-music batch.
func (a *App) GetBatchState(batchID string) (*domain.TaskAggregate, error) {
	return a.GetTaskState(batchID)
}

// GetTaskState returns the worker's view of a task, or nil when unknown.
func (a *App) GetTaskState(taskID string) (*domain.TaskAggregate, error) {
	task, ok, err := a.Controller.Query(context.Background(), strings.TrimSpace(taskID))
	if err != nil || !ok {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns every task this session has started, oldest first.
func (a *App) ListTasks() []TaskOverview {
	return lo.Map(jobs.TaskList(a.Controller.Snapshot()), func(task domain.TaskAggregate, _ int) TaskOverview {
		return TaskOverview{Task: task, Counts: jobs.CountJobs(task)}
	})
}

// TaskEvents returns buffered worker events newer than sinceSeq.
func (a *App) TaskEvents(sinceSeq int64) []jobs.Event {
	return a.Service.Events(sinceSeq)
}

// ListVideos lists a folder's videos and their sidecar state.
func (a *App) ListVideos(req ListVideosRequest) ([]domain.VideoListItem, error) {
	return a.Controller.LoadVideos(strings.TrimSpace(req.InputDir), req.AllowedExtensions...)
}

// ListSrtFiles lists a folder's subtitle files.
func (a *App) ListSrtFiles(inputDir string) ([]domain.SrtListItem, error) {
	return a.Service.ListSrtFiles(strings.TrimSpace(inputDir))
}

// SelectVideo records the video chosen in the cut editor.
func (a *App) SelectVideo(path string) jobs.State {
	a.Controller.SelectVideo(strings.TrimSpace(path))
	return a.Controller.Snapshot()
}

// GetModerationSettings returns the stored moderation settings or defaults.
func (a *App) GetModerationSettings() (domain.ModerationSettings, error) {
	settings, err := a.Moderation.Load()
	if err != nil {
		return domain.ModerationSettings{}, fmt.Errorf("load moderation settings: %w", err)
	}
	return settings, nil
}

// SaveModerationSettings validates and persists moderation settings.
func (a *App) SaveModerationSettings(settings domain.ModerationSettings) (SaveAck, error) {
	if err := a.Moderation.Save(settings); err != nil {
		return SaveAck{}, fmt.Errorf("save moderation settings: %w", err)
	}
	return SaveAck{Success: true}, nil
}

// ParseModerationLines splits an editor text area into trimmed, non-empty
// entries for the word and pattern lists.
func (a *App) ParseModerationLines(text string) []string {
	return config.ParseLines(text)
}

// ReadTextFile returns a file's contents, used for subtitles and sidecars.
func (a *App) ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// ParseSubtitles reads and parses an SRT file.
func (a *App) ParseSubtitles(path string) ([]subtitles.Entry, error) {
	return subtitles.LoadFile(strings.TrimSpace(path))
}

// SuggestCutRanges reads an analysis sidecar and proposes cut ranges for the
// selected priorities, high only when none are given.
func (a *App) SuggestCutRanges(analysisPath string, priorities []domain.Priority) ([]domain.CutRange, error) {
	sidecar, err := subtitles.LoadAnalysis(strings.TrimSpace(analysisPath))
	if err != nil {
		return nil, err
	}
	return subtitles.SuggestCutRanges(sidecar.Flagged, priorities...), nil
}

// FormatClock renders a subtitle time for display in a video of maxDuration
// seconds.
func (a *App) FormatClock(seconds, maxDuration float64) string {
	return subtitles.FormatClock(seconds, maxDuration)
}

// ParseRangeInput extracts cut ranges typed by the user.
func (a *App) ParseRangeInput(text string) []domain.CutRange {
	return subtitles.ParseRangeInput(text)
}

// Snapshot returns the current engine state.
func (a *App) Snapshot() jobs.State {
	return a.Controller.Snapshot()
}

// ClearError clears the last command error.
func (a *App) ClearError() jobs.State {
	a.Controller.ClearError()
	return a.Controller.Snapshot()
}

func (a *App) loadSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings, a.getenv)

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
	return settings, nil
}

func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	if a.checker != nil {
		a.report = a.checker.Run(settings)
	}
	return a.report
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
