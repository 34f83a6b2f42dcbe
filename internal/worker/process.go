package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
)

const (
	startingMessage = "Starting persistent Python worker..."
	readyMessage    = "Worker ready."
	exitedMessage   = "Worker exited unexpectedly."

	commandQueueSize = 64
	maxEventLineSize = 4 << 20
)

// RuntimePaths locates the interpreter, worker entrypoint, and media tools.
type RuntimePaths struct {
	PythonPath   string
	WorkerScript string
	FFmpegPath   string
	YapPath      string
	DemucsPath   string
}

// RuntimePathsFromSettings maps persisted settings onto process paths.
func RuntimePathsFromSettings(settings domain.Settings) RuntimePaths {
	return RuntimePaths{
		PythonPath:   settings.PythonPath,
		WorkerScript: settings.WorkerScript,
		FFmpegPath:   settings.FFmpegPath,
		YapPath:      settings.YapPath,
		DemucsPath:   settings.DemucsPath,
	}
}

// processPipes is a started worker process with its stdio attached.
type processPipes struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Stderr io.Reader
	Wait   func() error
	Kill   func() error
}

// processStarter abstracts process creation for testability.
type processStarter interface {
	Start(name string, args []string, env []string) (processPipes, error)
}

// execStarter spawns processes via os/exec.
type execStarter struct{}

// Start launches one process with piped stdio.
func (execStarter) Start(name string, args []string, env []string) (processPipes, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return processPipes{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return processPipes{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return processPipes{}, err
	}
	if err := cmd.Start(); err != nil {
		return processPipes{}, err
	}

	return processPipes{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Wait:   cmd.Wait,
		Kill: func() error {
			if cmd.Process == nil {
				return nil
			}
			return cmd.Process.Kill()
		},
	}, nil
}

// Process supervises one long-lived worker. Decoded events are handed to the
// sink in stdout order; stderr lines and exit are reported as worker status.
type Process struct {
	paths  RuntimePaths
	pipes  processPipes
	sink   func(jobs.Event)
	exited func()
	logger *slog.Logger

	commands chan []byte
	done     chan struct{}

	mu       sync.Mutex
	stopping bool
}

// startProcess launches the worker and its stdio goroutines.
func startProcess(
	starter processStarter,
	paths RuntimePaths,
	baseEnv []string,
	sink func(jobs.Event),
	exited func(),
	logger *slog.Logger,
) (*Process, error) {
	if strings.TrimSpace(paths.PythonPath) == "" {
		return nil, &ProcessError{Stage: "spawn", Message: "python executable is not configured"}
	}
	if strings.TrimSpace(paths.WorkerScript) == "" {
		return nil, &ProcessError{Stage: "spawn", Message: "worker script is not configured"}
	}

	args := []string{paths.WorkerScript}
	pipes, err := starter.Start(paths.PythonPath, args, buildEnv(baseEnv, paths))
	if err != nil {
		return nil, &ProcessError{
			Stage:    "spawn",
			Message:  "failed to start worker",
			Command:  paths.PythonPath,
			Args:     args,
			ExitCode: -1,
			Err:      err,
		}
	}

	p := &Process{
		paths:    paths,
		pipes:    pipes,
		sink:     sink,
		exited:   exited,
		logger:   logger,
		commands: make(chan []byte, commandQueueSize),
		done:     make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.writeLoop()
	go func() {
		defer readers.Done()
		p.readEvents()
	}()
	go func() {
		defer readers.Done()
		p.readStderr()
	}()
	go p.wait(&readers)

	return p, nil
}

// Send queues one command for the stdin writer.
func (p *Process) Send(ctx context.Context, cmd Command) error {
	line, err := cmd.MarshalLine()
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrWorkerNotRunning
	default:
	}

	select {
	case p.commands <- line:
		return nil
	case <-p.done:
		return ErrWorkerNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether the process has not exited yet.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop closes stdin, kills the process, and waits for it to exit.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	_ = p.pipes.Stdin.Close()
	if p.pipes.Kill != nil {
		if err := p.pipes.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("kill worker", "error", err)
		}
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case line := <-p.commands:
			if _, err := p.pipes.Stdin.Write(line); err != nil {
				if p.isStopping() {
					return
				}
				p.logger.Error("worker stdin write", "error", err)
				p.sink(jobs.WorkerStatusChanged(
					domain.WorkerStatusError,
					fmt.Sprintf("Failed writing to worker stdin: %v", err),
				))
				return
			}
		}
	}
}

func (p *Process) readEvents() {
	scanner := bufio.NewScanner(p.pipes.Stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		event, err := ParseEvent(line)
		if errors.Is(err, ErrUnmappedEvent) {
			p.logger.Debug("skip worker event", "reason", err)
			continue
		}
		if err != nil {
			p.logger.Warn("worker event parse", "error", err, "line", string(line))
			p.sink(jobs.WorkerStatusChanged(domain.WorkerStatusError, err.Error()))
			continue
		}
		p.sink(event)
	}
	if err := scanner.Err(); err != nil && !p.isStopping() {
		p.logger.Warn("worker stdout read", "error", err)
	}
}

func (p *Process) readStderr() {
	scanner := bufio.NewScanner(p.pipes.Stderr)
	for scanner.Scan() {
		line := scanner.Text()
		p.logger.Info("worker stderr", "line", line)
		p.sink(jobs.WorkerStatusChanged(domain.WorkerStatusError, "worker stderr: "+line))
	}
}

func (p *Process) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := p.pipes.Wait()

	stopping := p.isStopping()
	close(p.done)

	if stopping {
		p.logger.Info("worker stopped")
		return
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	p.logger.Error("worker exited", "error", &ProcessError{
		Stage:    "wait",
		Message:  "worker process exited",
		Command:  p.paths.PythonPath,
		Args:     []string{p.paths.WorkerScript},
		ExitCode: exitCode,
		Err:      err,
	})
	p.sink(jobs.WorkerStatusChanged(domain.WorkerStatusError, exitedMessage))
	if p.exited != nil {
		p.exited()
	}
}

func (p *Process) isStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// buildEnv overlays the worker's variables on base, replacing existing keys.
func buildEnv(base []string, paths RuntimePaths) []string {
	lookup := func(key string) string {
		prefix := key + "="
		for _, entry := range base {
			if strings.HasPrefix(entry, prefix) {
				return strings.TrimPrefix(entry, prefix)
			}
		}
		return ""
	}
	prepend := func(dir, existing string) string {
		if dir == "" || dir == "." {
			return existing
		}
		if existing == "" {
			return dir
		}
		return dir + string(os.PathListSeparator) + existing
	}

	workerSrc := filepath.Join(filepath.Dir(paths.WorkerScript), "src")
	pythonBin := filepath.Dir(paths.PythonPath)

	demucs := paths.DemucsPath
	if demucs == "" && pythonBin != "." {
		demucs = filepath.Join(pythonBin, "demucs")
	}
	ffmpeg := lo.Ternary(paths.FFmpegPath != "", paths.FFmpegPath, "ffmpeg")
	yap := lo.Ternary(paths.YapPath != "", paths.YapPath, "yap")

	overlay := map[string]string{
		"PYTHONUNBUFFERED":   "1",
		"PYTHONPATH":         prepend(workerSrc, lookup("PYTHONPATH")),
		"PATH":               prepend(pythonBin, lookup("PATH")),
		"AIYAAL_DEMUCS_PATH": demucs,
		"AIYAAL_FFMPEG_PATH": ffmpeg,
		"AIYAAL_YAP_PATH":    yap,
	}

	env := lo.Filter(base, func(entry string, _ int) bool {
		key, _, _ := strings.Cut(entry, "=")
		_, replaced := overlay[key]
		return !replaced
	})
	for _, key := range []string{"PYTHONUNBUFFERED", "PYTHONPATH", "PATH", "AIYAAL_DEMUCS_PATH", "AIYAAL_FFMPEG_PATH", "AIYAAL_YAP_PATH"} {
		if value := overlay[key]; value != "" {
			env = append(env, key+"="+value)
		}
	}
	return env
}
