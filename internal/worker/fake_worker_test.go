package worker

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
)

// fakeStarter delegates process creation to injected behavior.
type fakeStarter struct {
	start func(name string, args []string, env []string) (processPipes, error)
}

// Start delegates to injected behavior.
func (f *fakeStarter) Start(name string, args []string, env []string) (processPipes, error) {
	return f.start(name, args, env)
}

// fakeWorker is an in-memory worker process wired through io.Pipe.
type fakeWorker struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	commands chan Command
	exited   chan struct{}
	once     sync.Once

	mu   sync.Mutex
	name string
	args []string
	env  []string
}

func newFakeWorker() *fakeWorker {
	f := &fakeWorker{
		commands: make(chan Command, 16),
		exited:   make(chan struct{}),
	}
	f.stdinR, f.stdinW = io.Pipe()
	f.stdoutR, f.stdoutW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()

	go func() {
		scanner := bufio.NewScanner(f.stdinR)
		for scanner.Scan() {
			var cmd Command
			if err := json.Unmarshal(scanner.Bytes(), &cmd); err == nil {
				f.commands <- cmd
			}
		}
	}()
	return f
}

func (f *fakeWorker) starter() *fakeStarter {
	return &fakeStarter{start: func(name string, args []string, env []string) (processPipes, error) {
		f.mu.Lock()
		f.name, f.args, f.env = name, args, env
		f.mu.Unlock()

		return processPipes{
			Stdin:  f.stdinW,
			Stdout: f.stdoutR,
			Stderr: f.stderrR,
			Wait: func() error {
				<-f.exited
				return nil
			},
			Kill: func() error {
				f.exit()
				return nil
			},
		}, nil
	}}
}

func (f *fakeWorker) emit(t *testing.T, line string) {
	t.Helper()
	_, err := f.stdoutW.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (f *fakeWorker) stderr(t *testing.T, line string) {
	t.Helper()
	_, err := f.stderrW.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (f *fakeWorker) exit() {
	f.once.Do(func() {
		_ = f.stdoutW.Close()
		_ = f.stderrW.Close()
		_ = f.stdinR.Close()
		close(f.exited)
	})
}

func (f *fakeWorker) nextCommand(t *testing.T) Command {
	t.Helper()
	select {
	case cmd := <-f.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for worker command")
		return Command{}
	}
}

func nextEvent(t *testing.T, ch <-chan jobs.Event) jobs.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return jobs.Event{}
	}
}
