package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"
)

type fakeDriver struct {
	state     jobs.State
	cancels   int
	cancelErr error
}

func (d *fakeDriver) Snapshot() jobs.State { return d.state }

func (d *fakeDriver) CancelActive(context.Context) (worker.CancelAck, error) {
	d.cancels++
	if d.cancelErr != nil {
		return worker.CancelAck{}, d.cancelErr
	}
	return worker.CancelAck{TaskID: d.state.ActiveTaskID, Accepted: true}, nil
}

func runningState() jobs.State {
	state := jobs.Reduce(jobs.NewState(), jobs.StartSucceeded("task-1", domain.TaskKindRemoveMusic, []string{"/v/b.mp4", "/v/a.mp4"}))
	return jobs.Reduce(state, jobs.ApplyEvent(jobs.JobProgress("task-1", domain.TaskKindRemoveMusic, "v-a-mp4", 60)))
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestChangeRefreshesSnapshot(t *testing.T) {
	driver := &fakeDriver{state: jobs.NewState()}
	changes := make(chan struct{}, 1)
	m := New("Remove music", driver, nil, changes)

	driver.state = runningState()
	model, cmd := m.Update(changedMsg{})
	require.NotNil(t, cmd, "expected a follow-up wait")

	view := model.View()
	assert.Contains(t, view, "a.mp4")
	assert.Contains(t, view, "b.mp4")
	assert.Contains(t, view, " 60%")
	assert.Contains(t, view, " 30%")
	assert.Contains(t, view, "c cancel after current file")
}

func TestCancelKeyIssuesOneCancel(t *testing.T) {
	driver := &fakeDriver{state: runningState()}
	m := New("Remove music", driver, nil, nil)

	model, cmd := m.Update(key('c'))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, 1, driver.cancels)

	model, cmd = model.Update(key('c'))
	assert.Nil(t, cmd, "second press while pending must not cancel again")

	model, _ = model.Update(msg)
	assert.Contains(t, model.View(), "cancel requested")
}

func TestCancelFailureAllowsRetry(t *testing.T) {
	driver := &fakeDriver{state: runningState(), cancelErr: errors.New("Worker is not running.")}
	m := New("Remove music", driver, nil, nil)

	model, cmd := m.Update(key('c'))
	require.NotNil(t, cmd)
	model, _ = model.Update(cmd())

	_, cmd = model.Update(key('c'))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 2, driver.cancels)
}

func TestCancelIgnoredWithoutRunningTask(t *testing.T) {
	driver := &fakeDriver{state: jobs.NewState()}
	m := New("Transcribe", driver, nil, nil)

	_, cmd := m.Update(key('c'))
	assert.Nil(t, cmd)
	assert.Zero(t, driver.cancels)
}

func TestStartFailureIsShown(t *testing.T) {
	driver := &fakeDriver{state: jobs.NewState()}
	start := func(context.Context) (worker.StartResponse, error) {
		return worker.StartResponse{}, worker.ErrNoInputFiles
	}
	m := New("Flag", driver, start, nil)

	msg := startCmd(start)()
	model, _ := m.Update(msg)
	assert.Contains(t, model.View(), worker.ErrNoInputFiles.Error())
}

func TestSummaryShownWhenDone(t *testing.T) {
	state := runningState()
	state = jobs.Reduce(state, jobs.ApplyEvent(jobs.TaskDone("task-1", domain.TaskKindRemoveMusic, domain.TaskSummary{OK: 1, Cancelled: 1})))
	driver := &fakeDriver{state: state}
	m := New("Remove music", driver, nil, nil)

	view := m.View()
	assert.Contains(t, view, "done: 1 ok, 0 failed, 1 cancelled")
	assert.NotContains(t, view, "c cancel after current file")
}

func TestQuitKey(t *testing.T) {
	m := New("Transcribe", &fakeDriver{state: jobs.NewState()}, nil, nil)

	model, cmd := m.Update(key('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, model.View())
}

func TestNotifierCoalesces(t *testing.T) {
	changes := make(chan struct{}, 1)
	notify := Notifier(changes)

	notify(jobs.NewState())
	notify(jobs.NewState())

	assert.Len(t, changes, 1)
	msg := waitForChange(changes)()
	assert.Equal(t, changedMsg{}, msg)

	close(changes)
	assert.Nil(t, waitForChange(changes)())
}
