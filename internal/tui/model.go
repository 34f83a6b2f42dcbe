// Package tui renders one running task in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
	"github.com/ragaeeb/al-iyaal-kids/internal/jobs"
	"github.com/ragaeeb/al-iyaal-kids/internal/worker"
)

const barWidth = 30

// Driver is the controller surface the model reads and commands.
type Driver interface {
	Snapshot() jobs.State
	CancelActive(ctx context.Context) (worker.CancelAck, error)
}

// StartFunc starts the task the runner was launched for.
type StartFunc func(ctx context.Context) (worker.StartResponse, error)

type startedMsg struct {
	resp worker.StartResponse
	err  error
}

type changedMsg struct{}

type cancelledMsg struct {
	ack worker.CancelAck
	err error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle = map[domain.JobStatus]lipgloss.Style{
		domain.JobStatusQueued:    mutedStyle,
		domain.JobStatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		domain.JobStatusCompleted: okStyle,
		domain.JobStatusFailed:    errorStyle,
		domain.JobStatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// Model is the bubbletea model for the terminal runner.
type Model struct {
	title   string
	driver  Driver
	start   StartFunc
	changes <-chan struct{}

	spinner spinner.Model
	bar     progress.Model

	state           jobs.State
	startErr        string
	cancelRequested bool
	quitting        bool
}

// New builds a model. changes must receive a value whenever the driver's
// snapshot may have changed.
func New(title string, driver Driver, start StartFunc, changes <-chan struct{}) Model {
	return Model{
		title:   title,
		driver:  driver,
		start:   start,
		changes: changes,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		state:   driver.Snapshot(),
	}
}

// Notifier returns a state listener that signals changes without blocking.
// Bursts of changes collapse into one pending signal.
func Notifier(changes chan<- struct{}) func(jobs.State) {
	return func(jobs.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, startCmd(m.start), waitForChange(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)
	case startedMsg:
		if msg.err != nil {
			m.startErr = msg.err.Error()
		}
		m.state = m.driver.Snapshot()
		return m, nil
	case changedMsg:
		m.state = m.driver.Snapshot()
		return m, waitForChange(m.changes)
	case cancelledMsg:
		if msg.err != nil {
			m.cancelRequested = false
		}
		m.state = m.driver.Snapshot()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "c":
		task, ok := jobs.ActiveTask(m.state)
		if !ok || task.Status.IsTerminal() || m.cancelRequested {
			return m, nil
		}
		m.cancelRequested = true
		return m, cancelCmd(m.driver)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	lines := []string{titleStyle.Render(m.title), m.workerLine(), ""}

	task, ok := jobs.ActiveTask(m.state)
	switch {
	case ok:
		lines = append(lines, m.taskLines(task)...)
	case m.state.StartInFlight:
		lines = append(lines, m.spinner.View()+" starting...")
	}

	if msg := lo.CoalesceOrEmpty(m.state.ErrorMessage, m.startErr); msg != "" {
		lines = append(lines, "", errorStyle.Render("error: "+msg))
	}

	hints := "q quit"
	if ok && !task.Status.IsTerminal() {
		hints = "c cancel after current file • " + hints
		if m.cancelRequested {
			hints = "cancel requested • q quit"
		}
	}
	lines = append(lines, "", mutedStyle.Render(hints))

	return panelStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func (m Model) workerLine() string {
	status := string(m.state.WorkerStatus)
	if m.state.WorkerStatus == domain.WorkerStatusError {
		status = errorStyle.Render(status)
	}
	return mutedStyle.Render("worker: ") + status + mutedStyle.Render(" "+m.state.WorkerMessage)
}

func (m Model) taskLines(task domain.TaskAggregate) []string {
	avg := jobs.AverageProgress(m.state)
	header := fmt.Sprintf("%s %s  %s %3d%%", task.TaskKind, task.Status, m.bar.ViewAs(float64(avg)/100), avg)
	if !task.Status.IsTerminal() {
		header = m.spinner.View() + " " + header
	}
	lines := []string{header, ""}

	nameWidth := 0
	sorted := jobs.SortedJobs(task.Jobs)
	for _, job := range sorted {
		nameWidth = max(nameWidth, lipgloss.Width(job.FileName))
	}
	for _, job := range sorted {
		style, ok := statusStyle[job.Status]
		if !ok {
			style = mutedStyle
		}
		line := fmt.Sprintf("%-*s  %s %3d%%  %s",
			nameWidth, job.FileName,
			m.bar.ViewAs(float64(job.ProgressPct)/100), job.ProgressPct,
			style.Render(string(job.Status)),
		)
		if job.Error != "" {
			line += "  " + errorStyle.Render(job.Error)
		}
		lines = append(lines, line)
	}

	if task.Summary != nil {
		lines = append(lines, "", okStyle.Render(fmt.Sprintf(
			"done: %d ok, %d failed, %d cancelled",
			task.Summary.OK, task.Summary.Failed, task.Summary.Cancelled,
		)))
	}
	return lines
}

func startCmd(start StartFunc) tea.Cmd {
	return func() tea.Msg {
		resp, err := start(context.Background())
		return startedMsg{resp: resp, err: err}
	}
}

func cancelCmd(driver Driver) tea.Cmd {
	return func() tea.Msg {
		ack, err := driver.CancelActive(context.Background())
		return cancelledMsg{ack: ack, err: err}
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}
