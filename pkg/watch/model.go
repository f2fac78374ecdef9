package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pipelab/pipespec/pkg/report"
)

// RunFunc executes one full suite run and returns its summary.
type RunFunc func(ctx context.Context) (*report.Summary, error)

// Model is the Bubble Tea model for pipespec watch: it runs the suite
// once at startup and again after every batch of file changes.
type Model struct {
	runner  RunFunc
	changes <-chan []string
	spinner spinner.Model

	status  string // "running", "passed", "failed"
	runs    int
	summary *report.Summary
	runErr  error
	changed []string
	pending bool

	width  int
	height int
	ctx    context.Context
	cancel context.CancelFunc
}

// NewModel creates a watch model. The first run starts immediately when
// the program does.
func NewModel(runner RunFunc, changes <-chan []string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		runner:  runner,
		changes: changes,
		spinner: sp,
		status:  "running",
		ctx:     ctx,
		cancel:  cancel,
	}
}

// --- Messages ---

// changedMsg delivers one debounced batch of changed paths.
type changedMsg struct {
	Paths []string
}

// runDoneMsg signals completion of one suite run.
type runDoneMsg struct {
	Summary *report.Summary
	Err     error
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), m.waitForChange())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "r":
			if m.status != "running" {
				m.status = "running"
				m.changed = nil
				return m, m.startRun()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case changedMsg:
		m.changed = msg.Paths
		if m.status == "running" {
			m.pending = true
			return m, m.waitForChange()
		}
		m.status = "running"
		return m, tea.Batch(m.startRun(), m.waitForChange())

	case runDoneMsg:
		m.runs++
		m.summary = msg.Summary
		m.runErr = msg.Err
		m.status = verdict(msg.Summary, msg.Err)
		if m.pending {
			m.pending = false
			m.status = "running"
			return m, m.startRun()
		}
	}

	return m, nil
}

// startRun executes one suite run off the UI goroutine.
func (m Model) startRun() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.runner(m.ctx)
		return runDoneMsg{Summary: summary, Err: err}
	}
}

// waitForChange blocks on the watcher channel and re-arms after each
// batch.
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		paths, ok := <-m.changes
		if !ok {
			return nil
		}
		return changedMsg{Paths: paths}
	}
}

func verdict(s *report.Summary, err error) string {
	if err != nil || s == nil {
		return "failed"
	}
	if s.Scenarios.Failed > 0 {
		return "failed"
	}
	if s.Gate != nil && !s.Gate.Passed {
		return "failed"
	}
	return "passed"
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("pipespec watch"))
	b.WriteString("\n\n")

	switch m.status {
	case "running":
		b.WriteString(fmt.Sprintf("  %s running scenarios...\n", m.spinner.View()))
	case "passed":
		b.WriteString(passStyle.Render(fmt.Sprintf("  %s run #%d passed", GlyphPassed, m.runs)))
		b.WriteString("\n")
	case "failed":
		line := fmt.Sprintf("  %s run #%d failed", GlyphFailed, m.runs)
		if m.runErr != nil {
			line += ": " + m.runErr.Error()
		}
		b.WriteString(failStyle.Render(line))
		b.WriteString("\n")
	}

	if s := m.summary; s != nil {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  scenarios  %d passed, %d failed of %d\n",
			s.Scenarios.Passed, s.Scenarios.Failed, s.Scenarios.Total))
		b.WriteString(fmt.Sprintf("  steps      %d passed, %d failed, %d skipped\n",
			s.Steps.Passed, s.Steps.Failed, s.Steps.Skipped))
		if s.IssueTally.Total > 0 {
			b.WriteString(fmt.Sprintf("  issues     %d (%d warnings, %d issues, %d criticals)\n",
				s.IssueTally.Total, s.IssueTally.Warnings, s.IssueTally.Issues, s.IssueTally.Criticals))
		}
		if s.Gate != nil {
			icon := GlyphPassed
			if !s.Gate.Passed {
				icon = GlyphFailed
			}
			b.WriteString(fmt.Sprintf("  gate       %s %s\n", icon, s.Gate.Expression))
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("  run id     %s", s.RunID)))
		b.WriteString("\n")
	}

	if len(m.changed) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  changed:"))
		b.WriteString("\n")
		for _, p := range m.changed {
			b.WriteString(dimStyle.Render("    " + filepath.Base(p)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  q: quit  r: rerun"))
	b.WriteString("\n")
	return b.String()
}

// Watch wires a watcher and the model into one program and blocks until
// the user quits.
func Watch(ctx context.Context, roots []string, runner RunFunc) error {
	changes := make(chan []string, 1)
	w := NewWatcher(roots, func(changed []string) {
		select {
		case changes <- changed:
		default:
		}
	})

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer close(changes)
		_ = w.Run(wctx)
	}()

	p := tea.NewProgram(NewModel(runner, changes))
	_, err := p.Run()
	return err
}
