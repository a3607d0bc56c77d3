package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pressing/internal/pipeline"
)

const refreshInterval = 200 * time.Millisecond

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	abortStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	defaultWidth = 80
)

// Source is the build being watched. *pipeline.Handle implements it.
type Source interface {
	Groups() []*pipeline.PhaseGroup
	Cancel()
	Cancelled() bool
}

type row struct {
	key    string
	done   int
	failed int
	total  int
}

func (r row) fraction() float64 {
	if r.total == 0 {
		return 1
	}
	return float64(r.done) / float64(r.total)
}

type tickMsg time.Time

type finishedMsg struct{}

// Model is the bubbletea model of the progress view.
type Model struct {
	title    string
	src      Source
	finished <-chan struct{}
	bar      progress.Model
	rows     []row
	aborting bool
	done     bool
}

// New returns a progress view of src. finished must close once every unit
// is terminal.
func New(title string, src Source, finished <-chan struct{}) Model {
	m := Model{
		title:    title,
		src:      src,
		finished: finished,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	m.resize(defaultWidth)
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitFinished(m.finished))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.aborting {
				m.aborting = true
				m.src.Cancel()
			}
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.refresh()
		return m, tick()
	case finishedMsg:
		m.refresh()
		m.done = true
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	labelWidth := 0
	for _, r := range m.rows {
		labelWidth = max(labelWidth, len(r.key))
	}
	for _, r := range m.rows {
		label := labelStyle.Render(fmt.Sprintf("%-*s", labelWidth, r.key))
		count := fmt.Sprintf("%d/%d", r.done, r.total)
		if r.done == r.total {
			count = doneStyle.Render(count)
		}
		line := label + "  " + m.bar.ViewAs(r.fraction()) + "  " + count
		if r.failed > 0 {
			line += "  " + failedStyle.Render(fmt.Sprintf("%d failed", r.failed))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.done:
		b.WriteString(hintStyle.Render("done"))
	case m.aborting:
		b.WriteString(abortStyle.Render("aborting, waiting for running units…"))
	default:
		b.WriteString(hintStyle.Render("q: abort"))
	}
	b.WriteString("\n")
	return b.String()
}

// Aborted reports whether the user asked to abort.
func (m Model) Aborted() bool { return m.aborting }

func (m *Model) refresh() {
	groups := m.src.Groups()
	rows := make([]row, 0, len(groups))
	for _, g := range groups {
		done, failed, total := g.Progress()
		rows = append(rows, row{key: g.Key().String(), done: done, failed: failed, total: total})
	}
	m.rows = rows
}

func (m *Model) resize(width int) {
	if width <= 0 {
		width = defaultWidth
	}
	m.bar.Width = max(10, min(60, width-40))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitFinished(finished <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-finished
		return finishedMsg{}
	}
}

// Run shows the progress view on out until the build finishes. Cancelling
// ctx closes the view without aborting the build.
func Run(ctx context.Context, title string, src Source, finished <-chan struct{}, out io.Writer) error {
	p := tea.NewProgram(New(title, src, finished), tea.WithContext(ctx), tea.WithOutput(out))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
