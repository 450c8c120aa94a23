package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jaganraajan/rag-document-parser/internal/output"
)

const (
	colorAccent   = "154"
	colorGray     = "245"
	colorDarkGray = "238"
	colorYellow   = "220"

	refreshInterval = 100 * time.Millisecond
	stopTimeout     = 2 * time.Second
)

// ErrNotTerminal is returned by NewTUIRenderer for non-terminal output.
var ErrNotTerminal = errors.New("output is not a terminal")

// TUIRenderer draws a live panel with bubbletea. Ctrl+C inside the panel
// calls Config.OnInterrupt.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker
	model   *ingestModel
	program *tea.Program
	done    chan struct{}
}

func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !output.IsTTY(cfg.Output) {
		return nil, ErrNotTerminal
	}
	tracker := NewTracker()
	m := newIngestModel(tracker, cfg.Title)
	if cfg.NoColor || output.DetectNoColor() {
		m.styles = plainPanelStyles()
	}
	return &TUIRenderer{cfg: cfg, tracker: tracker, model: m, done: make(chan struct{})}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}
	r.program = tea.NewProgram(r.model, tea.WithOutput(r.cfg.Output), tea.WithContext(ctx))
	go func() {
		defer close(r.done)
		if _, err := r.program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			r.tracker.Warn("progress display: " + err.Error())
		}
		if r.model.interrupted && r.cfg.OnInterrupt != nil {
			r.cfg.OnInterrupt()
		}
	}()
	return nil
}

func (r *TUIRenderer) Update(done, total int) {
	r.tracker.Update(done, total)
}

func (r *TUIRenderer) Warn(msg string) {
	r.tracker.Warn(msg)
}

// Stop draws the final state and waits briefly for the program to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Send(finishMsg{})
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		p.Kill()
	}
	return nil
}

type tickMsg time.Time
type finishMsg struct{}

type panelStyles struct {
	Title   lipgloss.Style
	Accent  lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Warning lipgloss.Style
	Panel   lipgloss.Style
}

func defaultPanelStyles() panelStyles {
	return panelStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorDarkGray)).
			Padding(0, 1),
	}
}

func plainPanelStyles() panelStyles {
	s := lipgloss.NewStyle()
	return panelStyles{Title: s, Accent: s, Label: s, Dim: s, Warning: s, Panel: s.Border(lipgloss.NormalBorder()).Padding(0, 1)}
}

type ingestModel struct {
	tracker     *Tracker
	title       string
	width       int
	spinner     spinner.Model
	bar         progress.Model
	styles      panelStyles
	finished    bool
	interrupted bool
}

func newIngestModel(tracker *Tracker, title string) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent))
	return &ingestModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(colorAccent),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		styles: defaultPanelStyles(),
	}
}

func (m *ingestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, min(60, msg.Width-24))
	case finishMsg:
		m.finished = true
		return m, tea.Quit
	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ingestModel) View() string {
	if m.interrupted {
		return "Interrupted.\n"
	}
	snap := m.tracker.Snapshot()

	var lines []string
	lines = append(lines, m.renderProgress(snap))
	lines = append(lines, m.renderSpeed(snap))
	lines = append(lines, m.styles.Accent.Render(m.tracker.Sparkline(m.bar.Width)))
	warnings := snap.Warnings
	if !m.finished {
		warnings = lastN(warnings, 3)
	}
	for _, w := range warnings {
		lines = append(lines, m.styles.Warning.Render("! "+w))
	}

	title := "ragdoc ingest"
	if m.title != "" {
		title += " • " + m.title
	}
	body := m.styles.Title.Render(title) + "\n" + strings.Join(lines, "\n")
	return m.styles.Panel.Render(body) + "\n"
}

func (m *ingestModel) renderProgress(s Snapshot) string {
	if s.Total == 0 {
		return m.spinner.View() + " " + m.styles.Label.Render("preparing...")
	}
	icon := m.spinner.View()
	if m.finished {
		icon = m.styles.Accent.Render("●")
	}
	pct := m.styles.Accent.Render(fmt.Sprintf("%3.0f%%", s.Fraction*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d/%d chunks", s.Done, s.Total))
	return fmt.Sprintf("%s %s %s  %s", icon, m.bar.ViewAs(s.Fraction), pct, count)
}

func (m *ingestModel) renderSpeed(s Snapshot) string {
	parts := []string{fmt.Sprintf("%.0f chunks/s", s.Speed)}
	if s.AvgSpeed > 0 {
		parts[0] += fmt.Sprintf(" (avg %.0f, peak %.0f)", s.AvgSpeed, s.Peak)
	}
	parts = append(parts, "elapsed "+formatDuration(s.Elapsed))
	if s.ETA > 0 && !m.finished {
		parts = append(parts, "eta "+formatDuration(s.ETA))
	}
	return m.styles.Label.Render(strings.Join(parts, m.styles.Dim.Render("  •  ")))
}

func lastN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
