package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer shows a live progress panel via bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It errors when the output is
// not a terminal so NewRenderer can fall back to plain mode.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	model := newIngestModel(cfg)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

func (r *TUIRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(errMsg(event))
	}
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Unresponsive TUI must not hang shutdown.
		}
	}
	return nil
}

type progressMsg ProgressEvent
type errMsg ErrorEvent
type completeMsg CompletionStats

// ingestModel is the bubbletea model for the progress panel.
type ingestModel struct {
	cfg      Config
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	quitting bool
	complete bool
	stats    CompletionStats

	stage    Stage
	current  int
	total    int
	file     string
	errors   int
	warnings int
	lastErrs []ErrorEvent
}

func newIngestModel(cfg Config) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	bar := progress.New(
		progress.WithSolidFill(colorTeal),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)
	return &ingestModel{
		cfg:     cfg,
		styles:  DefaultStyles(),
		spinner: s,
		bar:     bar,
		width:   80,
	}
}

func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 20
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.file = msg.CurrentFile

	case errMsg:
		if msg.IsWarn {
			m.warnings++
		} else {
			m.errors++
		}
		m.lastErrs = append(m.lastErrs, ErrorEvent(msg))
		if len(m.lastErrs) > 5 {
			m.lastErrs = m.lastErrs[len(m.lastErrs)-5:]
		}

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ingestModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	var b strings.Builder
	b.WriteString(m.renderStages())
	b.WriteString("\n")

	if m.total > 0 {
		pct := float64(m.current) / float64(m.total)
		b.WriteString(m.bar.ViewAs(pct))
		b.WriteString("  ")
		b.WriteString(m.styles.Active.Render(fmt.Sprintf("%3.0f%%", pct*100)))
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render(fmt.Sprintf("%d / %d files", m.current, m.total)))
	} else {
		b.WriteString(fmt.Sprintf("%s %s...", m.spinner.View(), m.stage))
	}

	if m.file != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Dim.Render(m.file))
	}
	if m.errors > 0 || m.warnings > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("%d errors, %d warnings", m.errors, m.warnings)))
	}
	for _, e := range m.lastErrs {
		b.WriteString("\n")
		style := m.styles.Error
		if e.IsWarn {
			style = m.styles.Warning
		}
		b.WriteString(style.Render(fmt.Sprintf("  %s: %v", e.File, e.Err)))
	}

	title := "Synthesis Ingest"
	if m.cfg.Collection != "" {
		title = fmt.Sprintf("Synthesis Ingest • %s", m.cfg.Collection)
	}
	header := m.styles.Header.Render(title)
	if m.cfg.Dir != "" {
		header += "\n" + m.styles.Label.Render(m.cfg.Dir)
	}

	return m.styles.Panel.Render(header+"\n\n"+b.String()) + "\n"
}

// renderStages draws the two-phase pipeline indicator.
func (m *ingestModel) renderStages() string {
	stages := []struct {
		stage Stage
		name  string
	}{
		{StageScanning, "Scan"},
		{StageIngesting, "Ingest"},
	}

	var parts []string
	for _, s := range stages {
		switch {
		case s.stage < m.stage:
			parts = append(parts, m.styles.Success.Render("● "+s.name))
		case s.stage == m.stage:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.name))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.name))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderComplete() string {
	line := fmt.Sprintf("Complete: %d files, %d chunks in %s",
		m.stats.Files, m.stats.Chunks, m.stats.Duration.Round(100*time.Millisecond))
	out := m.styles.Success.Render(line)
	if m.stats.Errors > 0 || m.stats.Warnings > 0 {
		out += m.styles.Warning.Render(fmt.Sprintf(" (%d errors, %d warnings)", m.stats.Errors, m.stats.Warnings))
	}
	if m.stats.Provider != "" {
		out += "\n" + m.styles.Label.Render(fmt.Sprintf("Embeddings: %s (%s)", m.stats.Provider, m.stats.Model))
	}
	return out + "\n"
}
