// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"streampump/internal/analysis"
	"streampump/internal/audio"
	"streampump/internal/processor"
	"streampump/internal/transport"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 100 * time.Millisecond // One pump frame.
	barWidth        = 32
)

var (
	labelStyle = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("#A0A0A0"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A030")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05050")).Bold(true)
)

// Engine is what the status view observes and controls.
type Engine interface {
	Status() audio.Status
	SetGate(enabled bool)
}

// SpectrumTap is a transport that keeps the latest spectrum for display.
type SpectrumTap struct {
	mu     sync.Mutex
	latest processor.Spectrum
	ok     bool
}

var _ transport.Transport = (*SpectrumTap)(nil)

// Send keeps data when it is a spectrum and ignores anything else.
func (t *SpectrumTap) Send(data any) error {
	s, ok := data.(processor.Spectrum)
	if !ok {
		return nil
	}
	t.mu.Lock()
	t.latest, t.ok = s, true
	t.mu.Unlock()
	return nil
}

func (t *SpectrumTap) Close() error {
	return nil
}

// Latest returns the most recent spectrum, if any arrived.
func (t *SpectrumTap) Latest() (processor.Spectrum, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.ok
}

type tickMsg time.Time

// EndedMsg tells the view that the stream finished.
type EndedMsg struct {
	Err error
}

// StatusModel is the Bubble Tea model for a running pump.
type StatusModel struct {
	engine   Engine
	tap      *SpectrumTap
	status   audio.Status
	spectrum processor.Spectrum
	hasSpec  bool
	ended    bool
	endErr   error
}

// NewStatusModel observes engine and, when tap is non-nil, its spectra.
func NewStatusModel(engine Engine, tap *SpectrumTap) StatusModel {
	return StatusModel{
		engine: engine,
		tap:    tap,
		status: engine.Status(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh ticker.
func (m StatusModel) Init() tea.Cmd {
	return tick()
}

// Update handles input and refreshes.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, tick()

	case EndedMsg:
		m.ended, m.endErr = true, msg.Err
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyToggle):
			m.engine.SetGate(!m.status.Gate)
			m.refresh()
		}
	}
	return m, nil
}

func (m *StatusModel) refresh() {
	m.status = m.engine.Status()
	if m.tap != nil {
		m.spectrum, m.hasSpec = m.tap.Latest()
	}
}

// View renders the UI
func (m StatusModel) View() string {
	s := m.status
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Stream Pump " + s.Name))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(infoStyle.Render(value))
		sb.WriteString("\n")
	}

	state := s.State.String()
	switch {
	case m.ended && m.endErr != nil:
		state = errorStyle.Render("failed: " + m.endErr.Error())
	case m.ended:
		state = warnStyle.Render("end of stream")
	}
	row("State", state)

	if s.Format != nil {
		row("Format", s.Format.String())
	}
	row("Runs", fmt.Sprintf("%d", s.Stats.Runs))
	row("Frames", fmt.Sprintf("%d (%s)", s.Stats.Frames, formatBytes(s.Stats.Bytes)))
	row("Buffers", fmt.Sprintf("%d allocated", s.Stats.BufferAllocs))

	gate := "off"
	if s.Gate {
		gate = "on"
	}
	row("Gate", fmt.Sprintf("%s, %d passed, %d held", gate, s.Passed, s.Gated))
	if s.Dropped > 0 {
		row("Dropped", warnStyle.Render(fmt.Sprintf("%d frames", s.Dropped)))
	}
	if s.Buffered > 0 {
		row("Buffered", formatBytes(uint64(s.Buffered)))
	}
	if n := len(s.Recording); n > 0 {
		row("Recording", s.Recording[n-1])
	}
	if s.Err != nil {
		row("Last error", errorStyle.Render(s.Err.Error()))
	}

	if m.hasSpec {
		sb.WriteString("\n")
		onset := ""
		if m.spectrum.Onset {
			onset = warnStyle.Render("  ● onset")
		}
		row("Peak", fmt.Sprintf("%.1f Hz  RMS %.3f%s", m.spectrum.PeakHz, m.spectrum.RMS, onset))
		for _, band := range analysis.DefaultBands(m.spectrum.SampleRate / 2) {
			row(band.Name, renderBar(m.spectrum.Bands[band.Name]))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("g: Toggle Gate • q: Quit"))
	return sb.String()
}

// renderBar draws level, clamped to [0, 1], as a fixed-width bar.
func renderBar(level float64) string {
	level = math.Max(0, math.Min(1, level))
	filled := int(math.Round(level * barWidth))
	return barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// RunStatus shows the status view until the user quits or ctx is done. A
// value on ended marks the stream as finished without closing the view.
func RunStatus(ctx context.Context, engine Engine, tap *SpectrumTap, ended <-chan error) error {
	p := tea.NewProgram(
		NewStatusModel(engine, tap),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case err := <-ended:
			p.Send(EndedMsg{Err: err})
		case <-done:
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
