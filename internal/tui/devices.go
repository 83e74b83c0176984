// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"streampump/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// Key bindings shared by both views.
var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select"))
	keyBack   = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back"))
	keyToggle = key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gate on/off"))
)

// commonRates are offered for every device, after its own default.
var commonRates = []float64{16000, 44100, 48000, 88200, 96000}

// ScreenType is the picker step being shown.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the input device and rate chosen in the picker.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate float64
}

// ratePicker is a cursor over the rates offered for one device.
type ratePicker struct {
	rates  []float64
	cursor int
}

// newRatePicker starts at def, adding it to the common rates if missing.
func newRatePicker(def float64) ratePicker {
	if i := slices.Index(commonRates, def); i >= 0 {
		return ratePicker{rates: commonRates, cursor: i}
	}
	return ratePicker{rates: append([]float64{def}, commonRates...)}
}

func (r ratePicker) rate() float64 {
	return r.rates[r.cursor]
}

// DeviceListModel is the Bubble Tea model for picking an input device and
// its sample rate.
type DeviceListModel struct {
	fetch    func() ([]audio.Device, error)
	devices  []audio.Device // Input-capable devices only.
	cursor   int
	screen   ScreenType
	picker   ratePicker
	viewport viewport.Model
	ready    bool
	err      error

	selection *Selection
}

// NewDeviceListModel creates a picker over the devices fetch returns.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch}
}

type devicesMsg []audio.Device

type errMsg struct {
	err error
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		inputs := make([]audio.Device, 0, len(devices))
		for _, d := range devices {
			if d.CanInput() {
				inputs = append(inputs, d)
			}
		}
		return devicesMsg(inputs)
	}
}

// Update handles input and updates the model
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if m.screen == ListScreen {
			m.updateList(msg)
		} else if m.updateConfig(msg) {
			return m, tea.Quit
		}
	}

	m.render()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) updateList(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, keyUp):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, keyDown):
		m.cursor = max(min(m.cursor+1, len(m.devices)-1), 0)
	case key.Matches(msg, keyEnter):
		if len(m.devices) > 0 {
			m.picker = newRatePicker(m.devices[m.cursor].DefaultSampleRate)
			m.screen = ConfigScreen
		}
	}
}

// updateConfig reports whether a selection was made.
func (m *DeviceListModel) updateConfig(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, keyBack):
		m.screen = ListScreen
	case key.Matches(msg, keyUp):
		m.picker.cursor = max(m.picker.cursor-1, 0)
	case key.Matches(msg, keyDown):
		m.picker.cursor = min(m.picker.cursor+1, len(m.picker.rates)-1)
	case key.Matches(msg, keyEnter):
		d := m.devices[m.cursor]
		m.selection = &Selection{DeviceID: d.ID, Name: d.Name, SampleRate: m.picker.rate()}
		return true
	}
	return false
}

func (m *DeviceListModel) render() {
	if !m.ready {
		return
	}
	if m.screen == ConfigScreen {
		m.viewport.SetContent(m.renderRates())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title, help := "Input Devices", "↑/↓: Navigate • Enter: Configure • q: Quit"
	if m.screen == ConfigScreen {
		title, help = "Device Configuration", "↑/↓: Sample Rate • Enter: Start Pumping • Esc: Back • q: Quit"
	}
	return titleStyle.Render(title) + "\n\n" + m.viewport.View() + "\n\n" + infoStyle.Render(help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		name := d.Name
		if d.IsDefaultInput {
			name += " (default)"
		}
		header := fmt.Sprintf("[%d] %s", d.ID, name)
		if i == m.cursor {
			header = highlightStyle.Render("▶ " + header)
		} else {
			header = "  " + header
		}
		sb.WriteString(header + "\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("    %d ch • %.0f Hz • Latency: %s to %s",
			d.MaxInputChannels, d.DefaultSampleRate, d.LowLatency, d.HighLatency)))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderRates() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Device: %s\n\nSample Rate:\n", m.devices[m.cursor].Name)
	for i, rate := range m.picker.rates {
		if i == m.picker.cursor {
			sb.WriteString(highlightStyle.Render(fmt.Sprintf("  ▶ %.0f Hz", rate)) + "\n")
		} else {
			fmt.Fprintf(&sb, "    %.0f Hz\n", rate)
		}
	}
	return sb.String()
}

// SelectDevice runs the picker over the host's devices. It returns nil when
// the user quits without choosing. PortAudio must be initialized.
func SelectDevice() (*Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(audio.HostDevices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(DeviceListModel)
	if m.err != nil {
		return nil, m.err
	}
	return m.selection, nil
}
