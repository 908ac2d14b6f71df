package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/ui"
)

const (
	tickInterval = 100 * time.Millisecond
	tapHold      = 200 * time.Millisecond
	maxActions   = 5
)

// Lines is the part of the board the console drives and watches.
type Lines struct {
	Button  hal.Pin
	Ring    hal.Pin
	Door    hal.Pin
	LED     hal.Pin
	Digital bool // ring input is a digital line, not the analog divider
}

type statusMsg doorbell.Status

type tickMsg time.Time

type exitMsg struct{ err error }

// Model is the simulator console. It renders the device panel, shows the
// door relay and LED, and turns key presses into input pulses.
type Model struct {
	gpio      *hal.SimGPIO
	lines     Lines
	ringHold  time.Duration
	longPress time.Duration

	keys keyMap
	help help.Model

	status   doorbell.Status
	received bool
	door     bool
	led      bool
	actions  []string
	width    int
	err      error
}

// NewModel builds a console for gpio. ringHold is how long a ring asserts
// the input; longPress is the controller's long-press threshold.
func NewModel(gpio *hal.SimGPIO, lines Lines, ringHold, longPress time.Duration) Model {
	return Model{
		gpio:      gpio,
		lines:     lines,
		ringHold:  ringHold,
		longPress: longPress,
		keys:      newKeyMap(),
		help:      help.New(),
		width:     ui.GetTerminalWidth(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Ring):
			m.ring()
		case key.Matches(msg, m.keys.Tap):
			m.gpio.Pulse(m.lines.Button, false, tapHold)
			m.record("button tapped")
		case key.Matches(msg, m.keys.LongPress):
			m.gpio.Pulse(m.lines.Button, false, m.longPress+500*time.Millisecond)
			m.record(fmt.Sprintf("button held for %s", m.longPress+500*time.Millisecond))
		}
		return m, nil

	case statusMsg:
		m.status = doorbell.Status(msg)
		m.received = true
		return m, nil

	case tickMsg:
		m.door = m.gpio.Output(m.lines.Door)
		m.led = m.gpio.Output(m.lines.LED)
		return m, tick()

	case exitMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) ring() {
	if m.lines.Digital {
		m.gpio.Pulse(m.lines.Ring, false, m.ringHold)
	} else {
		m.gpio.PulseAnalog(m.lines.Ring, hal.RingAnalog, m.ringHold)
	}
	m.record("doorbell rung")
}

func (m *Model) record(action string) {
	m.actions = append(m.actions, time.Now().Format("15:04:05")+"  "+action)
	if len(m.actions) > maxActions {
		m.actions = m.actions[len(m.actions)-maxActions:]
	}
}

// Err is the controller error that ended the console, if any.
func (m Model) Err() error {
	return m.err
}

var (
	onStyle  = lipgloss.NewStyle().Foreground(ui.SuccessColor).Bold(true)
	offStyle = lipgloss.NewStyle().Foreground(ui.MutedColor)
)

func indicator(name string, on bool) string {
	if on {
		return onStyle.Render("● " + name)
	}
	return offStyle.Render("○ " + name)
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	if m.received {
		b.WriteString(ui.RenderPanel(m.status, m.width))
	} else {
		b.WriteString(ui.HintStyle.Render("Booting..."))
	}
	b.WriteString("\n\n  ")
	b.WriteString(indicator("door", m.door))
	b.WriteString("   ")
	b.WriteString(indicator("led", m.led))
	b.WriteString("\n")

	if len(m.actions) > 0 {
		b.WriteString("\n")
		for _, a := range m.actions {
			b.WriteString(ui.HintStyle.Render("  " + a))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}
