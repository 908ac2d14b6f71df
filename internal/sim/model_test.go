package sim

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
)

var testLines = Lines{Button: hal.PinButton, Ring: hal.PinRing, Door: hal.PinDoor, LED: hal.PinLED}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestModel_RingPulsesAnalogInput(t *testing.T) {
	gpio := hal.NewSimGPIO()
	m := NewModel(gpio, testLines, time.Hour, 10*time.Second)

	m, _ = update(t, m, keyMsg("r"))
	if got := gpio.ReadAnalog(hal.PinRing); got != hal.RingAnalog {
		t.Errorf("ring input = %d, want %d", got, hal.RingAnalog)
	}
	if !strings.Contains(m.View(), "doorbell rung") {
		t.Error("ring action not listed")
	}
}

func TestModel_RingPulsesDigitalInput(t *testing.T) {
	gpio := hal.NewSimGPIO()
	lines := testLines
	lines.Digital = true
	m := NewModel(gpio, lines, time.Hour, 10*time.Second)

	update(t, m, keyMsg("r"))
	if gpio.ReadDigital(hal.PinRing) {
		t.Error("digital ring input not pulled low")
	}
}

func TestModel_ButtonKeys(t *testing.T) {
	for _, k := range []string{"b", "l"} {
		t.Run(k, func(t *testing.T) {
			gpio := hal.NewSimGPIO()
			m := NewModel(gpio, testLines, time.Hour, 10*time.Second)
			update(t, m, keyMsg(k))
			if gpio.ReadDigital(hal.PinButton) {
				t.Errorf("key %q did not press the button", k)
			}
		})
	}
}

func TestModel_StatusAndIndicators(t *testing.T) {
	gpio := hal.NewSimGPIO()
	m := NewModel(gpio, testLines, time.Hour, 10*time.Second)
	if !strings.Contains(m.View(), "Booting") {
		t.Error("view before first status should show booting")
	}

	m, _ = update(t, m, statusMsg(doorbell.Status{Mode: doorbell.ModeListening, DeviceID: "28cdc10a1b2c"}))
	gpio.WriteDigital(hal.PinDoor, true)
	m, cmd := update(t, m, tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick did not schedule the next tick")
	}

	view := m.View()
	for _, want := range []string{"LISTENING", "28cdc10a1b2c", "● door", "○ led"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_QuitAndExit(t *testing.T) {
	m := NewModel(hal.NewSimGPIO(), testLines, time.Hour, time.Second)

	_, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	m, cmd = update(t, m, exitMsg{err: doorbell.ErrReset})
	if cmd == nil || m.Err() != doorbell.ErrReset {
		t.Errorf("exit: cmd = %v, err = %v", cmd, m.Err())
	}
}

func TestModel_ActionsAreCapped(t *testing.T) {
	m := NewModel(hal.NewSimGPIO(), testLines, time.Millisecond, time.Millisecond)
	for i := 0; i < maxActions+3; i++ {
		m, _ = update(t, m, keyMsg("b"))
	}
	if len(m.actions) != maxActions {
		t.Errorf("actions = %d, want %d", len(m.actions), maxActions)
	}
}

func TestRingHold(t *testing.T) {
	cfg := doorbell.DefaultConfig()
	want := cfg.IdleSleep + cfg.RingDebounce + 3*cfg.RingSampleInterval + 200*time.Millisecond
	if got := RingHold(cfg); got != want {
		t.Errorf("RingHold() = %v, want %v", got, want)
	}
}
