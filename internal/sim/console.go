package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/host"
)

// RingHold is how long a simulated ring keeps the input asserted: one idle
// sleep for the loop to notice it plus the confirmation samples.
func RingHold(cfg doorbell.Config) time.Duration {
	return cfg.IdleSleep + cfg.RingDebounce + time.Duration(cfg.RingSamples)*cfg.RingSampleInterval + 200*time.Millisecond
}

// programDisplay forwards statuses into the running program.
type programDisplay struct {
	send func(tea.Msg)
}

func (d programDisplay) Show(s doorbell.Status) {
	d.send(statusMsg(s))
}

// Run starts the controller on a simulated board and the console on the
// terminal. It returns when the user quits, ctx is done or the controller
// fails.
func Run(ctx context.Context, rt *config.Runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gpio := hal.NewSimGPIO()
	cfg := rt.Controller()
	lines := Lines{
		Button:  cfg.ButtonPin,
		Ring:    cfg.RingPin,
		Door:    cfg.DoorPin,
		LED:     cfg.LEDPin,
		Digital: cfg.RingSensor == doorbell.SensorDigital,
	}
	model := NewModel(gpio, lines, RingHold(cfg), cfg.LongPress)

	var program *tea.Program
	disp := programDisplay{send: func(msg tea.Msg) { program.Send(msg) }}

	h, err := host.New(host.Options{Runtime: rt, GPIO: gpio, Display: disp})
	if err != nil {
		return err
	}
	defer h.Close()

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := h.Run(ctx)
		program.Send(exitMsg{err: err})
	}()

	final, runErr := program.Run()
	cancel()
	<-done

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("console failed: %w", runErr)
	}
	if m, ok := final.(Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
