//go:build linux

package hal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
)

// GPIOChipConfig selects the lines used on a Linux host.
type GPIOChipConfig struct {
	Chip    string // e.g. "gpiochip0"
	Inputs  []Pin  // requested as inputs with pull-up
	Outputs []Pin  // requested as outputs, initially low
	// AnalogPaths maps an analog channel to its IIO raw value file,
	// e.g. /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
	AnalogPaths map[Pin]string
}

// GPIOChip drives lines through the GPIO character device.
type GPIOChip struct {
	mu      sync.Mutex
	chip    *gpiod.Chip
	lines   map[Pin]*gpiod.Line
	analogs map[Pin]string
}

func NewGPIOChip(cfg GPIOChipConfig) (*GPIOChip, error) {
	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("picobell"))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", cfg.Chip, err)
	}

	g := &GPIOChip{
		chip:    chip,
		lines:   make(map[Pin]*gpiod.Line),
		analogs: cfg.AnalogPaths,
	}

	for _, pin := range cfg.Inputs {
		line, err := chip.RequestLine(int(pin), gpiod.AsInput, gpiod.WithPullUp)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("request input pin %d: %w", pin, err)
		}
		g.lines[pin] = line
	}
	for _, pin := range cfg.Outputs {
		line, err := chip.RequestLine(int(pin), gpiod.AsOutput(0))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		g.lines[pin] = line
	}

	return g, nil
}

// ReadDigital returns the line level. Read failures report the idle (high) level.
func (g *GPIOChip) ReadDigital(pin Pin) bool {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()
	if !ok {
		return true
	}

	v, err := line.Value()
	if err != nil {
		logging.Warn("GPIO read failed", zap.Int("pin", int(pin)), zap.Error(err))
		return true
	}
	return v != 0
}

// ReadAnalog returns the raw IIO sample. Read failures report IdleAnalog.
func (g *GPIOChip) ReadAnalog(pin Pin) uint16 {
	path, ok := g.analogs[pin]
	if !ok {
		return IdleAnalog
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("ADC read failed", zap.String("path", path), zap.Error(err))
		return IdleAnalog
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		logging.Warn("ADC value malformed", zap.String("path", path), zap.Error(err))
		return IdleAnalog
	}
	return uint16(v)
}

func (g *GPIOChip) WriteDigital(pin Pin, value bool) {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()
	if !ok {
		return
	}

	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		logging.Warn("GPIO write failed", zap.Int("pin", int(pin)), zap.Error(err))
	}
}

// Close releases all lines and the chip.
func (g *GPIOChip) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for pin, line := range g.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	g.lines = make(map[Pin]*gpiod.Line)

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		g.chip = nil
	}
	return errors.Join(errs...)
}
