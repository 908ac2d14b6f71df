package hal

import (
	"sync"
	"time"
)

// Idle levels of the call-box inputs. The button and the digital ring input
// are pulled up; the optocoupler divider idles around 4417 counts.
const (
	IdleAnalog uint16 = 4417
	RingAnalog uint16 = 3568
)

// SimGPIO is an in-memory board. Inputs default to their idle level and can
// be driven from another goroutine while the controller samples them.
type SimGPIO struct {
	mu      sync.Mutex
	digital map[Pin]bool
	analog  map[Pin]uint16
	outputs map[Pin]bool
	writes  map[Pin]int
}

func NewSimGPIO() *SimGPIO {
	return &SimGPIO{
		digital: make(map[Pin]bool),
		analog:  make(map[Pin]uint16),
		outputs: make(map[Pin]bool),
		writes:  make(map[Pin]int),
	}
}

func (g *SimGPIO) ReadDigital(pin Pin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.digital[pin]; ok {
		return v
	}
	return true
}

func (g *SimGPIO) ReadAnalog(pin Pin) uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.analog[pin]; ok {
		return v
	}
	return IdleAnalog
}

func (g *SimGPIO) WriteDigital(pin Pin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = value
	g.writes[pin]++
}

// SetDigital drives an input line.
func (g *SimGPIO) SetDigital(pin Pin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.digital[pin] = value
}

// SetAnalog drives an analog channel.
func (g *SimGPIO) SetAnalog(pin Pin, value uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.analog[pin] = value
}

// Pulse drives pin to level for d, then back to the opposite level.
func (g *SimGPIO) Pulse(pin Pin, level bool, d time.Duration) {
	g.SetDigital(pin, level)
	time.AfterFunc(d, func() { g.SetDigital(pin, !level) })
}

// PulseAnalog holds an analog channel at value for d, then restores idle.
func (g *SimGPIO) PulseAnalog(pin Pin, value uint16, d time.Duration) {
	g.SetAnalog(pin, value)
	time.AfterFunc(d, func() { g.SetAnalog(pin, IdleAnalog) })
}

// Output returns the last value written to pin.
func (g *SimGPIO) Output(pin Pin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputs[pin]
}

// Writes returns how many times pin was written.
func (g *SimGPIO) Writes(pin Pin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes[pin]
}
