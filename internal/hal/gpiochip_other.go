//go:build !linux

package hal

import "errors"

type GPIOChipConfig struct {
	Chip        string
	Inputs      []Pin
	Outputs     []Pin
	AnalogPaths map[Pin]string
}

// GPIOChip is only available on Linux.
type GPIOChip struct{}

func NewGPIOChip(cfg GPIOChipConfig) (*GPIOChip, error) {
	return nil, errors.New("gpio character device requires linux")
}

func (g *GPIOChip) ReadDigital(pin Pin) bool         { return true }
func (g *GPIOChip) ReadAnalog(pin Pin) uint16        { return IdleAnalog }
func (g *GPIOChip) WriteDigital(pin Pin, value bool) {}
func (g *GPIOChip) Close() error                     { return nil }
