package doorbell

import (
	"fmt"

	"github.com/jonasfh/picobell/internal/hal"
)

// RingSensor reports whether the call box is signalling a ring right now.
type RingSensor interface {
	Asserted() bool
}

// DigitalSensor reads an active-low input.
type DigitalSensor struct {
	GPIO hal.GPIO
	Pin  hal.Pin
}

func (s DigitalSensor) Asserted() bool {
	return !s.GPIO.ReadDigital(s.Pin)
}

// AnalogSensor is asserted while the optocoupler divider reads below Threshold.
type AnalogSensor struct {
	GPIO      hal.GPIO
	Pin       hal.Pin
	Threshold uint16
}

func (s AnalogSensor) Asserted() bool {
	return s.GPIO.ReadAnalog(s.Pin) < s.Threshold
}

// Sensor kinds accepted by NewSensor.
const (
	SensorDigital = "digital"
	SensorAnalog  = "analog"
)

// DefaultAnalogThreshold sits between the idle (~4417) and ringing (~3568) readings.
const DefaultAnalogThreshold uint16 = 4000

// NewSensor builds the ring sensor selected by kind.
func NewSensor(kind string, gpio hal.GPIO, pin hal.Pin, threshold uint16) (RingSensor, error) {
	switch kind {
	case SensorDigital, "":
		return DigitalSensor{GPIO: gpio, Pin: pin}, nil
	case SensorAnalog:
		if threshold == 0 {
			threshold = DefaultAnalogThreshold
		}
		return AnalogSensor{GPIO: gpio, Pin: pin, Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown ring sensor %q (want %s or %s)", kind, SensorDigital, SensorAnalog)
	}
}
