package doorbell

import (
	"time"

	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/urls"
)

// MinRingSamples is the fewest confirmation samples a ring is accepted on.
const MinRingSamples = 3

// Config holds the controller's pins and timings.
type Config struct {
	ButtonPin hal.Pin
	RingPin   hal.Pin
	DoorPin   hal.Pin
	LEDPin    hal.Pin

	RingSensor      string
	AnalogThreshold uint16

	// BaseURL is used unless the stored credentials override it.
	BaseURL         string
	FirmwareVersion string

	LongPress      time.Duration
	ButtonDebounce time.Duration
	ButtonPoll     time.Duration
	BootHold       time.Duration

	RingDebounce       time.Duration
	// RingSamples is the number of confirmation samples, at least
	// MinRingSamples.
	RingSamples        int
	RingSampleInterval time.Duration

	DoorPulse      time.Duration
	StatusInterval time.Duration
	RingWindow     time.Duration

	IdleSleep   time.Duration
	ActiveSleep time.Duration

	ResetGrace       time.Duration
	ProvisionTimeout time.Duration
	ProvisionTick    time.Duration
	ConnectTimeout   time.Duration

	// PowerSave drops Wi-Fi between events and reconnects on demand.
	PowerSave bool
}

// DefaultConfig returns the call-box defaults.
func DefaultConfig() Config {
	return Config{
		ButtonPin: hal.PinButton,
		RingPin:   hal.PinRing,
		DoorPin:   hal.PinDoor,
		LEDPin:    hal.PinLED,

		RingSensor:      SensorAnalog,
		AnalogThreshold: DefaultAnalogThreshold,

		BaseURL:         urls.DefaultBaseURL,
		FirmwareVersion: "0.0.0",

		LongPress:      10 * time.Second,
		ButtonDebounce: 50 * time.Millisecond,
		ButtonPoll:     100 * time.Millisecond,
		BootHold:       4 * time.Second,

		RingDebounce:       50 * time.Millisecond,
		RingSamples:        3,
		RingSampleInterval: 50 * time.Millisecond,

		DoorPulse:      300 * time.Millisecond,
		StatusInterval: 10 * time.Second,
		RingWindow:     5 * time.Minute,

		IdleSleep:   time.Second,
		ActiveSleep: 100 * time.Millisecond,

		ResetGrace:       2 * time.Second,
		ProvisionTimeout: 5 * time.Minute,
		ProvisionTick:    200 * time.Millisecond,
		ConnectTimeout:   20 * time.Second,

		PowerSave: true,
	}
}

type blinkPattern struct {
	on, off time.Duration
}

var ledPatterns = map[Mode]blinkPattern{
	ModeListening: {on: 900 * time.Millisecond, off: 100 * time.Millisecond},
	ModeSetup:     {on: 200 * time.Millisecond, off: 200 * time.Millisecond},
}
