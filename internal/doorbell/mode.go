package doorbell

import "time"

// Mode is the operating state shown on the panel and the status LED.
type Mode int

const (
	ModeBooting Mode = iota
	ModeListening
	ModeSetup
	ModeOpening
)

func (m Mode) String() string {
	switch m {
	case ModeBooting:
		return "BOOTING"
	case ModeListening:
		return "LISTENING"
	case ModeSetup:
		return "SETUP"
	case ModeOpening:
		return "OPENING"
	default:
		return "UNKNOWN"
	}
}

// OTAProgress is the last progress report of a firmware update.
type OTAProgress struct {
	Current int
	Total   int
	Done    bool
	Version string
}

// Status is everything the panel renders.
type Status struct {
	Mode            Mode
	DeviceID        string
	FirmwareVersion string
	LastCall        string
	Message         string
	Online          bool
	WindowActive    bool
	WindowRemaining time.Duration
	PairingName     string
	OTA             *OTAProgress
	Uptime          time.Duration
}

// Display renders a status. Implementations must not block for long.
type Display interface {
	Show(s Status)
}

// EventKind names a controller event.
type EventKind string

const (
	EventMode         EventKind = "mode"
	EventRing         EventKind = "ring"
	EventDoorOpen     EventKind = "door_open"
	EventWindowClosed EventKind = "window_closed"
	EventOTA          EventKind = "ota"
	EventProvisioned  EventKind = "provisioned"
	EventReset        EventKind = "reset"
)

// Event is a fact reported to an EventSink.
type Event struct {
	Kind     EventKind `json:"kind"`
	Mode     string    `json:"mode"`
	DeviceID string    `json:"device_id"`
	Time     time.Time `json:"time"`
	Detail   string    `json:"detail,omitempty"`
}

// EventSink receives controller events. Publish must not block the loop.
type EventSink interface {
	Publish(e Event)
}

type nopDisplay struct{}

func (nopDisplay) Show(Status) {}

type nopSink struct{}

func (nopSink) Publish(Event) {}
