package hal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Pin identifies a GPIO line (or ADC channel for analog reads).
type Pin int

// Default pin assignment of the call-box board.
const (
	PinButton Pin = 15
	PinRing   Pin = 10
	PinDoor   Pin = 11
	PinLED    Pin = 25
)

// Clock is the time source of the controller. Sleep and LowPowerSleep are the
// only blocking points of the control loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	// LowPowerSleep has the same contract as Sleep but tells the board that
	// radio and peripherals may be quiesced for the duration.
	LowPowerSleep(d time.Duration)
}

// TimeSetter is implemented by clocks that accept a server time sync.
type TimeSetter interface {
	SetTime(t time.Time)
}

// Since returns the time elapsed on clock since t.
func Since(clock Clock, t time.Time) time.Duration {
	return clock.Now().Sub(t)
}

// GPIO reads and drives the board's lines.
type GPIO interface {
	ReadDigital(pin Pin) bool
	ReadAnalog(pin Pin) uint16
	WriteDigital(pin Pin, value bool)
}

// WiFi is the station interface.
type WiFi interface {
	Connect(ssid, password string, timeout time.Duration) bool
	Disconnect()
	Connected() bool
	// MAC returns the hardware address as lowercase hex without separators.
	MAC() string
}

// Addresser is implemented by Wi-Fi interfaces that can report their address.
type Addresser interface {
	Address() string
}

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if r == nil {
		return NewParseError("empty response", nil)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return NewParseError("invalid JSON body", err)
	}
	return nil
}

// HTTP performs authenticated requests against the backend. Both methods
// attach the Apartment authorization and firmware version headers. A non-2xx
// status is returned as a *RequestError alongside the response.
type HTTP interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body []byte) (*Response, error)
	SetAPIKey(key string)
}

// ErrNoCredentials is returned by CredentialStore.Load when the device is
// not provisioned. Unreadable or malformed records wrap it too.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the persisted provisioning record.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"pwd"`
	APIKey   string `json:"device_api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// ParseCredentials decodes a stored record. All of ssid, pwd and
// device_api_key must be present; pwd may be empty for open networks.
func ParseCredentials(data []byte) (*Credentials, error) {
	var raw struct {
		SSID     *string `json:"ssid"`
		Password *string `json:"pwd"`
		APIKey   *string `json:"device_api_key"`
		BaseURL  string  `json:"base_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCredentials, err)
	}
	if raw.SSID == nil || raw.Password == nil || raw.APIKey == nil {
		return nil, fmt.Errorf("%w: missing required keys", ErrNoCredentials)
	}
	return &Credentials{
		SSID:     *raw.SSID,
		Password: *raw.Password,
		APIKey:   *raw.APIKey,
		BaseURL:  raw.BaseURL,
	}, nil
}

// CredentialStore persists the provisioning record. Save is atomic: either
// the full record lands or the previous one stays.
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(creds Credentials) error
}

// FileWriter replaces firmware files. WriteFile either fully replaces the
// named file or returns an error.
type FileWriter interface {
	WriteFile(name string, data []byte) error
}

// Resetter restarts the device.
type Resetter interface {
	Reset()
}

// Board bundles the boundary the controller runs against.
type Board struct {
	Clock    Clock
	GPIO     GPIO
	WiFi     WiFi
	HTTP     HTTP
	Store    CredentialStore
	Files    FileWriter
	Resetter Resetter
}

// Validate reports the first missing collaborator.
func (b *Board) Validate() error {
	switch {
	case b.Clock == nil:
		return errors.New("board: clock is required")
	case b.GPIO == nil:
		return errors.New("board: gpio is required")
	case b.WiFi == nil:
		return errors.New("board: wifi is required")
	case b.HTTP == nil:
		return errors.New("board: http is required")
	case b.Store == nil:
		return errors.New("board: credential store is required")
	case b.Files == nil:
		return errors.New("board: file writer is required")
	case b.Resetter == nil:
		return errors.New("board: resetter is required")
	}
	return nil
}
