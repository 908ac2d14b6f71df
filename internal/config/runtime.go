package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/urls"
	"github.com/jonasfh/picobell/internal/version"
)

// EnvPrefix prefixes environment overrides, e.g. PICOBELL_DEVICE_BASE_URL.
const EnvPrefix = "PICOBELL"

// GPIO backends.
const (
	GPIOSim      = "sim"
	GPIOGPIOCdev = "gpiocdev"
)

// Runtime is the host runtime configuration read by cmd/picobell.
type Runtime struct {
	LogLevel string          `mapstructure:"log_level"`
	Device   DeviceSettings  `mapstructure:"device"`
	Timing   TimingSettings  `mapstructure:"timing"`
	Pins     PinSettings     `mapstructure:"pins"`
	Storage  StorageSettings `mapstructure:"storage"`
	GPIO     GPIOSettings    `mapstructure:"gpio"`
	WiFi     WiFiSettings    `mapstructure:"wifi"`
	Pairing  PairingSettings `mapstructure:"pairing"`
	MQTT     MQTTSettings    `mapstructure:"mqtt"`
	Backend  BackendSettings `mapstructure:"backend"`
}

type DeviceSettings struct {
	BaseURL         string        `mapstructure:"base_url"`
	FirmwareVersion string        `mapstructure:"firmware_version"`
	RingSensor      string        `mapstructure:"ring_sensor"`
	AnalogThreshold uint16        `mapstructure:"analog_threshold"`
	PowerSave       bool          `mapstructure:"power_save"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

type TimingSettings struct {
	LongPress          time.Duration `mapstructure:"long_press"`
	ButtonDebounce     time.Duration `mapstructure:"button_debounce"`
	ButtonPoll         time.Duration `mapstructure:"button_poll"`
	BootHold           time.Duration `mapstructure:"boot_hold"`
	RingDebounce       time.Duration `mapstructure:"ring_debounce"`
	RingSamples        int           `mapstructure:"ring_samples"`
	RingSampleInterval time.Duration `mapstructure:"ring_sample_interval"`
	DoorPulse          time.Duration `mapstructure:"door_pulse"`
	StatusInterval     time.Duration `mapstructure:"status_interval"`
	RingWindow         time.Duration `mapstructure:"ring_window"`
	IdleSleep          time.Duration `mapstructure:"idle_sleep"`
	ActiveSleep        time.Duration `mapstructure:"active_sleep"`
	ResetGrace         time.Duration `mapstructure:"reset_grace"`
	ProvisionTimeout   time.Duration `mapstructure:"provision_timeout"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
}

type PinSettings struct {
	Button int `mapstructure:"button"`
	Ring   int `mapstructure:"ring"`
	Door   int `mapstructure:"door"`
	LED    int `mapstructure:"led"`
}

type StorageSettings struct {
	// Credentials is the JSON credentials record.
	Credentials string `mapstructure:"credentials"`
	// FirmwareDir receives OTA files.
	FirmwareDir string `mapstructure:"firmware_dir"`
}

type GPIOSettings struct {
	Backend string `mapstructure:"backend"`
	Chip    string `mapstructure:"chip"`
	// AnalogPath is the IIO raw file of the ring divider.
	AnalogPath string `mapstructure:"analog_path"`
}

// Network is one Wi-Fi network the host runtime accepts.
type Network struct {
	SSID     string `mapstructure:"ssid"`
	Password string `mapstructure:"password"`
}

type WiFiSettings struct {
	// Networks restricts which credentials associate. Empty accepts any.
	Networks []Network `mapstructure:"networks"`
	// Probe is dialed to decide whether the host is online.
	Probe string `mapstructure:"probe"`
	MAC   string `mapstructure:"mac"`
}

type PairingSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Advertise bool   `mapstructure:"advertise"`
}

type MQTTSettings struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
	QoS      int    `mapstructure:"qos"`
}

type BackendSettings struct {
	Listen          string   `mapstructure:"listen"`
	APIKeys         []string `mapstructure:"api_keys"`
	FirmwareVersion string   `mapstructure:"firmware_version"`
	FirmwareDir     string   `mapstructure:"firmware_dir"`
}

// NewViper returns a viper instance with every default set and
// PICOBELL_* environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	d := doorbell.DefaultConfig()
	dataDir := defaultDataDir()
	// Durations are stored as strings ("10s").
	dur := func(key string, value time.Duration) {
		v.SetDefault(key, value.String())
	}

	v.SetDefault("log_level", "info")

	v.SetDefault("device.base_url", urls.DefaultBaseURL)
	v.SetDefault("device.firmware_version", version.Firmware)
	v.SetDefault("device.ring_sensor", d.RingSensor)
	v.SetDefault("device.analog_threshold", d.AnalogThreshold)
	v.SetDefault("device.power_save", d.PowerSave)
	dur("device.http_timeout", 10*time.Second)

	dur("timing.long_press", d.LongPress)
	dur("timing.button_debounce", d.ButtonDebounce)
	dur("timing.button_poll", d.ButtonPoll)
	dur("timing.boot_hold", d.BootHold)
	dur("timing.ring_debounce", d.RingDebounce)
	v.SetDefault("timing.ring_samples", d.RingSamples)
	dur("timing.ring_sample_interval", d.RingSampleInterval)
	dur("timing.door_pulse", d.DoorPulse)
	dur("timing.status_interval", d.StatusInterval)
	dur("timing.ring_window", d.RingWindow)
	dur("timing.idle_sleep", d.IdleSleep)
	dur("timing.active_sleep", d.ActiveSleep)
	dur("timing.reset_grace", d.ResetGrace)
	dur("timing.provision_timeout", d.ProvisionTimeout)
	dur("timing.connect_timeout", d.ConnectTimeout)

	v.SetDefault("pins.button", int(d.ButtonPin))
	v.SetDefault("pins.ring", int(d.RingPin))
	v.SetDefault("pins.door", int(d.DoorPin))
	v.SetDefault("pins.led", int(d.LEDPin))

	v.SetDefault("storage.credentials", filepath.Join(dataDir, "credentials.json"))
	v.SetDefault("storage.firmware_dir", filepath.Join(dataDir, "firmware"))

	v.SetDefault("gpio.backend", GPIOSim)
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.analog_path", "/sys/bus/iio/devices/iio:device0/in_voltage0_raw")

	v.SetDefault("wifi.networks", []Network{})
	v.SetDefault("wifi.probe", "")
	v.SetDefault("wifi.mac", "")

	v.SetDefault("pairing.enabled", true)
	v.SetDefault("pairing.listen", ":8765")
	v.SetDefault("pairing.advertise", true)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.prefix", "picobell")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("backend.listen", ":8080")
	v.SetDefault("backend.api_keys", []string{})
	v.SetDefault("backend.firmware_version", version.Firmware)
	v.SetDefault("backend.firmware_dir", filepath.Join(dataDir, "firmware-latest"))
}

func defaultDataDir() string {
	dir, err := GetConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

// Load reads path (when not empty) into a fresh viper and decodes it.
func Load(path string) (*Runtime, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith reads path into v, which may already have flags bound, and
// decodes the result. A missing file at an explicit path is an error.
func LoadWith(v *viper.Viper, path string) (*Runtime, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var rt Runtime
	if err := v.Unmarshal(&rt); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return &rt, nil
}

// Validate rejects settings the controller cannot run with.
func (r *Runtime) Validate() error {
	var errs []error
	switch r.Device.RingSensor {
	case doorbell.SensorAnalog, doorbell.SensorDigital:
	default:
		errs = append(errs, fmt.Errorf("device.ring_sensor must be %q or %q, got %q",
			doorbell.SensorAnalog, doorbell.SensorDigital, r.Device.RingSensor))
	}
	switch r.GPIO.Backend {
	case GPIOSim, GPIOGPIOCdev:
	default:
		errs = append(errs, fmt.Errorf("gpio.backend must be %q or %q, got %q", GPIOSim, GPIOGPIOCdev, r.GPIO.Backend))
	}
	if r.Timing.RingSamples < doorbell.MinRingSamples {
		errs = append(errs, fmt.Errorf("timing.ring_samples must be at least %d, got %d",
			doorbell.MinRingSamples, r.Timing.RingSamples))
	}
	if r.Timing.StatusInterval <= 0 || r.Timing.RingWindow <= 0 {
		errs = append(errs, errors.New("timing.status_interval and timing.ring_window must be positive"))
	}
	if r.Timing.IdleSleep <= 0 || r.Timing.ActiveSleep <= 0 {
		errs = append(errs, errors.New("timing.idle_sleep and timing.active_sleep must be positive"))
	}
	if r.MQTT.QoS < 0 || r.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", r.MQTT.QoS))
	}
	return errors.Join(errs...)
}

// Controller maps the runtime settings onto the controller's config.
func (r *Runtime) Controller() doorbell.Config {
	return doorbell.Config{
		ButtonPin: hal.Pin(r.Pins.Button),
		RingPin:   hal.Pin(r.Pins.Ring),
		DoorPin:   hal.Pin(r.Pins.Door),
		LEDPin:    hal.Pin(r.Pins.LED),

		RingSensor:      r.Device.RingSensor,
		AnalogThreshold: r.Device.AnalogThreshold,

		BaseURL:         r.Device.BaseURL,
		FirmwareVersion: r.Device.FirmwareVersion,

		LongPress:      r.Timing.LongPress,
		ButtonDebounce: r.Timing.ButtonDebounce,
		ButtonPoll:     r.Timing.ButtonPoll,
		BootHold:       r.Timing.BootHold,

		RingDebounce:       r.Timing.RingDebounce,
		RingSamples:        r.Timing.RingSamples,
		RingSampleInterval: r.Timing.RingSampleInterval,

		DoorPulse:      r.Timing.DoorPulse,
		StatusInterval: r.Timing.StatusInterval,
		RingWindow:     r.Timing.RingWindow,

		IdleSleep:   r.Timing.IdleSleep,
		ActiveSleep: r.Timing.ActiveSleep,

		ResetGrace:       r.Timing.ResetGrace,
		ProvisionTimeout: r.Timing.ProvisionTimeout,
		ProvisionTick:    doorbell.DefaultConfig().ProvisionTick,
		ConnectTimeout:   r.Timing.ConnectTimeout,

		PowerSave: r.Device.PowerSave,
	}
}

// NetworkMap returns the configured networks keyed by SSID.
func (r *Runtime) NetworkMap() map[string]string {
	if len(r.WiFi.Networks) == 0 {
		return nil
	}
	m := make(map[string]string, len(r.WiFi.Networks))
	for _, n := range r.WiFi.Networks {
		m[n.SSID] = n.Password
	}
	return m
}

// WriteDefault writes every default setting to path. An existing file is
// left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
