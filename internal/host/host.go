package host

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/pairing"
	"github.com/jonasfh/picobell/internal/provision"
	"github.com/jonasfh/picobell/internal/telemetry"
)

// Options assembles a Host.
type Options struct {
	Runtime *config.Runtime
	// GPIO overrides the backend selected by Runtime.GPIO.
	GPIO    hal.GPIO
	Display doorbell.Display
}

// Host runs the controller on a regular machine. A reset request from the
// controller restarts it with a fresh state, the way the board reboots.
type Host struct {
	rt      *config.Runtime
	board   *hal.Board
	resets  *hal.SoftResetter
	bridge  *pairing.Bridge
	sink    *telemetry.Sink
	display doorbell.Display
	closers []func()

	restarts int
}

func New(opts Options) (*Host, error) {
	if opts.Runtime == nil {
		return nil, errors.New("runtime config is required")
	}
	rt := opts.Runtime
	h := &Host{rt: rt, display: opts.Display, resets: &hal.SoftResetter{}}

	gpio := opts.GPIO
	if gpio == nil {
		var err error
		gpio, err = h.openGPIO()
		if err != nil {
			return nil, err
		}
	}

	wifi := hal.NewHostWiFi(hal.HostWiFiConfig{
		Networks: rt.NetworkMap(),
		Probe:    rt.WiFi.Probe,
		MAC:      rt.WiFi.MAC,
	})

	h.board = &hal.Board{
		Clock:    hal.NewSystemClock(),
		GPIO:     gpio,
		WiFi:     wifi,
		HTTP:     hal.NewRestyHTTP(rt.Device.FirmwareVersion, rt.Device.HTTPTimeout),
		Store:    hal.NewJSONStore(rt.Storage.Credentials),
		Files:    hal.NewDirWriter(rt.Storage.FirmwareDir),
		Resetter: h.resets,
	}

	if rt.Pairing.Enabled {
		cfg := pairing.BridgeConfig{Listen: rt.Pairing.Listen}
		if rt.Pairing.Advertise {
			cfg.Advertiser = pairing.NewMDNSAdvertiser()
		}
		h.bridge = pairing.NewBridge(cfg)
	}

	if rt.MQTT.Broker != "" {
		h.connectTelemetry(wifi.MAC())
	}
	return h, nil
}

func (h *Host) openGPIO() (hal.GPIO, error) {
	rt := h.rt
	switch rt.GPIO.Backend {
	case config.GPIOGPIOCdev:
		cfg := hal.GPIOChipConfig{
			Chip:    rt.GPIO.Chip,
			Inputs:  []hal.Pin{hal.Pin(rt.Pins.Button)},
			Outputs: []hal.Pin{hal.Pin(rt.Pins.Door), hal.Pin(rt.Pins.LED)},
		}
		if rt.Device.RingSensor == doorbell.SensorDigital {
			cfg.Inputs = append(cfg.Inputs, hal.Pin(rt.Pins.Ring))
		} else {
			cfg.AnalogPaths = map[hal.Pin]string{hal.Pin(rt.Pins.Ring): rt.GPIO.AnalogPath}
		}
		chip, err := hal.NewGPIOChip(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open gpio: %w", err)
		}
		h.closers = append(h.closers, func() { _ = chip.Close() })
		return chip, nil
	default:
		return hal.NewSimGPIO(), nil
	}
}

// connectTelemetry mirrors events to MQTT. A broker that cannot be reached
// is logged and skipped.
func (h *Host) connectTelemetry(mac string) {
	rt := h.rt
	clientID := rt.MQTT.ClientID
	if clientID == "" {
		clientID = "picobell-" + mac
	}
	cfg := telemetry.Config{
		Broker:   rt.MQTT.Broker,
		ClientID: clientID,
		Username: rt.MQTT.Username,
		Password: rt.MQTT.Password,
		Prefix:   rt.MQTT.Prefix,
		QoS:      byte(rt.MQTT.QoS),
	}
	client, err := telemetry.Connect(cfg)
	if err != nil {
		logging.Warn("Telemetry disabled", zap.Error(err))
		return
	}
	h.sink = telemetry.NewSink(client, cfg)
	h.closers = append(h.closers, func() {
		h.sink.Close()
		client.Disconnect()
	})
}

// Board is the boundary the controller runs against.
func (h *Host) Board() *hal.Board {
	return h.board
}

// Restarts counts controller restarts after reset requests.
func (h *Host) Restarts() int {
	return h.restarts
}

// PairingAddr is the bound address of the pairing bridge, or "" when none
// is running.
func (h *Host) PairingAddr() string {
	if h.bridge == nil {
		return ""
	}
	return h.bridge.Addr()
}

// Run runs controllers until ctx is done. Any error other than a reset
// request ends the run.
func (h *Host) Run(ctx context.Context) error {
	for {
		opts := doorbell.Options{
			Board:   h.board,
			Config:  h.rt.Controller(),
			Display: h.display,
		}
		if h.bridge != nil {
			opts.Channel = h.bridge
		}
		if h.sink != nil {
			opts.Events = h.sink
		}

		ctrl, err := doorbell.New(opts)
		if err != nil {
			return err
		}
		err = ctrl.Run(ctx)
		if !errors.Is(err, doorbell.ErrReset) {
			return err
		}
		h.restarts++
		logging.Info("Restarting controller", zap.Int("restarts", h.restarts), zap.String("reason", err.Error()))
	}
}

// Close releases the GPIO lines, the pairing bridge and the broker
// connection.
func (h *Host) Close() {
	if h.bridge != nil {
		_ = h.bridge.Stop()
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
	h.closers = nil
}

var _ provision.Channel = (*pairing.Bridge)(nil)
