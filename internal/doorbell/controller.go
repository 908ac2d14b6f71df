package doorbell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/api"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/ota"
	"github.com/jonasfh/picobell/internal/provision"
)

// ErrReset is returned after the controller asked the board to reset. The
// host runtime restarts the controller when it sees it.
var ErrReset = errors.New("device reset requested")

// Options wires a controller.
type Options struct {
	Board  *hal.Board
	Config Config
	// Sensor overrides the sensor selected by Config.RingSensor.
	Sensor RingSensor
	// Channel is the pairing transport. Without one, setup falls back to
	// listening immediately.
	Channel provision.Channel
	Display Display
	Events  EventSink
}

type ringWindow struct {
	start    time.Time
	lastPoll time.Time
}

// Controller is the doorbell state machine. It is single-owner: Boot, Step
// and Run must be called from one goroutine.
type Controller struct {
	board   *hal.Board
	clock   hal.Clock
	cfg     Config
	sensor  RingSensor
	channel provision.Channel
	display Display
	events  EventSink

	mode     Mode
	deviceID string
	creds    *hal.Credentials
	backend  *api.Client
	updater  *ota.Updater

	window      *ringWindow
	ringLatched bool
	lastCall    string
	message     string
	pairingName string
	otaProgress *OTAProgress

	bootAt   time.Time
	ledEpoch time.Time
	ledOn    bool
}

func New(opts Options) (*Controller, error) {
	if opts.Board == nil {
		return nil, errors.New("board is required")
	}
	if err := opts.Board.Validate(); err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg.RingSamples < MinRingSamples {
		return nil, fmt.Errorf("ring samples must be at least %d, got %d", MinRingSamples, cfg.RingSamples)
	}
	sensor := opts.Sensor
	if sensor == nil {
		var err error
		sensor, err = NewSensor(cfg.RingSensor, opts.Board.GPIO, cfg.RingPin, cfg.AnalogThreshold)
		if err != nil {
			return nil, err
		}
	}

	c := &Controller{
		board:   opts.Board,
		clock:   opts.Board.Clock,
		cfg:     cfg,
		sensor:  sensor,
		channel: opts.Channel,
		display: opts.Display,
		events:  opts.Events,
		mode:    ModeBooting,
	}
	if c.display == nil {
		c.display = nopDisplay{}
	}
	if c.events == nil {
		c.events = nopSink{}
	}
	c.useBaseURL(cfg.BaseURL)
	return c, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// DeviceID is the lowercase hex MAC, set during Boot.
func (c *Controller) DeviceID() string {
	return c.deviceID
}

// WindowActive reports whether a ring window is open.
func (c *Controller) WindowActive() bool {
	return c.window != nil
}

// Run boots the controller and steps it until ctx is done or a reset is
// requested. Cancellation returns nil.
func (c *Controller) Run(ctx context.Context) error {
	err := c.Boot(ctx)
	for err == nil {
		if ctx.Err() != nil {
			return nil
		}
		err = c.Step(ctx)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Boot decides between setup and normal operation.
func (c *Controller) Boot(ctx context.Context) error {
	c.bootAt = c.clock.Now()
	c.deviceID = strings.ToLower(strings.ReplaceAll(c.board.WiFi.MAC(), ":", ""))
	c.pairingName = provision.AdvertisingName(c.deviceID)
	c.setMode(ModeBooting, "power on")

	logging.Info("Booting",
		zap.String("device_id", c.deviceID),
		zap.String("firmware", c.cfg.FirmwareVersion),
	)

	if c.bootHoldRequested() {
		return c.enterSetup(ctx, "button held at boot")
	}

	creds, err := c.board.Store.Load()
	if err != nil {
		// A bare ErrNoCredentials is a fresh device; anything wrapped is a damaged record.
		if err != hal.ErrNoCredentials {
			logging.Warn("Stored credentials unusable", zap.Error(err))
		}
		return c.enterSetup(ctx, "no credentials")
	}
	c.applyCredentials(creds)

	if !c.board.WiFi.Connect(creds.SSID, creds.Password, c.cfg.ConnectTimeout) {
		logging.Warn("WiFi connect failed at boot", zap.String("ssid", creds.SSID))
		return c.enterSetup(ctx, "wifi connect failed")
	}

	c.setMode(ModeListening, "wifi connected")
	if err := c.checkOTA(ctx); err != nil {
		return err
	}
	c.powerSave()
	return nil
}

func (c *Controller) applyCredentials(creds *hal.Credentials) {
	c.creds = creds
	key := creds.APIKey
	if key == "" {
		key = c.deviceID
	}
	c.board.HTTP.SetAPIKey(key)

	base := c.cfg.BaseURL
	if creds.BaseURL != "" {
		base = creds.BaseURL
	}
	c.useBaseURL(base)
}

func (c *Controller) useBaseURL(base string) {
	c.backend = api.NewClient(c.board.HTTP, api.Endpoints{BaseURL: base})
	c.updater = ota.NewUpdater(c.board.HTTP, c.board.Files, ota.Config{BaseURL: base})
}

// bootHoldRequested reports whether the button is held for BootHold.
func (c *Controller) bootHoldRequested() bool {
	if c.cfg.BootHold <= 0 || c.board.GPIO.ReadDigital(c.cfg.ButtonPin) {
		return false
	}
	start := c.clock.Now()
	for !c.board.GPIO.ReadDigital(c.cfg.ButtonPin) {
		if hal.Since(c.clock, start) >= c.cfg.BootHold {
			return true
		}
		c.clock.Sleep(c.cfg.ButtonDebounce)
	}
	return false
}

// enterSetup runs a pairing session to completion. Success resets the
// device; a timeout returns to listening with whatever credentials were
// already loaded.
func (c *Controller) enterSetup(ctx context.Context, reason string) error {
	c.window = nil
	c.message = "Pair with " + c.pairingName
	c.setMode(ModeSetup, reason)

	if c.channel == nil {
		logging.Warn("No pairing channel configured")
		c.message = "Pairing unavailable"
		c.setMode(ModeListening, "no pairing channel")
		return nil
	}

	session := provision.NewSession(c.board.WiFi, c.board.Store, provision.Config{
		DeviceID:        c.deviceID,
		FirmwareVersion: c.cfg.FirmwareVersion,
		ConnectTimeout:  c.cfg.ConnectTimeout,
	})
	if err := session.Open(c.channel); err != nil {
		logging.Error("Failed to open pairing session", zap.Error(err))
		c.message = "Pairing failed"
		c.setMode(ModeListening, "pairing channel error")
		return nil
	}

	ok := session.Wait(ctx, c.clock, c.cfg.ProvisionTimeout, c.cfg.ProvisionTick, c.updateLED)
	if err := session.Close(); err != nil {
		logging.Warn("Failed to stop pairing channel", zap.Error(err))
	}
	// Close waits for in-flight connects, so one may have finished since Wait gave up.
	if !ok && session.Provisioned() {
		logging.Info("Provisioned while pairing was closing")
		ok = true
	}

	if ok {
		c.message = "Wi-Fi saved"
		c.publish(EventProvisioned, session.LastStatus())
		c.show()
		c.clock.Sleep(c.cfg.ResetGrace)
		return c.reset("provisioned")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.message = "Setup timed out"
	c.setMode(ModeListening, "setup timed out")
	return nil
}

func (c *Controller) checkOTA(ctx context.Context) error {
	plan, found := c.updater.CheckForUpdates(ctx, c.cfg.FirmwareVersion)
	if !found {
		return nil
	}

	c.message = "Updating to " + plan.TargetVersion
	c.publish(EventOTA, "start "+plan.TargetVersion)
	ok := c.updater.Apply(ctx, plan, func(current, total int, done bool) {
		c.otaProgress = &OTAProgress{Current: current, Total: total, Done: done, Version: plan.TargetVersion}
		c.show()
	})
	if !ok {
		c.message = "Update failed"
		c.publish(EventOTA, "failed "+plan.TargetVersion)
		c.show()
		return nil
	}

	c.message = "Update done"
	c.publish(EventOTA, "done "+plan.TargetVersion)
	c.show()
	c.clock.Sleep(c.cfg.ResetGrace)
	return c.reset("firmware updated to " + plan.TargetVersion)
}

func (c *Controller) reset(reason string) error {
	logging.Info("Resetting device", zap.String("reason", reason))
	c.publish(EventReset, reason)
	c.board.Resetter.Reset()
	return fmt.Errorf("%w: %s", ErrReset, reason)
}

func (c *Controller) setMode(m Mode, reason string) {
	if m != c.mode {
		logging.LogModeChange(c.mode.String(), m.String(), reason)
		c.ledEpoch = c.clock.Now()
	}
	c.mode = m
	c.publish(EventMode, reason)
	c.updateLED()
	c.show()
}

func (c *Controller) status() Status {
	s := Status{
		Mode:            c.mode,
		DeviceID:        c.deviceID,
		FirmwareVersion: c.cfg.FirmwareVersion,
		LastCall:        c.lastCall,
		Message:         c.message,
		Online:          c.board.WiFi.Connected(),
		OTA:             c.otaProgress,
		Uptime:          hal.Since(c.clock, c.bootAt),
	}
	if c.mode == ModeSetup {
		s.PairingName = c.pairingName
	}
	if c.window != nil {
		s.WindowActive = true
		s.WindowRemaining = c.cfg.RingWindow - hal.Since(c.clock, c.window.start)
	}
	return s
}

func (c *Controller) show() {
	c.display.Show(c.status())
}

func (c *Controller) publish(kind EventKind, detail string) {
	c.events.Publish(Event{
		Kind:     kind,
		Mode:     c.mode.String(),
		DeviceID: c.deviceID,
		Time:     c.clock.Now(),
		Detail:   detail,
	})
}
