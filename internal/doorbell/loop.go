package doorbell

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/api"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/logging"
)

// Step runs one pass of the steady-state loop: button, ring, ring window,
// then sleep. The order is fixed; a ring confirmed in this pass is polled
// by the window check of a later pass.
func (c *Controller) Step(ctx context.Context) error {
	if err := c.checkButton(ctx); err != nil {
		return err
	}
	c.checkRing(ctx)
	c.checkWindow(ctx)

	if c.window != nil {
		c.pause(c.cfg.ActiveSleep, false)
	} else {
		c.pause(c.cfg.IdleSleep, true)
	}
	return nil
}

// checkButton treats a press released before LongPress as a door-open
// request and a press held for LongPress as a request to re-provision.
func (c *Controller) checkButton(ctx context.Context) error {
	gpio := c.board.GPIO
	if gpio.ReadDigital(c.cfg.ButtonPin) {
		return nil
	}

	start := c.clock.Now()
	c.clock.Sleep(c.cfg.ButtonDebounce)
	if gpio.ReadDigital(c.cfg.ButtonPin) {
		logging.Debug("Button bounce ignored")
		return nil
	}

	for !gpio.ReadDigital(c.cfg.ButtonPin) {
		if hal.Since(c.clock, start) >= c.cfg.LongPress {
			logging.Info("Button long press", zap.Duration("held", hal.Since(c.clock, start)))
			return c.enterSetup(ctx, "button long press")
		}
		c.clock.Sleep(c.cfg.ButtonPoll)
	}

	logging.Info("Button short press", zap.Duration("held", hal.Since(c.clock, start)))
	c.openDoor("button")
	return nil
}

// checkRing confirms a ring across the debounce pause and RingSamples
// further samples. Any sample that is not asserted discards the event. A
// ring that stays asserted triggers once; the latch re-arms on the first
// sample that reads not asserted.
func (c *Controller) checkRing(ctx context.Context) {
	if !c.sensor.Asserted() {
		c.ringLatched = false
		return
	}
	if c.ringLatched {
		return
	}

	c.clock.Sleep(c.cfg.RingDebounce)
	for i := 0; i < c.cfg.RingSamples; i++ {
		if !c.sensor.Asserted() {
			c.ringLatched = false
			logging.Debug("Ring discarded as noise", zap.Int("sample", i+1))
			return
		}
		if i < c.cfg.RingSamples-1 {
			c.clock.Sleep(c.cfg.RingSampleInterval)
		}
	}

	c.ringLatched = true
	c.onRing(ctx)
}

func (c *Controller) onRing(ctx context.Context) {
	logging.Info("Ring detected", zap.Bool("window_open", c.window != nil))
	c.publish(EventRing, "")
	c.lastCall = c.clock.Now().Format(api.LastCallLayout)

	if c.creds == nil {
		c.message = "Ring (not provisioned)"
		c.show()
		return
	}

	if c.ensureOnline() {
		res, err := c.backend.Ring(ctx)
		if err != nil {
			logRequestFailure("Ring notification failed", err, true)
			c.message = hal.ShortErrorMessage(err)
		} else {
			c.message = "Ring sent"
			c.syncTime(res)
			if res.LastCall != "" {
				c.lastCall = res.LastCall
			}
		}
	} else {
		c.message = "Offline"
	}

	if c.window != nil {
		logging.Info("Ring window restarted")
	}
	now := c.clock.Now()
	c.window = &ringWindow{start: now, lastPoll: now}
	c.show()
	c.powerSave()
}

func (c *Controller) syncTime(res *api.RingResult) {
	if res.ServerTime.IsZero() {
		return
	}
	setter, ok := c.clock.(hal.TimeSetter)
	if !ok {
		return
	}
	before := c.clock.Now()
	setter.SetTime(res.ServerTime)
	delta := c.clock.Now().Sub(before)
	c.bootAt = c.bootAt.Add(delta)
	c.ledEpoch = c.ledEpoch.Add(delta)
	logging.Debug("Clock synced", zap.Time("server_time", res.ServerTime))
}

// checkWindow polls the open status every StatusInterval while a window is
// open. No poll is made once the window's duration has elapsed.
func (c *Controller) checkWindow(ctx context.Context) {
	w := c.window
	if w == nil {
		return
	}
	if c.windowExpired() {
		c.closeWindow("expired")
		return
	}
	if hal.Since(c.clock, w.lastPoll) < c.cfg.StatusInterval {
		return
	}

	online := c.ensureOnline()
	if c.windowExpired() {
		c.closeWindow("expired")
		return
	}
	w.lastPoll = c.clock.Now()
	if !online {
		logging.Debug("Status poll skipped, offline")
		return
	}

	open, err := c.backend.Status(ctx)
	if err != nil {
		logRequestFailure("Status poll failed", err, false)
		c.powerSave()
		return
	}
	if open {
		c.closeWindow("door opened")
		c.openDoor("remote")
	}
	c.powerSave()
}

// logRequestFailure logs a backend failure by class. A rejected key is an
// error; a bad status or body is a warning; transient failures are warnings
// only when loud is set.
func logRequestFailure(msg string, err error, loud bool) {
	fields := []zap.Field{zap.String("error", hal.ShortErrorMessage(err))}
	switch {
	case hal.IsAuthError(err):
		logging.Error(msg, fields...)
	case hal.IsParseError(err), hal.IsHTTPError(err) && !hal.IsRetryable(err):
		logging.Warn(msg, append(fields, zap.Error(err))...)
	case loud:
		logging.Warn(msg, fields...)
	default:
		logging.Debug(msg, fields...)
	}
}

func (c *Controller) windowExpired() bool {
	return hal.Since(c.clock, c.window.start) >= c.cfg.RingWindow
}

func (c *Controller) closeWindow(reason string) {
	c.window = nil
	logging.Info("Ring window closed", zap.String("reason", reason))
	c.publish(EventWindowClosed, reason)
	c.show()
}

// openDoor pulses the relay.
func (c *Controller) openDoor(source string) {
	c.message = "Door opened (" + source + ")"
	c.setMode(ModeOpening, source)
	c.publish(EventDoorOpen, source)

	c.board.GPIO.WriteDigital(c.cfg.DoorPin, true)
	c.clock.Sleep(c.cfg.DoorPulse)
	c.board.GPIO.WriteDigital(c.cfg.DoorPin, false)

	c.setMode(ModeListening, "door pulse complete")
}

func (c *Controller) ensureOnline() bool {
	if c.board.WiFi.Connected() {
		return true
	}
	if c.creds == nil {
		return false
	}
	ok := c.board.WiFi.Connect(c.creds.SSID, c.creds.Password, c.cfg.ConnectTimeout)
	if !ok {
		logging.Warn("WiFi reconnect failed", zap.String("ssid", c.creds.SSID))
	}
	return ok
}

func (c *Controller) powerSave() {
	if c.cfg.PowerSave && c.board.WiFi.Connected() {
		c.board.WiFi.Disconnect()
		logging.Debug("WiFi disconnected to save power")
	}
}

// updateLED drives the status LED from the mode's blink pattern.
func (c *Controller) updateLED() {
	on, _, _ := c.ledPhase()
	c.setLED(on)
}

// ledPhase returns the LED level now and the time until the next edge.
func (c *Controller) ledPhase() (on bool, untilEdge time.Duration, ok bool) {
	p, ok := ledPatterns[c.mode]
	if !ok {
		return false, 0, false
	}
	period := p.on + p.off
	phase := hal.Since(c.clock, c.ledEpoch) % period
	if phase < 0 {
		phase += period
	}
	if phase < p.on {
		return true, p.on - phase, true
	}
	return false, period - phase, true
}

func (c *Controller) setLED(on bool) {
	if on == c.ledOn {
		return
	}
	c.ledOn = on
	c.board.GPIO.WriteDigital(c.cfg.LEDPin, on)
}

// pause sleeps for d, switching the LED at pattern edges on the way.
func (c *Controller) pause(d time.Duration, lowPower bool) {
	end := c.clock.Now().Add(d)
	for {
		remaining := end.Sub(c.clock.Now())
		if remaining <= 0 {
			return
		}
		step := remaining
		on, edge, ok := c.ledPhase()
		c.setLED(on)
		if ok && edge < step {
			step = edge
		}
		if lowPower {
			c.clock.LowPowerSleep(step)
		} else {
			c.clock.Sleep(step)
		}
	}
}
