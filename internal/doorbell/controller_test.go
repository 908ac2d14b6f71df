package doorbell

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/hal/haltest"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/provision"
)

const testBase = "http://bell.test"

var (
	ringURL    = testBase + "/doorbell/ring"
	statusURL  = testBase + "/doorbell/status"
	versionURL = testBase + "/pico/fw_version"
)

func testCreds() *hal.Credentials {
	return &hal.Credentials{SSID: "HomeNet", Password: "hunter22", APIKey: "apt-key"}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = testBase
	cfg.FirmwareVersion = "1.0.0"
	return cfg
}

type recordingDisplay struct {
	statuses []Status
}

func (d *recordingDisplay) Show(s Status) {
	d.statuses = append(d.statuses, s)
}

// modes returns the shown modes with consecutive repeats collapsed.
func (d *recordingDisplay) modes() []Mode {
	var out []Mode
	for _, s := range d.statuses {
		if len(out) == 0 || out[len(out)-1] != s.Mode {
			out = append(out, s.Mode)
		}
	}
	return out
}

func (d *recordingDisplay) last() Status {
	return d.statuses[len(d.statuses)-1]
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.events = append(s.events, e)
}

func (s *recordingSink) count(kind EventKind) int {
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeChannel struct {
	session    *provision.Session
	advertised []string
	notes      []string
	stops      int
	startErr   error
	// onStop runs inside Stop, as a transport callback still in flight would.
	onStop func()
}

func (f *fakeChannel) Start(s *provision.Session) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.session = s
	return nil
}

func (f *fakeChannel) Advertise(name string) error {
	f.advertised = append(f.advertised, name)
	return nil
}

func (f *fakeChannel) Notify(peer, msg string) {
	f.notes = append(f.notes, msg)
}

func (f *fakeChannel) Stop() error {
	f.stops++
	if f.onStop != nil {
		f.onStop()
	}
	return nil
}

type harness struct {
	t       *testing.T
	fakes   *haltest.Board
	display *recordingDisplay
	events  *recordingSink
	channel *fakeChannel
	ctrl    *Controller
}

func newHarness(t *testing.T, creds *hal.Credentials, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		fakes:   haltest.NewBoard(creds),
		display: &recordingDisplay{},
		events:  &recordingSink{},
		channel: &fakeChannel{},
	}
	h.fakes.HTTP.Handle("GET", versionURL, haltest.JSON(200, `{"fw_version":"1.0.0"}`))

	ctrl, err := New(Options{
		Board:   h.fakes.HAL(),
		Config:  cfg,
		Channel: h.channel,
		Display: h.display,
		Events:  h.events,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.ctrl = ctrl
	return h
}

func (h *harness) boot() {
	h.t.Helper()
	if err := h.ctrl.Boot(context.Background()); err != nil {
		h.t.Fatalf("Boot() error = %v", err)
	}
}

func (h *harness) step(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		if err := h.ctrl.Step(context.Background()); err != nil {
			h.t.Fatalf("Step() error = %v", err)
		}
	}
}

// stepUntil steps until cond holds, failing after max steps.
func (h *harness) stepUntil(max int, cond func() bool) {
	h.t.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		h.step(1)
	}
	if !cond() {
		h.t.Fatalf("condition not reached after %d steps", max)
	}
}

func (h *harness) ring() {
	h.fakes.GPIO.QueueAnalog(hal.PinRing, hal.RingAnalog, hal.RingAnalog, hal.RingAnalog, hal.RingAnalog)
}

func TestNew_RequiresBoard(t *testing.T) {
	if _, err := New(Options{Config: DefaultConfig()}); err == nil {
		t.Error("New() without board should fail")
	}

	board := haltest.NewBoard(nil).HAL()
	board.HTTP = nil
	if _, err := New(Options{Board: board, Config: DefaultConfig()}); err == nil {
		t.Error("New() with incomplete board should fail")
	}
}

func TestNew_RejectsUnknownSensor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RingSensor = "hall-effect"
	if _, err := New(Options{Board: haltest.NewBoard(nil).HAL(), Config: cfg}); err == nil {
		t.Error("New() with unknown sensor should fail")
	}
}

func TestNew_RejectsTooFewRingSamples(t *testing.T) {
	for _, n := range []int{0, 1, MinRingSamples - 1} {
		cfg := DefaultConfig()
		cfg.RingSamples = n
		if _, err := New(Options{Board: haltest.NewBoard(nil).HAL(), Config: cfg}); err == nil {
			t.Errorf("New() with %d ring samples should fail", n)
		}
	}
}

func TestBoot_WithCredentialsListens(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.boot()

	if h.ctrl.Mode() != ModeListening {
		t.Errorf("Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	if h.ctrl.DeviceID() != "28cdc10a1b2c" {
		t.Errorf("DeviceID() = %q", h.ctrl.DeviceID())
	}
	if got := h.fakes.HTTP.APIKey(); got != "apt-key" {
		t.Errorf("API key = %q, want apt-key", got)
	}
	attempts := h.fakes.WiFi.Attempts()
	if len(attempts) != 1 || attempts[0].SSID != "HomeNet" || attempts[0].Password != "hunter22" {
		t.Errorf("WiFi attempts = %+v", attempts)
	}
	if h.fakes.HTTP.Count("GET", versionURL) != 1 {
		t.Errorf("version checks = %d, want 1", h.fakes.HTTP.Count("GET", versionURL))
	}
	if h.fakes.WiFi.Connected() {
		t.Error("WiFi should be dropped after boot in power-save mode")
	}
	if h.channel.session != nil {
		t.Error("pairing channel should not be started")
	}
}

func TestBoot_APIKeyFallsBackToDeviceID(t *testing.T) {
	creds := testCreds()
	creds.APIKey = ""
	h := newHarness(t, creds, testConfig())
	h.boot()

	if got := h.fakes.HTTP.APIKey(); got != "28cdc10a1b2c" {
		t.Errorf("API key = %q, want device id", got)
	}
}

func TestBoot_StoredBaseURLOverridesConfig(t *testing.T) {
	creds := testCreds()
	creds.BaseURL = "http://other.test"
	h := newHarness(t, creds, testConfig())
	h.boot()

	if h.fakes.HTTP.Count("GET", "http://other.test/pico/fw_version") != 1 {
		t.Errorf("calls = %+v", h.fakes.HTTP.Calls())
	}
}

func TestBoot_NoCredentialsProvisionsAndResets(t *testing.T) {
	h := newHarness(t, nil, testConfig())

	start := h.fakes.Clock.Now()
	done := false
	h.fakes.Clock.OnAdvance(func(now time.Time) {
		s := h.channel.session
		if done || s == nil || now.Sub(start) < time.Second {
			return
		}
		done = true
		s.OnConnect("phone")
		s.OnWrite("phone", provision.FieldSSID, []byte("MyWiFi"))
		s.OnWrite("phone", provision.FieldPassword, []byte("secret123"))
		s.OnWrite("phone", provision.FieldAPIKey, []byte("abc"))
		s.OnWrite("phone", provision.FieldCommand, []byte("connect"))
	})

	err := h.ctrl.Boot(context.Background())
	if !errors.Is(err, ErrReset) {
		t.Fatalf("Boot() error = %v, want ErrReset", err)
	}

	saved := h.fakes.Store.Saved()
	if saved == nil || saved.SSID != "MyWiFi" || saved.Password != "secret123" || saved.APIKey != "abc" {
		t.Errorf("saved = %+v", saved)
	}
	if h.fakes.Resetter.Count() != 1 {
		t.Errorf("resets = %d, want 1", h.fakes.Resetter.Count())
	}
	if len(h.channel.advertised) == 0 || h.channel.advertised[0] != "Picobell-1b2c" {
		t.Errorf("advertised = %v", h.channel.advertised)
	}
	if h.channel.stops != 1 {
		t.Errorf("channel stops = %d, want 1", h.channel.stops)
	}
	wantNotes := []string{provision.StatusConnecting, provision.StatusConnected + ":192.168.1.50"}
	if len(h.channel.notes) != len(wantNotes) {
		t.Fatalf("notes = %v, want %v", h.channel.notes, wantNotes)
	}
	for i := range wantNotes {
		if h.channel.notes[i] != wantNotes[i] {
			t.Errorf("notes[%d] = %q, want %q", i, h.channel.notes[i], wantNotes[i])
		}
	}

	modes := h.display.modes()
	if len(modes) < 2 || modes[0] != ModeBooting || modes[1] != ModeSetup {
		t.Errorf("modes = %v, want BOOTING then SETUP", modes)
	}
	for _, m := range modes {
		if m == ModeListening {
			t.Error("controller should reset without listening")
		}
	}
	if h.events.count(EventProvisioned) != 1 || h.events.count(EventReset) != 1 {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestBoot_ConnectFinishingDuringCloseResets(t *testing.T) {
	h := newHarness(t, nil, testConfig())
	h.channel.onStop = func() {
		s := h.channel.session
		s.OnConnect("phone")
		s.OnWrite("phone", provision.FieldSSID, []byte("MyWiFi"))
		s.OnWrite("phone", provision.FieldPassword, []byte("secret123"))
		s.OnWrite("phone", provision.FieldAPIKey, []byte("abc"))
		s.OnWrite("phone", provision.FieldCommand, []byte("connect"))
	}

	err := h.ctrl.Boot(context.Background())
	if !errors.Is(err, ErrReset) {
		t.Fatalf("Boot() error = %v, want ErrReset", err)
	}
	if saved := h.fakes.Store.Saved(); saved == nil || saved.SSID != "MyWiFi" {
		t.Errorf("saved = %+v", saved)
	}
	if h.fakes.Resetter.Count() != 1 {
		t.Errorf("resets = %d, want 1", h.fakes.Resetter.Count())
	}
	if h.ctrl.Mode() == ModeListening {
		t.Error("controller should reset instead of listening")
	}
	if h.events.count(EventProvisioned) != 1 {
		t.Errorf("provisioned events = %d, want 1", h.events.count(EventProvisioned))
	}
}

func TestBoot_WiFiFailureEntersSetup(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.WiFi.Succeed = false
	h.boot()

	modes := h.display.modes()
	if len(modes) < 2 || modes[1] != ModeSetup {
		t.Fatalf("modes = %v, want SETUP right after BOOTING", modes)
	}
	if h.channel.session == nil {
		t.Fatal("pairing session was not opened")
	}
	for _, s := range h.display.statuses {
		if s.Mode == ModeListening && s.Uptime < h.ctrl.cfg.ProvisionTimeout {
			t.Fatalf("LISTENING shown at %v, before setup timed out", s.Uptime)
		}
	}
	if h.ctrl.Mode() != ModeListening {
		t.Errorf("after timeout Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	if h.fakes.HTTP.Count("GET", versionURL) != 0 {
		t.Error("no OTA check expected without a connection")
	}
}

func TestBoot_SetupWithoutChannelFallsBack(t *testing.T) {
	fakes := haltest.NewBoard(nil)
	display := &recordingDisplay{}
	ctrl, err := New(Options{Board: fakes.HAL(), Config: testConfig(), Display: display})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ctrl.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}

	modes := display.modes()
	want := []Mode{ModeBooting, ModeSetup, ModeListening}
	if len(modes) != len(want) {
		t.Fatalf("modes = %v, want %v", modes, want)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Errorf("modes[%d] = %v, want %v", i, modes[i], want[i])
		}
	}
}

func TestBoot_ChannelStartFailureFallsBack(t *testing.T) {
	h := newHarness(t, nil, testConfig())
	h.channel.startErr = errors.New("radio off")
	h.boot()

	if h.ctrl.Mode() != ModeListening {
		t.Errorf("Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	if h.display.last().Message != "Pairing failed" {
		t.Errorf("message = %q", h.display.last().Message)
	}
}

func TestBoot_ButtonHeldEntersSetup(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.GPIO.SetDigital(hal.PinButton, false)
	h.boot()

	modes := h.display.modes()
	if len(modes) < 2 || modes[1] != ModeSetup {
		t.Errorf("modes = %v, want SETUP after BOOTING", modes)
	}
	if len(h.fakes.WiFi.Attempts()) != 0 {
		t.Error("WiFi should not be joined when setup is forced")
	}
}

func TestBoot_ShortHoldAtBootIgnored(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.GPIO.QueueDigital(hal.PinButton, false, false, false)
	h.boot()

	if h.ctrl.Mode() != ModeListening {
		t.Errorf("Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	for _, m := range h.display.modes() {
		if m == ModeSetup {
			t.Error("short hold should not enter setup")
		}
	}
}

func TestBoot_OTAUpdateResets(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("GET", versionURL, haltest.JSON(200,
		`{"fw_version":"1.1.0","files":[{"name":"main.py","url":"http://cdn.test/main.py"},{"name":"boot.py","url":"http://cdn.test/boot.py"}]}`))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/main.py", haltest.JSON(200, "print('main')"))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/boot.py", haltest.JSON(200, "print('boot')"))

	err := h.ctrl.Boot(context.Background())
	if !errors.Is(err, ErrReset) {
		t.Fatalf("Boot() error = %v, want ErrReset", err)
	}
	if h.fakes.Resetter.Count() != 1 {
		t.Errorf("resets = %d, want 1", h.fakes.Resetter.Count())
	}
	if got := h.fakes.Files.Written(); len(got) != 2 || got[0] != "main.py" || got[1] != "boot.py" {
		t.Errorf("written = %v", got)
	}
	ota := h.display.last().OTA
	if ota == nil || !ota.Done || ota.Current != 2 || ota.Total != 2 || ota.Version != "1.1.0" {
		t.Errorf("OTA progress = %+v", ota)
	}
}

func TestBoot_OTAFailureKeepsRunning(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("GET", versionURL, haltest.JSON(200,
		`{"fw_version":"1.1.0","files":[{"name":"a.py","url":"http://cdn.test/a.py"},{"name":"b.py","url":"http://cdn.test/b.py"},{"name":"c.py","url":"http://cdn.test/c.py"}]}`))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/a.py", haltest.JSON(200, "a"))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/b.py", haltest.JSON(500, "boom"))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/c.py", haltest.JSON(200, "c"))

	h.boot()
	var progress []OTAProgress
	for _, s := range h.display.statuses {
		if s.OTA != nil && (len(progress) == 0 || progress[len(progress)-1] != *s.OTA) {
			progress = append(progress, *s.OTA)
		}
	}

	if h.ctrl.Mode() != ModeListening {
		t.Errorf("Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	if h.fakes.Resetter.Count() != 0 {
		t.Error("failed update must not reset")
	}
	if h.fakes.HTTP.Count("GET", "http://cdn.test/c.py") != 0 {
		t.Error("update should abort at the first failure")
	}
	want := []OTAProgress{
		{Current: 1, Total: 3, Version: "1.1.0"},
		{Current: 2, Total: 3, Version: "1.1.0"},
	}
	if len(progress) != len(want) {
		t.Fatalf("progress = %+v, want %+v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %+v, want %+v", i, progress[i], want[i])
		}
	}
	if h.display.last().Message != "Update failed" {
		t.Errorf("message = %q", h.display.last().Message)
	}
}

func TestRing_OpenOnSecondPoll(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{"timestamp":1704110400,"last_call":"Jan 01 12:00"}`))
	h.fakes.HTTP.Handle("POST", statusURL, haltest.Sequence(
		haltest.JSON(200, `{"open":false}`),
		haltest.JSON(200, `{"open":true}`),
	))
	h.boot()

	h.ring()
	h.step(1)

	if h.fakes.HTTP.Count("POST", ringURL) != 1 {
		t.Fatalf("ring requests = %d, want 1", h.fakes.HTTP.Count("POST", ringURL))
	}
	if !h.ctrl.WindowActive() {
		t.Fatal("ring window should be open")
	}
	if h.display.last().LastCall != "Jan 01 12:00" {
		t.Errorf("last call = %q", h.display.last().LastCall)
	}
	if len(h.fakes.Clock.Synced()) != 1 {
		t.Errorf("clock syncs = %d, want 1", len(h.fakes.Clock.Synced()))
	}

	h.stepUntil(1000, func() bool { return !h.ctrl.WindowActive() })

	if n := h.fakes.HTTP.Count("POST", statusURL); n != 2 {
		t.Errorf("status polls = %d, want 2", n)
	}
	if n := h.fakes.GPIO.Rising(hal.PinDoor); n != 1 {
		t.Errorf("door pulses = %d, want 1", n)
	}
	writes := h.fakes.GPIO.Writes(hal.PinDoor)
	if len(writes) != 2 || writes[1].At.Sub(writes[0].At) != h.ctrl.cfg.DoorPulse {
		t.Errorf("door writes = %+v", writes)
	}

	h.step(500)
	if n := h.fakes.HTTP.Count("POST", statusURL); n != 2 {
		t.Errorf("status polls after close = %d, want 2", n)
	}
	if h.ctrl.Mode() != ModeListening {
		t.Errorf("Mode() = %v, want LISTENING", h.ctrl.Mode())
	}
	if h.events.count(EventDoorOpen) != 1 || h.events.count(EventWindowClosed) != 1 {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestRing_NoiseIsDiscarded(t *testing.T) {
	tests := []struct {
		name    string
		samples []uint16
	}{
		{"single sample", []uint16{hal.RingAnalog}},
		{"drops after debounce", []uint16{hal.RingAnalog, hal.IdleAnalog}},
		{"drops on second sample", []uint16{hal.RingAnalog, hal.RingAnalog, hal.IdleAnalog}},
		{"drops on last sample", []uint16{hal.RingAnalog, hal.RingAnalog, hal.RingAnalog, hal.IdleAnalog}},
		{"just above threshold", []uint16{4001, 4001, 4001, 4001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testCreds(), testConfig())
			h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{}`))
			h.boot()

			h.fakes.GPIO.QueueAnalog(hal.PinRing, tt.samples...)
			h.step(5)

			if n := h.fakes.HTTP.Count("POST", ringURL); n != 0 {
				t.Errorf("ring requests = %d, want 0", n)
			}
			if h.ctrl.WindowActive() {
				t.Error("window should stay closed")
			}
		})
	}
}

func TestRing_HeldSignalRingsOnce(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{}`))
	h.boot()

	h.fakes.GPIO.SetAnalog(hal.PinRing, hal.RingAnalog)
	h.step(20)
	if n := h.fakes.HTTP.Count("POST", ringURL); n != 1 {
		t.Fatalf("ring requests while held = %d, want 1", n)
	}

	h.fakes.GPIO.SetAnalog(hal.PinRing, hal.IdleAnalog)
	h.step(1)
	h.fakes.GPIO.SetAnalog(hal.PinRing, hal.RingAnalog)
	h.step(1)
	if n := h.fakes.HTTP.Count("POST", ringURL); n != 2 {
		t.Errorf("ring requests after release = %d, want 2", n)
	}
	if !h.ctrl.WindowActive() {
		t.Error("second ring should keep the window open")
	}
}

func TestRing_WindowNeverOutlivesDuration(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, testCreds(), cfg)

	var ringAt time.Time
	var polls []time.Time
	h.fakes.HTTP.Handle("POST", ringURL, func(haltest.Request) (*hal.Response, error) {
		ringAt = h.fakes.Clock.Now()
		return &hal.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
	})
	h.fakes.HTTP.Handle("POST", statusURL, func(haltest.Request) (*hal.Response, error) {
		polls = append(polls, h.fakes.Clock.Now())
		return &hal.Response{StatusCode: 200, Body: []byte(`{"open":false}`)}, nil
	})
	h.boot()

	h.ring()
	h.step(1)
	h.stepUntil(5000, func() bool { return !h.ctrl.WindowActive() })
	closedAt := h.fakes.Clock.Now()

	wantPolls := int(cfg.RingWindow/cfg.StatusInterval) - 1
	if len(polls) != wantPolls {
		t.Errorf("polls = %d, want %d", len(polls), wantPolls)
	}
	for i, p := range polls {
		if p.Sub(ringAt) >= cfg.RingWindow {
			t.Errorf("poll %d at %v after ring, past the window", i, p.Sub(ringAt))
		}
		if i > 0 && p.Sub(polls[i-1]) < cfg.StatusInterval {
			t.Errorf("poll %d only %v after previous", i, p.Sub(polls[i-1]))
		}
	}
	if closedAt.Sub(ringAt) > cfg.RingWindow+cfg.IdleSleep {
		t.Errorf("window closed %v after ring", closedAt.Sub(ringAt))
	}
	if h.fakes.GPIO.Rising(hal.PinDoor) != 0 {
		t.Error("door must stay shut when never opened")
	}

	h.step(200)
	if len(polls) != wantPolls {
		t.Errorf("polls after expiry = %d, want %d", len(polls), wantPolls)
	}
}

func TestRing_SecondRingRestartsWindow(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, testCreds(), cfg)

	var rings []time.Time
	var polls []time.Time
	h.fakes.HTTP.Handle("POST", ringURL, func(haltest.Request) (*hal.Response, error) {
		rings = append(rings, h.fakes.Clock.Now())
		return &hal.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
	})
	h.fakes.HTTP.Handle("POST", statusURL, func(haltest.Request) (*hal.Response, error) {
		polls = append(polls, h.fakes.Clock.Now())
		return &hal.Response{StatusCode: 200, Body: []byte(`{"open":false}`)}, nil
	})
	h.boot()

	h.ring()
	h.step(1)
	if len(rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(rings))
	}
	first := rings[0]

	h.stepUntil(5000, func() bool { return h.fakes.Clock.Now().Sub(first) >= 3*time.Minute })
	h.ring()
	h.step(1)
	if len(rings) != 2 {
		t.Fatalf("rings = %d, want 2", len(rings))
	}
	second := rings[1]

	h.stepUntil(10000, func() bool { return !h.ctrl.WindowActive() })
	closedAt := h.fakes.Clock.Now()

	if closedAt.Sub(first) <= cfg.RingWindow {
		t.Errorf("window closed %v after the first ring, want it restarted", closedAt.Sub(first))
	}
	if d := closedAt.Sub(second); d < cfg.RingWindow || d > cfg.RingWindow+cfg.IdleSleep {
		t.Errorf("window closed %v after the second ring, want about %v", d, cfg.RingWindow)
	}

	pastFirst := 0
	for i, p := range polls {
		if p.Sub(first) >= cfg.RingWindow {
			pastFirst++
		}
		if p.Sub(second) >= cfg.RingWindow {
			t.Errorf("poll %d at %v after the second ring, past the window", i, p.Sub(second))
		}
	}
	if pastFirst == 0 {
		t.Error("polls should continue past the first window")
	}
}

func TestRing_FailedNotificationStillOpensWindow(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.Fail())
	h.boot()

	h.ring()
	h.step(1)

	if !h.ctrl.WindowActive() {
		t.Error("window should open even when the ring notification fails")
	}
	if h.display.last().Message != "Backend refused connection" {
		t.Errorf("message = %q", h.display.last().Message)
	}
}

func TestRequestFailureLogLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	tests := []struct {
		name string
		err  error
		loud bool
		want zapcore.Level
	}{
		{"rejected key", hal.NewHTTPError(401, statusURL), false, zapcore.ErrorLevel},
		{"bad request", hal.NewHTTPError(400, statusURL), false, zapcore.WarnLevel},
		{"bad body", hal.NewParseError("invalid JSON body", nil), false, zapcore.WarnLevel},
		{"server error on poll", hal.NewHTTPError(503, statusURL), false, zapcore.DebugLevel},
		{"server error on ring", hal.NewHTTPError(503, ringURL), true, zapcore.WarnLevel},
		{"plain error", errors.New("boom"), false, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()
			logRequestFailure("request failed", tt.err, tt.loud)
			entries := logs.TakeAll()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.want {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.want)
			}
		})
	}
}

func TestRing_RejectedKeyLogsError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(403, `{}`))
	h.boot()

	h.ring()
	h.step(1)

	if n := logs.FilterMessage("Ring notification failed").Len(); n != 1 {
		t.Errorf("error entries = %d, want 1", n)
	}
	if h.display.last().Message != "API key rejected" {
		t.Errorf("message = %q", h.display.last().Message)
	}
	if !h.ctrl.WindowActive() {
		t.Error("window should open even when the key is rejected")
	}
}

func TestRing_WithoutCredentialsOpensNoWindow(t *testing.T) {
	fakes := haltest.NewBoard(nil)
	ctrl, err := New(Options{Board: fakes.HAL(), Config: testConfig()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ctrl.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}

	fakes.GPIO.QueueAnalog(hal.PinRing, hal.RingAnalog, hal.RingAnalog, hal.RingAnalog, hal.RingAnalog)
	if err := ctrl.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if ctrl.WindowActive() {
		t.Error("no window without credentials")
	}
	if len(fakes.HTTP.Calls()) != 0 {
		t.Errorf("calls = %+v, want none", fakes.HTTP.Calls())
	}
}

func TestRing_DigitalSensor(t *testing.T) {
	cfg := testConfig()
	cfg.RingSensor = SensorDigital
	h := newHarness(t, testCreds(), cfg)
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{}`))
	h.boot()

	h.fakes.GPIO.QueueDigital(hal.PinRing, false, false, false, false)
	h.step(1)

	if n := h.fakes.HTTP.Count("POST", ringURL); n != 1 {
		t.Errorf("ring requests = %d, want 1", n)
	}
}

func TestButton_ShortPressOpensDoor(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.boot()

	h.fakes.GPIO.QueueDigital(hal.PinButton, false, false, false, false, true)
	h.step(1)

	if n := h.fakes.GPIO.Rising(hal.PinDoor); n != 1 {
		t.Errorf("door pulses = %d, want 1", n)
	}
	modes := h.display.modes()
	if len(modes) < 3 || modes[len(modes)-2] != ModeOpening || modes[len(modes)-1] != ModeListening {
		t.Errorf("modes = %v, want ... OPENING LISTENING", modes)
	}
}

func TestButton_BounceIgnored(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.boot()

	h.fakes.GPIO.QueueDigital(hal.PinButton, false, true)
	h.step(1)

	if n := h.fakes.GPIO.Rising(hal.PinDoor); n != 0 {
		t.Errorf("door pulses = %d, want 0", n)
	}
}

func TestButton_LongPressEntersSetup(t *testing.T) {
	fakes := haltest.NewBoard(testCreds())
	display := &recordingDisplay{}
	ctrl, err := New(Options{Board: fakes.HAL(), Config: testConfig(), Display: display})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ctrl.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}

	fakes.GPIO.SetDigital(hal.PinButton, false)
	before := fakes.Clock.Now()
	if err := ctrl.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	fakes.GPIO.SetDigital(hal.PinButton, true)

	if held := fakes.Clock.Now().Sub(before); held < ctrl.cfg.LongPress {
		t.Errorf("setup entered after %v, want at least %v", held, ctrl.cfg.LongPress)
	}
	found := false
	for _, m := range display.modes() {
		if m == ModeSetup {
			found = true
		}
	}
	if !found {
		t.Errorf("modes = %v, want SETUP", display.modes())
	}
	if fakes.GPIO.Rising(hal.PinDoor) != 0 {
		t.Error("long press must not open the door")
	}
}

func TestStep_SleepsLowPowerOnlyWhenIdle(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{}`))
	h.boot()

	before := h.fakes.Clock.LowPowerSleeps()
	h.step(3)
	idle := h.fakes.Clock.LowPowerSleeps()
	if idle <= before {
		t.Error("idle steps should use low-power sleep")
	}

	h.ring()
	h.step(10)
	if got := h.fakes.Clock.LowPowerSleeps(); got != idle {
		t.Errorf("low-power sleeps during window = %d, want %d", got-idle, 0)
	}
}

func TestStep_PowerSaveReconnectsOnDemand(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("POST", ringURL, haltest.JSON(200, `{}`))
	h.boot()

	attempts := len(h.fakes.WiFi.Attempts())
	disconnects := h.fakes.WiFi.Disconnects()

	h.ring()
	h.step(1)

	if got := len(h.fakes.WiFi.Attempts()); got != attempts+1 {
		t.Errorf("attempts = %d, want %d", got, attempts+1)
	}
	if got := h.fakes.WiFi.Disconnects(); got != disconnects+1 {
		t.Errorf("disconnects = %d, want %d", got, disconnects+1)
	}
	if h.fakes.WiFi.Connected() {
		t.Error("WiFi should be dropped again")
	}
}

func TestStep_PowerSaveDisabledStaysOnline(t *testing.T) {
	cfg := testConfig()
	cfg.PowerSave = false
	h := newHarness(t, testCreds(), cfg)
	h.boot()
	h.step(5)

	if !h.fakes.WiFi.Connected() || h.fakes.WiFi.Disconnects() != 0 {
		t.Error("WiFi should stay connected")
	}
}

func TestLED_BlinksWhileListening(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.boot()
	h.step(5)

	writes := h.fakes.GPIO.Writes(hal.PinLED)
	on, off := 0, 0
	for _, w := range writes {
		if w.Value {
			on++
		} else {
			off++
		}
	}
	if on < 4 || off < 4 {
		t.Errorf("LED writes on=%d off=%d, want a blinking pattern", on, off)
	}
	for i := 1; i < len(writes); i++ {
		if writes[i].Value == writes[i-1].Value {
			t.Errorf("LED write %d repeats level %v", i, writes[i].Value)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := h.fakes.Clock.Now()
	h.fakes.Clock.OnAdvance(func(now time.Time) {
		if now.Sub(start) >= time.Minute {
			cancel()
		}
	})

	if err := h.ctrl.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestRun_ReturnsReset(t *testing.T) {
	h := newHarness(t, testCreds(), testConfig())
	h.fakes.HTTP.Handle("GET", versionURL, haltest.JSON(200,
		`{"fw_version":"2.0.0","files":[{"name":"main.py","url":"http://cdn.test/main.py"}]}`))
	h.fakes.HTTP.Handle("GET", "http://cdn.test/main.py", haltest.JSON(200, "x"))

	if err := h.ctrl.Run(context.Background()); !errors.Is(err, ErrReset) {
		t.Errorf("Run() error = %v, want ErrReset", err)
	}
}

func TestSensors(t *testing.T) {
	gpio := haltest.NewGPIO(nil)

	analog, err := NewSensor(SensorAnalog, gpio, hal.PinRing, 0)
	if err != nil {
		t.Fatalf("NewSensor(analog) error = %v", err)
	}
	if analog.Asserted() {
		t.Error("idle analog reading should not be asserted")
	}
	gpio.QueueAnalog(hal.PinRing, hal.RingAnalog)
	if !analog.Asserted() {
		t.Error("ringing analog reading should be asserted")
	}

	digital, err := NewSensor(SensorDigital, gpio, hal.PinRing, 0)
	if err != nil {
		t.Fatalf("NewSensor(digital) error = %v", err)
	}
	if digital.Asserted() {
		t.Error("high input should not be asserted")
	}
	gpio.QueueDigital(hal.PinRing, false)
	if !digital.Asserted() {
		t.Error("low input should be asserted")
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeBooting, "BOOTING"},
		{ModeListening, "LISTENING"},
		{ModeSetup, "SETUP"},
		{ModeOpening, "OPENING"},
		{Mode(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
