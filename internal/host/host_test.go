package host

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonasfh/picobell/internal/backend"
	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/hal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRuntime(t *testing.T, baseURL string) *config.Runtime {
	t.Helper()
	dir := t.TempDir()
	v := config.NewViper()
	v.Set("device.base_url", baseURL)
	v.Set("device.firmware_version", "1.0.0")
	v.Set("device.power_save", false)
	v.Set("device.http_timeout", "2s")
	v.Set("timing.idle_sleep", "5ms")
	v.Set("timing.active_sleep", "5ms")
	v.Set("timing.ring_debounce", "1ms")
	v.Set("timing.ring_sample_interval", "1ms")
	v.Set("timing.status_interval", "20ms")
	v.Set("timing.door_pulse", "1ms")
	v.Set("timing.reset_grace", "1ms")
	v.Set("storage.credentials", filepath.Join(dir, "credentials.json"))
	v.Set("storage.firmware_dir", filepath.Join(dir, "firmware"))
	v.Set("pairing.enabled", false)
	v.Set("wifi.mac", "28cdc10a1b2c")

	rt, err := config.LoadWith(v, "")
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}
	return rt
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_RequiresRuntime(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() without runtime succeeded")
	}
}

func TestNew_AssemblesBoard(t *testing.T) {
	h, err := New(Options{Runtime: testRuntime(t, "http://127.0.0.1:1")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	if err := h.Board().Validate(); err != nil {
		t.Errorf("board invalid: %v", err)
	}
	if _, ok := h.Board().GPIO.(*hal.SimGPIO); !ok {
		t.Errorf("GPIO = %T, want *hal.SimGPIO", h.Board().GPIO)
	}
	if h.PairingAddr() != "" {
		t.Errorf("PairingAddr() = %q with pairing disabled", h.PairingAddr())
	}
}

func TestRun_UnprovisionedStopsOnCancel(t *testing.T) {
	h, err := New(Options{Runtime: testRuntime(t, "http://127.0.0.1:1")})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.Restarts() != 0 {
		t.Errorf("Restarts() = %d, want 0", h.Restarts())
	}
}

func TestRun_RingAndRemoteOpen(t *testing.T) {
	be := backend.New(backend.Config{APIKeys: []string{"apt-key"}, FirmwareVersion: "1.0.0"})
	srv := httptest.NewServer(be.Routes())
	defer srv.Close()

	rt := testRuntime(t, srv.URL)
	if err := hal.NewJSONStore(rt.Storage.Credentials).Save(hal.Credentials{
		SSID: "HomeNet", Password: "pw", APIKey: "apt-key",
	}); err != nil {
		t.Fatal(err)
	}

	gpio := hal.NewSimGPIO()
	h, err := New(Options{Runtime: rt, GPIO: gpio})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	ringPin := hal.Pin(rt.Pins.Ring)
	doorPin := hal.Pin(rt.Pins.Door)

	gpio.SetAnalog(ringPin, hal.RingAnalog)
	waitFor(t, "ring notification", func() bool { return len(be.Rings("apt-key")) == 1 })
	gpio.SetAnalog(ringPin, hal.IdleAnalog)

	be.QueueOpen("apt-key")
	waitFor(t, "door pulse", func() bool { return gpio.Writes(doorPin) >= 2 })
	if gpio.Output(doorPin) {
		t.Error("door relay left energised")
	}
	if be.Pending("apt-key") {
		t.Error("open command not consumed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop")
	}
	if got := len(be.Rings("apt-key")); got != 1 {
		t.Errorf("rings = %d, want 1", got)
	}
}
