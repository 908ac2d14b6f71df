package hal

import (
	"encoding/hex"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
)

// HostWiFiConfig configures the host stand-in for the station interface.
type HostWiFiConfig struct {
	// Networks maps SSID to password. Empty accepts any SSID.
	Networks map[string]string
	// Probe is a host:port dialed to confirm connectivity. Empty skips the probe.
	Probe string
	// MAC overrides the hardware address used as device identity.
	MAC string
}

// HostWiFi models association on a host that already has a network. A
// connect succeeds when the SSID and password are accepted and the probe
// address answers within the timeout.
type HostWiFi struct {
	cfg HostWiFiConfig

	mu        sync.Mutex
	connected bool
	address   string
	mac       string
}

func NewHostWiFi(cfg HostWiFiConfig) *HostWiFi {
	mac := cfg.MAC
	if mac == "" {
		mac = firstHardwareAddr()
	}
	return &HostWiFi{cfg: cfg, mac: mac}
}

func (w *HostWiFi) Connect(ssid, password string, timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.cfg.Networks) > 0 {
		want, ok := w.cfg.Networks[ssid]
		if !ok || want != password {
			logging.Warn("WiFi association rejected", zap.String("ssid", ssid))
			w.connected = false
			return false
		}
	}

	w.address = "127.0.0.1"
	if w.cfg.Probe != "" {
		conn, err := net.DialTimeout("tcp", w.cfg.Probe, timeout)
		if err != nil {
			logging.Warn("WiFi probe failed", zap.String("probe", w.cfg.Probe), zap.Error(err))
			w.connected = false
			return false
		}
		if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
			w.address = addr.IP.String()
		}
		conn.Close()
	}

	w.connected = true
	logging.Info("WiFi connected", zap.String("ssid", ssid), zap.String("address", w.address))
	return true
}

func (w *HostWiFi) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

func (w *HostWiFi) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *HostWiFi) MAC() string {
	return w.mac
}

func (w *HostWiFi) Address() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.address
}

func firstHardwareAddr() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "000000000000"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return hex.EncodeToString(iface.HardwareAddr)
	}
	return "000000000000"
}
