package pairing

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/discovery"
	"github.com/jonasfh/picobell/internal/logging"
)

// MDNSAdvertiser registers the bridge as a discovery.ServiceType service.
type MDNSAdvertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

func NewMDNSAdvertiser() *MDNSAdvertiser {
	return &MDNSAdvertiser{}
}

// Advertise replaces any previous registration.
func (a *MDNSAdvertiser) Advertise(name string, port int, txt []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	server, err := zeroconf.Register(name, discovery.ServiceType, discovery.ServiceDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	logging.Info("Advertising", zap.String("name", name), zap.Int("port", port))
	return nil
}

func (a *MDNSAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
