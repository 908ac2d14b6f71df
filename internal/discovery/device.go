package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a doorbell found advertising its pairing bridge.
type Device struct {
	// ID is the device id (lowercase hex MAC) from the "id" TXT record
	ID string

	// Name is the advertised instance name (e.g., "Picobell-1b2c")
	Name string

	// Hostname is the mDNS hostname
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 was announced
	IP string

	// Port is the pairing bridge port
	Port int

	// Metadata holds every TXT record: "id", "fw", "path"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Name, d.ID, d.Address())
}

// Address returns host:port of the pairing bridge.
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// PairURL returns the websocket URL of the pairing bridge.
func (d *Device) PairURL() string {
	path := d.GetMetadata("path")
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + d.Address() + path
}

// Firmware returns the advertised firmware version.
func (d *Device) Firmware() string {
	return d.GetMetadata("fw")
}

// GetMetadata retrieves a TXT value by key, or "" if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
