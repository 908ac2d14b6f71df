package config

import (
	"sort"
	"time"
)

// Registry is the pairing tool's record of doorbells it has set up.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device id (hex MAC)
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device is what the pairing tool remembers about one doorbell.
type Device struct {
	Nickname      string    `yaml:"nickname,omitempty"`
	LastAddress   string    `yaml:"last_address,omitempty"` // Pairing bridge host:port
	LastSeen      time.Time `yaml:"last_seen,omitempty"`
	SSID          string    `yaml:"ssid,omitempty"` // Network it was provisioned onto
	BaseURL       string    `yaml:"base_url,omitempty"`
	ProvisionedAt time.Time `yaml:"provisioned_at,omitempty"`
	Firmware      string    `yaml:"firmware,omitempty"`
}

// Preferences are pairing tool defaults.
type Preferences struct {
	DiscoverTimeout int    `yaml:"discover_timeout"` // mDNS browse timeout in seconds
	ChunkSize       int    `yaml:"chunk_size"`       // Bytes per attribute write
	DefaultBaseURL  string `yaml:"default_base_url,omitempty"`
}

func defaultPreferences() *Preferences {
	return &Preferences{
		DiscoverTimeout: 10,
		ChunkSize:       20,
	}
}

func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

// GetDevice returns nil for unknown ids.
func (r *Registry) GetDevice(id string) *Device {
	return r.Devices[id]
}

// EnsureDevice returns the entry for id, creating it if needed.
func (r *Registry) EnsureDevice(id string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if device, exists := r.Devices[id]; exists {
		return device
	}
	device := &Device{}
	r.Devices[id] = device
	return device
}

// UpdateDeviceLastSeen records a discovery or pairing contact.
func (r *Registry) UpdateDeviceLastSeen(id, address, firmware string) {
	device := r.EnsureDevice(id)
	device.LastSeen = time.Now()
	device.LastAddress = address
	if firmware != "" {
		device.Firmware = firmware
	}
}

// RecordProvisioned notes a successful provisioning. The Wi-Fi password
// and API key are never stored.
func (r *Registry) RecordProvisioned(id, ssid, baseURL string) {
	device := r.EnsureDevice(id)
	device.SSID = ssid
	device.BaseURL = baseURL
	device.ProvisionedAt = time.Now()
}

func (r *Registry) SetDeviceNickname(id, nickname string) {
	r.EnsureDevice(id).Nickname = nickname
}

// RemoveDevice forgets id and reports whether it was known.
func (r *Registry) RemoveDevice(id string) bool {
	if _, ok := r.Devices[id]; !ok {
		return false
	}
	delete(r.Devices, id)
	return true
}

// DeviceIDs returns the known ids in sorted order.
func (r *Registry) DeviceIDs() []string {
	ids := make([]string, 0, len(r.Devices))
	for id := range r.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
