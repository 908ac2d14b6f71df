package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}
	if !strings.Contains(configDir, "picobell") {
		t.Errorf("GetConfigDir() = %v, should contain 'picobell'", configDir)
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join(tmp, "picobell") {
		t.Errorf("GetConfigDir() = %v, want %v", dir, filepath.Join(tmp, "picobell"))
	}

	path, err := GetRegistryPath()
	if err != nil {
		t.Fatalf("GetRegistryPath() error = %v", err)
	}
	if filepath.Base(path) != "devices.yaml" {
		t.Errorf("GetRegistryPath() = %v, should end with devices.yaml", path)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if reg.Preferences.DiscoverTimeout != 10 {
		t.Errorf("DiscoverTimeout = %v, want 10", reg.Preferences.DiscoverTimeout)
	}
	if reg.Preferences.ChunkSize != 20 {
		t.Errorf("ChunkSize = %v, want 20", reg.Preferences.ChunkSize)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("28cdc10a1b2c")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}
	if device2 := reg.EnsureDevice("28cdc10a1b2c"); device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same id")
	}
	if device3 := reg.EnsureDevice("28cdc10a9999"); device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different id")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen("abc", "192.168.1.50:8765", "1.2.0")
	after := time.Now()

	device := reg.GetDevice("abc")
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}
	if device.LastAddress != "192.168.1.50:8765" || device.Firmware != "1.2.0" {
		t.Errorf("device = %+v", device)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}

	reg.UpdateDeviceLastSeen("abc", "192.168.1.51:8765", "")
	if device.Firmware != "1.2.0" {
		t.Error("empty firmware should keep the last known version")
	}
}

func TestRegistryRecordProvisioned(t *testing.T) {
	reg := NewRegistry()
	reg.SetDeviceNickname("abc", "Front door")
	reg.RecordProvisioned("abc", "HomeNet", "https://picobell.no")

	device := reg.GetDevice("abc")
	if device.Nickname != "Front door" || device.SSID != "HomeNet" || device.BaseURL != "https://picobell.no" {
		t.Errorf("device = %+v", device)
	}
	if device.ProvisionedAt.IsZero() {
		t.Error("ProvisionedAt should be set")
	}
}

func TestRegistryRemoveAndIDs(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDevice("c")
	reg.EnsureDevice("a")
	reg.EnsureDevice("b")

	ids := reg.DeviceIDs()
	if strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("DeviceIDs() = %v", ids)
	}
	if !reg.RemoveDevice("b") || reg.RemoveDevice("b") {
		t.Error("RemoveDevice() should report true once")
	}
	if len(reg.DeviceIDs()) != 2 {
		t.Errorf("DeviceIDs() after remove = %v", reg.DeviceIDs())
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "devices.yaml")

	reg := NewRegistry()
	reg.SetDeviceNickname("abc", "Front door")
	reg.RecordProvisioned("abc", "HomeNet", "https://picobell.no")
	reg.Preferences.ChunkSize = 64

	if err := reg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Picobell paired devices") {
		t.Error("registry file should start with the header comment")
	}

	loaded, err := LoadRegistryFile(path)
	if err != nil {
		t.Fatalf("LoadRegistryFile() error = %v", err)
	}
	device := loaded.GetDevice("abc")
	if device == nil {
		t.Fatal("Device should exist in loaded registry")
	}
	if device.Nickname != "Front door" || device.SSID != "HomeNet" {
		t.Errorf("loaded device = %+v", device)
	}
	if loaded.Preferences.ChunkSize != 64 {
		t.Errorf("ChunkSize = %d, want 64", loaded.Preferences.ChunkSize)
	}
}

func TestLoadRegistryFile_Missing(t *testing.T) {
	reg, err := LoadRegistryFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistryFile() error = %v", err)
	}
	if reg.Version != 1 || len(reg.Devices) != 0 {
		t.Errorf("registry = %+v", reg)
	}
}

func TestLoadRegistryFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "version: [1"},
		{"wrong version", "version: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "devices.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadRegistryFile(path); err == nil {
				t.Error("LoadRegistryFile() should fail")
			}
		})
	}
}

func TestLoadRegistryFile_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistryFile(path)
	if err != nil {
		t.Fatalf("LoadRegistryFile() error = %v", err)
	}
	if reg.Devices == nil || reg.Preferences == nil || reg.Preferences.DiscoverTimeout != 10 {
		t.Errorf("registry = %+v", reg)
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("28cdc10a1b2c")
	}
}
