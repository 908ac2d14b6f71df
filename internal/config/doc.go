// Package config holds the two kinds of configuration picobell uses.
//
// Runtime settings (Runtime, Load, WriteDefault) configure the host runtime
// of cmd/picobell and the development backend. They are read with viper:
// built-in defaults, then an optional YAML file, then PICOBELL_* environment
// variables (PICOBELL_DEVICE_BASE_URL overrides device.base_url), then any
// flags bound by the command. Durations use Go syntax ("10s", "5m").
//
// The device registry (Registry, LoadRegistry) is the pairing tool's memory
// of doorbells it has provisioned. It lives in a YAML file in the platform
// configuration directory:
//   - Linux: $XDG_CONFIG_HOME/picobell/devices.yaml or $HOME/.config/picobell/devices.yaml
//   - macOS: $HOME/.config/picobell/devices.yaml
//   - Windows: %LOCALAPPDATA%\picobell\devices.yaml
//
// Wi-Fi passwords and apartment API keys are never written to the registry.
// Writes go through a temp file and rename, serialised by a package mutex.
package config
