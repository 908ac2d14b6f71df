// Package host assembles a doorbell controller on a regular Linux or macOS
// machine: the system clock, a simulated or character-device GPIO, the
// host Wi-Fi stand-in, the resty backend client, JSON credential storage,
// the websocket pairing bridge and, when a broker is configured, the MQTT
// event mirror. Run restarts the controller whenever it asks for a reset.
package host
