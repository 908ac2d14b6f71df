// Package telemetry mirrors doorbell events to an MQTT broker so home
// automation can react to rings and door openings. It is optional; the
// controller runs the same without it.
package telemetry
