// Package sim is an interactive console for the doorbell controller.
//
// The controller runs on a simulated board in a background goroutine with
// the real clock, backend client and pairing bridge. The console shows the
// status panel plus the door relay and LED, and turns keys into input
// pulses: r rings the doorbell, b taps the button, l holds it past the
// long-press threshold. Logs go to a file so they do not tear the screen.
package sim
