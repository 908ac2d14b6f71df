// Package doorbell is the call-box control loop.
//
// A Controller owns the device lifecycle. Boot loads the stored credentials
// and either joins Wi-Fi (then LISTENING, one OTA check, optional power-save
// disconnect) or runs a pairing session (SETUP). Step is one pass of the
// steady-state loop, always in this order:
//
//  1. Button: a press released before the long-press threshold pulses the
//     door relay; a press held that long re-enters SETUP.
//  2. Ring: an asserted sample is confirmed after a debounce pause by
//     further samples; any sample that is not asserted drops the event.
//     A confirmed ring notifies the backend and opens (or restarts) the
//     ring window.
//  3. Ring window: the open status is polled every StatusInterval until the
//     backend says open (relay pulse, window closed) or the window expires.
//  4. Sleep: a low-power sleep when idle, a short plain sleep while a
//     window is open.
//
// Network failures are never fatal; they are logged and treated as no data.
// The only way out of Run besides cancellation is ErrReset, returned after
// the board was asked to reset (provisioning or firmware update success).
//
// All hardware access goes through hal.Board, so the whole loop runs
// against the fakes in hal/haltest with a virtual clock.
package doorbell
