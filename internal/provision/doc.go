// Package provision implements the credential pairing session.
//
// A Session is opened on a Channel (the short-range transport). Peers write
// the SSID, password and API key attributes, possibly in several chunks each;
// chunks are appended in arrival order. Writing "connect" to the command
// attribute tries the Wi-Fi association. On success the record is saved, the
// session is marked provisioned and every peer is notified with
// "connected:<address>". On failure peers receive "failed" and may write
// corrected values without re-pairing.
//
// Transport callbacks and the control loop touch the session concurrently;
// all shared state is guarded by the session's mutex.
//
// The session never resets the device. The caller polls Provisioned (or uses
// Wait) and decides what to do next.
package provision
