// Package pairing carries the provisioning attribute service over a local
// websocket, for hosts that have no low-energy radio.
//
// The device side is a Bridge, a provision.Channel. While a pairing session
// is open it serves ws://<addr>/pair and announces itself over mDNS. Each
// connection is one peer. Frames are JSON Messages addressed by
// characteristic UUID:
//
//	{"op":"write","uuid":"...b1","data":"SG9tZU5ldA=="}   append to ssid
//	{"op":"read","uuid":"...a1"}                           read device id
//	{"op":"notify","uuid":"...b4","data":"Y29ubmVjdGVk"}  status update
//
// Writes that would push a field past its limit are answered with an
// "error" frame and dropped. The phone-app side is Client, used by the
// picobell-pair tool.
package pairing
