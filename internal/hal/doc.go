// Package hal is the hardware boundary of the doorbell controller.
//
// Everything the control loop touches outside its own state goes through the
// interfaces declared here: the clock, GPIO and ADC lines, the Wi-Fi station,
// authenticated HTTP, the credential record, firmware file writes and the
// reset line. A Board bundles one of each; tests substitute the fakes in
// package haltest.
//
// # Host implementations
//
//   - SystemClock: wall clock with an adjustable offset for server time sync
//   - SimGPIO: in-memory lines driven by the simulator console
//   - GPIOChip: Linux GPIO character device (go-gpiocdev), ADC through IIO sysfs
//   - HostWiFi: association check plus a TCP probe of the backend
//   - RestyHTTP: go-resty client that adds the Apartment authorization header
//     and the X-FW-Version header to every request
//   - JSONStore and DirWriter: atomic temp-file-and-rename writes
//
// # Errors
//
// HTTP failures never panic. They are returned as *RequestError, classified
// the same way for every caller (timeout, DNS, refused, HTTP status, parse):
//
//	resp, err := board.HTTP.Post(ctx, url, nil)
//	if hal.IsNetworkError(err) {
//	    // no data this round; the next poll will try again
//	}
package hal
