// Package logging provides structured logging for the picobell binaries.
//
// It wraps a process-wide zap logger. Until Initialize is called the logger
// is a no-op, so library packages can log freely from tests.
//
// # Log Levels
//
//   - Debug: poll results, bounced inputs, raw pairing frames
//   - Info: mode changes, rings, door pulses, pairing sessions
//   - Warn: network failures, damaged credential records
//   - Error: failures that stop a subsystem (pairing channel, backend listener)
//
// The level comes from the --log-level flag or PICOBELL_LOG_LEVEL.
//
// # Usage
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	logging.Info("Ring detected", zap.Bool("window_open", false))
//
// The simulator owns the terminal, so it logs to a file instead:
//
//	logging.InitializeWithOutput("debug", "/tmp/picobell-sim.log")
//
// # Domain helpers
//
//	logging.LogModeChange("LISTENING", "SETUP", "button long press")
//	logging.LogHTTPExchange("POST", url, 200, elapsed, nil)
//	logging.LogPairingEvent(peer, "write", zap.String("field", "ssid"))
//	logging.LogRawBytes("pairing frame", data)
//
// All functions are safe for concurrent use.
package logging
