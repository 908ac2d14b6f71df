// Package ui renders terminal output with Lipgloss.
//
// Display draws the doorbell status panel (mode badge, network, last call,
// ring window countdown, pairing name, firmware update progress) and
// implements doorbell.Display, so the host runtime can show what the
// device's screen would. Printer and Confirm serve the command-line tools.
//
// Logging is controlled by PICOBELL_LOG_LEVEL. When it is unset zap stays
// silent and only the rendered panel reaches the terminal.
package ui
