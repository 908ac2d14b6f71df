// Picobell runs the call-box doorbell controller on a host machine.
//
// The controller watches the intercom's ring signal and the panel button,
// notifies the apartment backend when someone rings and pulses the door
// relay when the backend (or the button) says open. On a Raspberry Pi-class
// host it drives real lines through the GPIO character device; anywhere
// else it runs on a simulated board.
//
// Usage:
//
//	picobell run [flags]
//	picobell sim [flags]
//	picobell config init|show
//
// See 'picobell --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonasfh/picobell/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "picobell",
	Short: "Picobell doorbell controller",
	Long: `Runs the Picobell call-box controller.

The controller notifies the apartment backend when the doorbell rings, keeps
polling for an open command for five minutes and pulses the door relay when
one arrives. Holding the button for ten seconds starts pairing mode, where
the picobell-pair tool can hand over Wi-Fi credentials and the apartment key.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("picobell %s (commit: %s, firmware: %s)\n", version.Version, version.Commit, version.Firmware)
	},
}
