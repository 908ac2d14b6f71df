// Picobell-pair provisions Picobell doorbells over the local network.
//
// A doorbell in pairing mode advertises a websocket bridge over mDNS. This
// tool finds it, reads its id and firmware version, and hands over the
// Wi-Fi credentials and apartment key the way the phone app does. Paired
// doorbells are remembered in the registry under the user config
// directory.
//
// Usage:
//
//	picobell-pair scan
//	picobell-pair provision --ssid <name> --password <pw> --api-key <key>
//	picobell-pair devices
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "picobell-pair",
	Short: "Picobell pairing tool",
	Long: `Finds Picobell doorbells in pairing mode and provisions them.

Hold the doorbell's button for ten seconds (or power it on with no stored
network) to start pairing mode, then run 'picobell-pair provision'.`,
	Version:      version.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize("")
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("picobell-pair %s (commit: %s)\n", version.Version, version.Commit)
	},
}
