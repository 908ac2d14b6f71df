// Picobell-backend is a development stand-in for the apartment backend.
//
// It accepts ring notifications from doorbells, queues door-open commands
// for the next status poll and serves firmware files for over-the-air
// updates. State is kept in memory.
//
// Usage:
//
//	picobell-backend serve [flags]
//	picobell-backend open --key <apartment key>
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
	Use:   "picobell-backend",
	Short: "Picobell development backend",
	Long: `An in-memory apartment backend for developing and testing Picobell.

Doorbells authenticate with "Authorization: Apartment <key>". A door-open
command queued with 'picobell-backend open' (or POST /doorbell/open) is
delivered on the doorbell's next status poll.`,
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
		fmt.Printf("picobell-backend %s (commit: %s)\n", version.Version, version.Commit)
	},
}
