package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/discovery"
	"github.com/jonasfh/picobell/internal/pairing"
	"github.com/jonasfh/picobell/internal/ui"
)

// Command flags
var (
	scanTimeout int
	deviceKey   string
	address     string
	ssid        string
	password    string
	apiKey      string
	baseURL     string
	chunkSize   int
	assumeYes   bool
)

func init() {
	rootCmd.PersistentFlags().IntVar(&scanTimeout, "timeout", 0, "Discovery timeout in seconds (default from registry preferences)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(renameCmd)
	devicesCmd.AddCommand(forgetCmd)
}

func loadRegistry() (*config.Registry, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load device registry: %w", err)
	}
	return reg, nil
}

func discoverTimeout(reg *config.Registry) time.Duration {
	if scanTimeout > 0 {
		return time.Duration(scanTimeout) * time.Second
	}
	return time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find doorbells in pairing mode",
	Long: `Browse mDNS for doorbells in pairing mode and list them.

Doorbells only advertise while pairing mode is active, which ends after
five minutes or once a network was handed over.`,
	Example: `  # Scan for 10 seconds (default)
  picobell-pair scan

  # Quick 3-second scan
  picobell-pair scan --timeout 3`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	timeout := discoverTimeout(reg)
	fmt.Printf("Scanning for doorbells in pairing mode (timeout: %s)...\n\n", timeout)

	devices, err := discovery.ScanForDevices(timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("No doorbells found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Hold the doorbell button for ten seconds to start pairing mode")
		fmt.Println("  - Make sure this computer is on the same network as the doorbell")
		fmt.Println("  - Use --address host:port if mDNS is blocked")
		return nil
	}

	fmt.Printf("Found %d doorbell(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Name)
		fmt.Printf("   ID:       %s\n", d.ID)
		fmt.Printf("   Address:  %s\n", d.Address())
		fmt.Printf("   Firmware: %s\n", d.Firmware())
		if known := reg.GetDevice(d.ID); known != nil && known.Nickname != "" {
			fmt.Printf("   Known as: %s\n", known.Nickname)
		}
		fmt.Println()
	}
	return nil
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Hand Wi-Fi credentials and the apartment key to a doorbell",
	Long: `Connect to a doorbell's pairing bridge and provision it.

The doorbell is found over mDNS unless --address is given. With several
doorbells in pairing mode, pick one with --device (id, id suffix or name).
Values are written in small chunks, like a low-energy radio would, and the
command waits for the doorbell to report whether it joined the network.`,
	Example: `  # Provision the only doorbell in pairing mode
  picobell-pair provision --ssid HomeNet --api-key 4f1c...

  # Pick one by id suffix, prompt for the password
  picobell-pair provision --device 1b2c --ssid HomeNet

  # Skip discovery
  picobell-pair provision --address 192.168.1.50:8765 --ssid HomeNet --password secret`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&deviceKey, "device", "", "Doorbell id, id suffix or advertised name")
	provisionCmd.Flags().StringVar(&address, "address", "", "Pairing bridge host:port (skips discovery)")
	provisionCmd.Flags().StringVar(&ssid, "ssid", "", "Wi-Fi network name")
	provisionCmd.Flags().StringVar(&password, "password", "", "Wi-Fi password (prompted when omitted)")
	provisionCmd.Flags().StringVar(&apiKey, "api-key", "", "Apartment API key (the doorbell falls back to its id)")
	provisionCmd.Flags().StringVar(&baseURL, "base-url", "", "Backend the apartment key belongs to (recorded in the registry)")
	provisionCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Bytes per write (default from registry preferences)")
	_ = provisionCmd.MarkFlagRequired("ssid")
}

func runProvision(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	printer := ui.NewPrinter(os.Stdout)

	target, err := resolveTarget(reg)
	if err != nil {
		printer.PrintError("No doorbell to provision", err, []string{
			"Hold the doorbell button for ten seconds to start pairing mode",
			"Run 'picobell-pair scan' to see what is advertising",
		})
		return err
	}

	if !cmd.Flags().Changed("password") {
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	client, err := pairing.Dial(ctx, target)
	if err != nil {
		printer.PrintError("Could not reach the doorbell", err, nil)
		return err
	}
	defer client.Close()
	client.ChunkSize = reg.Preferences.ChunkSize
	if chunkSize > 0 {
		client.ChunkSize = chunkSize
	}

	info, err := client.ReadDeviceInfo(ctx)
	if err != nil {
		printer.PrintError("Could not read device info", err, nil)
		return err
	}
	fmt.Printf("Provisioning %s (firmware %s)...\n", info.ID, info.Firmware)
	reg.UpdateDeviceLastSeen(info.ID, target, info.Firmware)

	addr, err := client.Provision(ctx, pairing.Credentials{SSID: ssid, Password: password, APIKey: apiKey})
	if err != nil {
		printer.PrintError("Provisioning failed", err, provisionHints(err))
		if saveErr := reg.Save(); saveErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", saveErr)
		}
		return err
	}

	recordedURL := baseURL
	if recordedURL == "" {
		recordedURL = reg.Preferences.DefaultBaseURL
	}
	reg.RecordProvisioned(info.ID, ssid, recordedURL)
	if err := reg.Save(); err != nil {
		return fmt.Errorf("provisioned, but failed to save registry: %w", err)
	}

	details := map[string]string{
		"Device":  info.ID,
		"Network": ssid,
	}
	if addr != "" {
		details["Address"] = addr
	}
	printer.PrintSuccess("Doorbell provisioned, it restarts now", details)
	return nil
}

func resolveTarget(reg *config.Registry) (string, error) {
	if address != "" {
		return address, nil
	}
	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout(reg)

	if deviceKey != "" {
		d, err := scanner.WaitForDevice(deviceKey)
		if err != nil {
			return "", err
		}
		return d.PairURL(), nil
	}

	devices, err := scanner.ScanForDevices()
	if err != nil {
		return "", err
	}
	switch len(devices) {
	case 0:
		return "", errors.New("no doorbell in pairing mode found")
	case 1:
		return devices[0].PairURL(), nil
	default:
		names := make([]string, 0, len(devices))
		for _, d := range devices {
			names = append(names, d.Name)
		}
		return "", fmt.Errorf("%d doorbells in pairing mode (%v), pick one with --device", len(devices), names)
	}
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Printf("Wi-Fi password for %s: ", ssid)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func provisionHints(err error) []string {
	var rejected *pairing.RejectedError
	switch {
	case errors.Is(err, pairing.ErrWiFiFailed):
		return []string{
			"Check the network name and password",
			"The doorbell only joins 2.4 GHz networks",
			"Run the command again; pairing mode stays active",
		}
	case errors.Is(err, pairing.ErrSaveFailed):
		return []string{"The doorbell could not write its flash; power cycle it and try again"}
	case errors.As(err, &rejected):
		return []string{"A value was longer than the doorbell accepts"}
	default:
		return nil
	}
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List doorbells this tool has provisioned",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		ids := reg.DeviceIDs()
		if len(ids) == 0 {
			fmt.Println("No doorbells provisioned yet.")
			return nil
		}
		sort.Strings(ids)
		for _, id := range ids {
			d := reg.GetDevice(id)
			name := d.Nickname
			if name == "" {
				name = "(no nickname)"
			}
			fmt.Printf("%s  %s\n", id, name)
			if d.SSID != "" {
				fmt.Printf("   Network:     %s\n", d.SSID)
			}
			if d.BaseURL != "" {
				fmt.Printf("   Backend:     %s\n", d.BaseURL)
			}
			if d.Firmware != "" {
				fmt.Printf("   Firmware:    %s\n", d.Firmware)
			}
			if !d.ProvisionedAt.IsZero() {
				fmt.Printf("   Provisioned: %s\n", d.ProvisionedAt.Local().Format(time.RFC1123))
			}
			if !d.LastSeen.IsZero() {
				fmt.Printf("   Last seen:   %s at %s\n", d.LastSeen.Local().Format(time.RFC1123), d.LastAddress)
			}
		}
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <nickname>",
	Short: "Give a doorbell a nickname",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if reg.GetDevice(args[0]) == nil {
			return fmt.Errorf("unknown doorbell %s", args[0])
		}
		reg.SetDeviceNickname(args[0], args[1])
		return reg.Save()
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Remove a doorbell from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if reg.GetDevice(args[0]) == nil {
			return fmt.Errorf("unknown doorbell %s", args[0])
		}
		if !assumeYes && !ui.Confirm(os.Stdin, os.Stdout, "Forget doorbell "+args[0],
			[]string{"Only this tool's record is removed; the doorbell keeps its network"}, "forget") {
			return nil
		}
		reg.RemoveDevice(args[0])
		return reg.Save()
	},
}

func init() {
	forgetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}
