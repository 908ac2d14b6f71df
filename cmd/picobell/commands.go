package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/doorbell"
	"github.com/jonasfh/picobell/internal/hal"
	"github.com/jonasfh/picobell/internal/host"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/sim"
	"github.com/jonasfh/picobell/internal/ui"
)

// Shared flags
var (
	configPath string
	logLevel   string
	baseURL    string
	gpioFlag   string
	quiet      bool
	logFile    string
	forceInit  bool
	assumeYes  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <config dir>/picobell.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(forgetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// loadRuntime reads the config file and applies flag overrides.
func loadRuntime(cmd *cobra.Command) (*config.Runtime, error) {
	v := config.NewViper()
	bind := func(key, flag string) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	bind("log_level", "log-level")
	bind("device.base_url", "base-url")
	bind("gpio.backend", "gpio")

	return config.LoadWith(v, resolveConfigPath())
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	path, err := defaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func defaultConfigPath() (string, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "picobell.yaml"), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller",
	Long: `Run the doorbell controller until interrupted.

With gpio.backend "gpiocdev" the button, ring and relay lines are driven
through the GPIO character device. With "sim" every input stays idle, which
is mostly useful together with the pairing bridge and the backend.

The status panel is printed whenever it changes; use --quiet to turn it off.`,
	Example: `  # Run with the default config file
  picobell run

  # Drive real GPIO lines
  picobell run --gpio gpiocdev --log-level info

  # Talk to a local development backend
  picobell run --base-url http://localhost:8080`,
	RunE: runController,
}

func init() {
	runCmd.Flags().StringVar(&gpioFlag, "gpio", "", "GPIO backend (sim, gpiocdev)")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "Do not print the status panel")
}

func runController(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if err := logging.Initialize(rt.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	opts := host.Options{Runtime: rt}
	if !quiet {
		opts.Display = ui.NewDisplay(os.Stdout, 0)
	}
	h, err := host.New(opts)
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, stop := signalContext()
	defer stop()

	logging.Info("Controller starting",
		zap.String("gpio", rt.GPIO.Backend),
		zap.String("base_url", rt.Device.BaseURL),
	)
	if err := h.Run(ctx); err != nil && !errors.Is(err, doorbell.ErrReset) {
		return err
	}
	return nil
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the controller in an interactive console",
	Long: `Run the controller on a simulated board with an interactive console.

Keys ring the doorbell, tap the button or hold it long enough to start
pairing. The door relay and status LED are shown next to the panel. Logs
are written to --log-file because the console owns the terminal.`,
	Example: `  # Simulate against a local development backend
  picobell-backend serve &
  picobell sim --base-url http://localhost:8080 --log-level debug`,
	RunE: runSim,
}

func init() {
	simCmd.Flags().StringVar(&logFile, "log-file", "picobell-sim.log", "Log file")
}

func runSim(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	rt.GPIO.Backend = config.GPIOSim
	if err := logging.InitializeWithOutput(rt.LogLevel, logFile); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signalContext()
	defer stop()
	return sim.Run(ctx, rt)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the controller configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with every default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			var err error
			if path, err = defaultConfigPath(); err != nil {
				return err
			}
		}
		if forceInit {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := config.NewViper()
		if path := resolveConfigPath(); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			fmt.Printf("# %s\n", path)
		}
		return printSettings(v)
	},
}

func printSettings(v *viper.Viper) error {
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the stored Wi-Fi credentials",
	Long: `Delete the stored Wi-Fi credentials and apartment key.

The next run starts in pairing mode, as a new doorbell would.`,
	RunE: runForget,
}

func init() {
	forgetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

func runForget(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	store := hal.NewJSONStore(rt.Storage.Credentials)

	if !assumeYes {
		warnings := []string{
			"The doorbell stops reporting rings until it is paired again",
			"Credentials file: " + store.Path(),
		}
		if !ui.Confirm(os.Stdin, os.Stdout, "Forget Wi-Fi credentials", warnings, "forget") {
			return nil
		}
	}

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", store.Path())
	return nil
}
