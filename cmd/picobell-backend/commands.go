package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/backend"
	"github.com/jonasfh/picobell/internal/config"
	"github.com/jonasfh/picobell/internal/logging"
	"github.com/jonasfh/picobell/internal/urls"
)

// Command flags
var (
	configPath string
	listen     string
	apiKeys    []string
	fwVersion  string
	fwDir      string
	logLevel   string
	targetURL  string
	openKey    string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(openCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development backend",
	Long: `Serve the doorbell and firmware routes until interrupted.

Settings come from the backend section of the picobell config file and
PICOBELL_BACKEND_* environment variables; flags override both. Without any
--api-key every non-empty key is accepted.

Routes:
  GET  /health
  POST /doorbell/ring           ring notification
  POST /doorbell/status         pending open command (also GET)
  POST /doorbell/open           queue an open command
  GET  /pico/fw_version         firmware version
  GET  /pico/list_py_files      firmware manifest
  GET  /pico/get_file?file=     firmware file`,
	Example: `  # Accept any apartment key on :8080
  picobell-backend serve

  # Offer firmware 1.2.0 from ./firmware to one apartment
  picobell-backend serve --api-key 4f1c... --fw-version 1.2.0 --fw-dir ./firmware`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Picobell config file")
	serveCmd.Flags().StringVar(&listen, "listen", "", "Listen address (default :8080)")
	serveCmd.Flags().StringSliceVar(&apiKeys, "api-key", nil, "Accepted apartment key (repeatable)")
	serveCmd.Flags().StringVar(&fwVersion, "fw-version", "", "Firmware version to offer")
	serveCmd.Flags().StringVar(&fwDir, "fw-dir", "", "Directory of .py firmware files")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	v := config.NewViper()
	for key, flag := range map[string]string{
		"backend.listen":           "listen",
		"backend.api_keys":         "api-key",
		"backend.firmware_version": "fw-version",
		"backend.firmware_dir":     "fw-dir",
	} {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
	rt, err := config.LoadWith(v, configPath)
	if err != nil {
		return err
	}

	srv := backend.New(backend.Config{
		APIKeys:         rt.Backend.APIKeys,
		FirmwareVersion: rt.Backend.FirmwareVersion,
		FirmwareDir:     rt.Backend.FirmwareDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting development backend",
		zap.String("listen", rt.Backend.Listen),
		zap.Int("api_keys", len(rt.Backend.APIKeys)),
		zap.String("firmware_version", rt.Backend.FirmwareVersion),
		zap.String("firmware_dir", rt.Backend.FirmwareDir),
	)
	fmt.Printf("Backend listening on %s (Ctrl+C to stop)\n", rt.Backend.Listen)
	return srv.Run(ctx, rt.Backend.Listen)
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Queue a door-open command for an apartment",
	Long: `Send the open command the mobile app would send. The doorbell picks it
up on its next status poll while its ring window is active.`,
	Example: `  picobell-backend open --key 4f1c...
  picobell-backend open --url https://picobell.no --key 4f1c...`,
	RunE: runOpen,
}

func init() {
	openCmd.Flags().StringVar(&targetURL, "url", "http://localhost:8080", "Backend base URL")
	openCmd.Flags().StringVar(&openKey, "key", "", "Apartment API key")
	_ = openCmd.MarkFlagRequired("key")
}

func runOpen(cmd *cobra.Command, args []string) error {
	var result struct {
		Message string `json:"message"`
	}
	var apiErr struct {
		Error string `json:"error"`
	}

	resp, err := resty.New().
		SetTimeout(10*time.Second).
		R().
		SetContext(cmd.Context()).
		SetHeader("Authorization", "Apartment "+openKey).
		SetResult(&result).
		SetError(&apiErr).
		Post(urls.Join(targetURL, urls.OpenPath))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("backend returned %s", resp.Status())
	}
	fmt.Println(result.Message)
	return nil
}
