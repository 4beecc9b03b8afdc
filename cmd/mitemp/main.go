// Package main is the entry point for the mitemp CLI.
//
// mitemp can be used as a library (SDK) or run as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	mitemp read --address 4C:65:A8:D0:12:34   # Query the sensor once
//	mitemp serve -c config.yaml               # Poll and serve the dashboard
//	mitemp validate -c config.yaml            # Validate configuration
//	mitemp version                            # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mitemp",
	Short: "Read Xiaomi Mi temperature and humidity sensors over Bluetooth LE",
	Long: `mitemp reads Xiaomi Mi Temperature & Humidity sensors (MJ_HT_V1) over
Bluetooth Low Energy.

Readings are cached so a slow sensor is not woken more often than needed,
and firmware version and battery level are refreshed once a day.

Quick start:
  1. Find your sensor's MAC address (e.g. with bluetoothctl scan on)
  2. Run: mitemp read --address 4C:65:A8:D0:12:34
  3. Or create a config file and run: mitemp serve -c mitemp.yaml

Example config:
  poll_interval: 60s
  sensor:
    address: 4C:65:A8:D0:12:34
    cache_timeout: 600s`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this mitemp binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mitemp %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}
