package main

import (
	"fmt"

	"github.com/jpalmerr/mitemp/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a mitemp configuration file without touching the sensor.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  mitemp validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mqtt := "disabled"
	if cfg.MQTT.Enabled() {
		mqtt = cfg.MQTT.Broker + " -> " + cfg.MQTT.Topic
	}
	httpPort := "disabled"
	if *cfg.Port > 0 {
		httpPort = fmt.Sprint(*cfg.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Sensor:        %s (%s on %s)\n", cfg.Sensor.Address, cfg.Sensor.Backend, cfg.Sensor.Adapter)
	fmt.Fprintf(out, "  Cache timeout: %s\n", cfg.Sensor.CacheTimeout.Duration())
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Port:          %s\n", httpPort)
	fmt.Fprintf(out, "  MQTT:          %s\n", mqtt)

	return nil
}
