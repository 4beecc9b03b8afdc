package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/mitemp"
	"github.com/jpalmerr/mitemp/config"
	"github.com/jpalmerr/mitemp/internal/simulator"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the sensor and serve the dashboard",
	Long: `Poll a sensor continuously and publish its readings.

The server will:
  - Load configuration from the specified YAML file
  - Query the sensor every poll_interval (served from cache when fresh)
  - Serve the dashboard UI and JSON API on the configured port
  - Publish readings to MQTT if a broker is configured

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  mitemp serve -c config.yaml
  mitemp serve --config /etc/mitemp/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("simulate", false, "use a simulated sensor instead of bluetooth")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(debug)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"address", cfg.Sensor.Address,
		"backend", cfg.Sensor.Backend,
		"mqtt", cfg.MQTT.Enabled(),
	)

	var extra []mitemp.Option
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		logger.Warn("using simulated sensor")
		extra = append(extra, mitemp.WithConnector(simulator.New(simulator.Config{
			Latency: time.Second,
			Logger:  logger,
		})))
	}

	p, m, err := config.Build(cfg, logger, extra...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer p.Close()

	logger.Info("starting monitor",
		"port", m.Port(),
		"poll_interval", m.PollInterval().String(),
		"cache_timeout", p.CacheTimeout().String(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// a BLE exchange in flight can hold Start for up to ble_timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("monitor error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
