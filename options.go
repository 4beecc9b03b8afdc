package mitemp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultCacheTimeout = 600 * time.Second
	defaultRetries      = 3
	defaultBLETimeout   = 10 * time.Second
	defaultAdapter      = "hci0"
	defaultBackend      = BackendGoBLE
)

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	backend      Backend
	adapter      string
	cacheTimeout time.Duration
	retries      int
	bleTimeout   time.Duration
	logger       *slog.Logger
	connector    Connector
}

// Option configures a [Poller] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, which [New] propagates.
//
// Built-in options: [WithBackend], [WithAdapter], [WithCacheTimeout],
// [WithRetries], [WithBLETimeout], [WithLogger], [WithConnector].
type Option func(*pollerConfig) error

// WithBackend selects the Bluetooth stack used to reach the sensor.
//
// Defaults to [BackendGoBLE]. Ignored when [WithConnector] is also given.
//
// Returns an error for an unknown backend.
func WithBackend(b Backend) Option {
	return func(cfg *pollerConfig) error {
		switch b {
		case BackendGoBLE, BackendTinyGo:
		default:
			return fmt.Errorf("unknown backend %q (expected %q or %q)", b, BackendGoBLE, BackendTinyGo)
		}
		cfg.backend = b
		return nil
	}
}

// WithAdapter sets the local Bluetooth adapter, e.g. "hci0" or "hci1".
//
// Defaults to "hci0". Returns an error if the name is empty.
func WithAdapter(adapter string) Option {
	return func(cfg *pollerConfig) error {
		if adapter == "" {
			return errors.New("adapter cannot be empty")
		}
		cfg.adapter = adapter
		return nil
	}
}

// WithCacheTimeout sets how long a temperature/humidity reading is served
// from cache before the sensor is queried again.
//
// Defaults to 600 seconds. Returns an error if the duration is zero or negative.
//
// Example:
//
//	p, err := mitemp.New("4C:65:A8:D0:12:34",
//	    mitemp.WithCacheTimeout(5 * time.Minute),
//	)
func WithCacheTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("cache timeout must be positive")
		}
		cfg.cacheTimeout = d
		return nil
	}
}

// WithRetries sets the retry count reported by [Poller.Retries].
//
// The value is informational: failed reads are retried on the next query
// after the shortened retry window, not in a loop. Defaults to 3.
func WithRetries(n int) Option {
	return func(cfg *pollerConfig) error {
		if n < 0 {
			return errors.New("retries cannot be negative")
		}
		cfg.retries = n
		return nil
	}
}

// WithBLETimeout bounds both connection establishment and the wait for a
// sensor data notification.
//
// Defaults to 10 seconds. Returns an error if the duration is zero or negative.
func WithBLETimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("ble timeout must be positive")
		}
		cfg.bleTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the poller.
//
// If not specified, [slog.Default] is used. Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithConnector replaces the default Bluetooth connector.
//
// Use this to run the poller against a simulated sensor or a custom
// transport. The poller does not close a connector supplied this way.
//
// Returns an error if the connector is nil.
func WithConnector(c Connector) Option {
	return func(cfg *pollerConfig) error {
		if c == nil {
			return errors.New("connector cannot be nil")
		}
		cfg.connector = c
		return nil
	}
}
