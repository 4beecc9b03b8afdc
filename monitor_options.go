package mitemp

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultPort         = 8080
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	title           string
	pollInterval    time.Duration
	port            int
	historySize     int
	mqtt            *MQTTOptions
	readingCallback []func(ReadingResult)
}

// MonitorOption configures a [Monitor] during construction.
//
// Built-in options: [WithPollInterval], [WithPort], [WithTitle],
// [WithHistorySize], [WithMQTT], [WithReadingCallback].
type MonitorOption func(*monitorConfig) error

// MQTTOptions configures publishing readings to an MQTT broker.
type MQTTOptions struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// Topic receives one JSON document per poll. Availability is published
	// as "online"/"offline" on Topic + "/status".
	Topic string

	// ClientID identifies the session. Generated if empty.
	ClientID string

	// Username and Password authenticate against the broker. Optional.
	Username string
	Password string

	// QoS is the MQTT quality of service, 0 to 2.
	QoS byte

	// Retained marks reading payloads as retained.
	Retained bool
}

// WithPollInterval sets how often the monitor queries the poller.
//
// Queries go through the poller's cache, so an interval shorter than the
// cache timeout does not increase radio traffic. Defaults to 60 seconds.
//
// Returns an error if the duration is below one second.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(cfg *monitorConfig) error {
		if d < time.Second {
			return errors.New("poll interval must be at least 1s")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard and API.
//
// Port 0 disables the HTTP server. Defaults to 8080.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) MonitorOption {
	return func(cfg *monitorConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "Mi Temperature".
func WithTitle(title string) MonitorOption {
	return func(cfg *monitorConfig) error {
		cfg.title = title
		return nil
	}
}

// WithHistorySize sets how many readings the dashboard keeps in memory.
//
// Defaults to 288, a day at 5 minute intervals. Returns an error if n is
// not positive.
func WithHistorySize(n int) MonitorOption {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return errors.New("history size must be positive")
		}
		cfg.historySize = n
		return nil
	}
}

// WithMQTT publishes every reading to an MQTT broker.
//
// Returns an error if the broker or topic is empty or QoS is above 2.
func WithMQTT(opts MQTTOptions) MonitorOption {
	return func(cfg *monitorConfig) error {
		if opts.Broker == "" {
			return errors.New("mqtt broker cannot be empty")
		}
		if opts.Topic == "" {
			return errors.New("mqtt topic cannot be empty")
		}
		if opts.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", opts.QoS)
		}
		cfg.mqtt = &opts
		return nil
	}
}

// WithReadingCallback registers a function to be called after every poll.
//
// Callbacks run synchronously on the result goroutine in registration
// order, after the reading is stored. They must not block. Panics are
// recovered and logged.
//
// Example:
//
//	m, err := mitemp.NewMonitor(p,
//	    mitemp.WithReadingCallback(func(r mitemp.ReadingResult) {
//	        if r.HasReading && r.Temperature > 30 {
//	            log.Printf("too hot: %.1f", r.Temperature)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithReadingCallback(cb func(ReadingResult)) MonitorOption {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.readingCallback = append(cfg.readingCallback, cb)
		return nil
	}
}
