package mitemp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/mitemp/dashboard"
	"github.com/jpalmerr/mitemp/internal/mqtt"
	"github.com/jpalmerr/mitemp/internal/scheduler"
	"github.com/jpalmerr/mitemp/internal/server"
	"github.com/jpalmerr/mitemp/internal/store"
)

// ReadingResult holds the outcome of one monitor poll.
type ReadingResult struct {
	// Address is the sensor's MAC address.
	Address string

	// Temperature in degrees Celsius. Only meaningful if HasReading is set.
	Temperature float64

	// Humidity in percent. Only meaningful if HasReading is set.
	Humidity float64

	// HasReading reports whether a valid temperature/humidity pair was available.
	HasReading bool

	// ReadAt is when the sensor pushed the reading. It is earlier than
	// CheckedAt when the reading came from cache.
	ReadAt time.Time

	// Battery is the battery level in percent.
	Battery int

	// Firmware is the sensor's firmware version.
	Firmware string

	// CheckedAt is when the poll completed.
	CheckedAt time.Time

	// Latency is how long the poll took, including any sensor round trip.
	Latency time.Duration

	// Error is set if any part of the poll failed. A result can carry both
	// a reading and an error.
	Error error
}

// publisher is the MQTT side of the monitor.
type publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, v any) error
	Close() error
}

// Monitor polls a [Poller] on a fixed interval and publishes the results.
//
// Each poll is stored for the dashboard and HTTP API, handed to reading
// callbacks and, if configured, published to MQTT. Monitor logs through the
// poller's logger.
type Monitor struct {
	poller       *Poller
	title        string
	pollInterval time.Duration
	port         int
	historySize  int
	mqtt         *MQTTOptions
	callbacks    []func(ReadingResult)
	logger       *slog.Logger

	newPublisher func(mqtt.Config) (publisher, error)
}

// NewMonitor creates a [Monitor] for p.
//
// Defaults:
//   - Poll interval: 60 seconds
//   - Port: 8080
//   - History: 288 readings
//   - MQTT: disabled
//
// Returns an error if p is nil or any option is invalid.
func NewMonitor(p *Poller, opts ...MonitorOption) (*Monitor, error) {
	if p == nil {
		return nil, errors.New("poller cannot be nil")
	}

	cfg := &monitorConfig{
		pollInterval: defaultPollInterval,
		port:         defaultPort,
		historySize:  store.DefaultHistorySize,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return &Monitor{
		poller:       p,
		title:        cfg.title,
		pollInterval: cfg.pollInterval,
		port:         cfg.port,
		historySize:  cfg.historySize,
		mqtt:         cfg.mqtt,
		callbacks:    cfg.readingCallback,
		logger:       p.logger,
		newPublisher: func(c mqtt.Config) (publisher, error) {
			return mqtt.New(c)
		},
	}, nil
}

// Port returns the configured HTTP port. Zero means HTTP is disabled.
func (m *Monitor) Port() int {
	return m.port
}

// PollInterval returns the configured interval between polls.
func (m *Monitor) PollInterval() time.Duration {
	return m.pollInterval
}

// Start polls the sensor and serves the results until ctx is cancelled.
//
// The sensor is queried immediately, then once per poll interval. Start
// blocks; cancel ctx to shut down. Returns nil on graceful shutdown and an
// error if the MQTT broker is unreachable or the HTTP port cannot be bound.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("monitor starting",
		"address", m.poller.Address(),
		"interval", m.pollInterval.String(),
		"cache_timeout", m.poller.CacheTimeout().String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	var pub publisher
	if m.mqtt != nil {
		var err error
		if pub, err = m.connectMQTT(ctx); err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				m.logger.Warn("mqtt close failed", "error", err)
			}
		}()
	}

	readings := store.NewMemoryStore(m.historySize)

	sched := scheduler.NewScheduler(m.poller.Address(), m.poll, m.pollInterval, m.logger)
	sched.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range sched.Results() {
			m.handleResult(ctx, result, readings, pub)
		}
	}()

	cleanup := func() {
		sched.Stop() // closes results channel
		wg.Wait()
	}

	if m.port > 0 {
		httpServer := server.NewServer(readings, m.port, dashboard.Assets, m.title, m.logger)
		if err := httpServer.Start(ctx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		m.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", m.port))
	}

	<-ctx.Done()
	cleanup()
	m.logger.Info("monitor stopped")
	return nil
}

func (m *Monitor) connectMQTT(ctx context.Context) (publisher, error) {
	pub, err := m.newPublisher(mqtt.Config{
		Broker:   m.mqtt.Broker,
		Topic:    m.mqtt.Topic,
		ClientID: m.mqtt.ClientID,
		Username: m.mqtt.Username,
		Password: m.mqtt.Password,
		QoS:      m.mqtt.QoS,
		Retained: m.mqtt.Retained,
		Logger:   m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT publisher: %w", err)
	}
	if err := pub.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return pub, nil
}

// poll gathers one sample from the poller. A connection failure stops the
// poll early; the firmware refresh it came from has already been retried.
func (m *Monitor) poll(ctx context.Context) (scheduler.Sample, error) {
	var sample scheduler.Sample

	r, err := m.poller.Reading(ctx, true)
	switch {
	case errors.Is(err, ErrConnection):
		return sample, err
	case err != nil:
		// keep going: battery and firmware have their own cache
	default:
		sample.Temperature = r.Temperature
		sample.Humidity = r.Humidity
		sample.HasReading = true
		sample.ReadAt = r.At
	}
	readErr := err

	if sample.Battery, err = m.poller.Battery(ctx); err != nil {
		return sample, errors.Join(readErr, err)
	}
	if sample.Firmware, err = m.poller.FirmwareVersion(ctx); err != nil {
		return sample, errors.Join(readErr, err)
	}
	return sample, readErr
}

// handleResult stores, forwards, publishes and logs one poll result.
func (m *Monitor) handleResult(ctx context.Context, result scheduler.Result, readings store.Store, pub publisher) {
	stored := toStoreReading(result)

	// store first so callbacks observe persisted data
	readings.Update(stored)

	if len(m.callbacks) > 0 {
		public := toReadingResult(result)
		for _, cb := range m.callbacks {
			invokeCallbackSafe(cb, public, m.logger)
		}
	}

	if pub != nil {
		// publish even while shutting down so the final poll is not lost
		if err := pub.Publish(context.WithoutCancel(ctx), stored); err != nil {
			m.logger.Warn("mqtt publish failed", "error", err.Error())
		}
	}

	logAttrs := []any{
		"address", result.Address,
		"latency_ms", result.Latency.Milliseconds(),
		"battery", result.Battery,
	}
	if result.HasReading {
		logAttrs = append(logAttrs, "temperature", result.Temperature, "humidity", result.Humidity)
	}
	if result.Error != nil {
		m.logger.Warn("poll completed with error", append(logAttrs, "error", result.Error.Error())...)
	} else {
		m.logger.Debug("poll completed", logAttrs...)
	}
}

// toStoreReading converts a scheduler result to its storage form.
func toStoreReading(r scheduler.Result) store.Reading {
	out := store.Reading{
		Address:   r.Address,
		Battery:   r.Battery,
		Firmware:  r.Firmware,
		CheckedAt: r.CheckedAt,
		LatencyMs: r.Latency.Milliseconds(),
	}
	if r.HasReading {
		temp, hum, at := r.Temperature, r.Humidity, r.ReadAt
		out.Temperature = &temp
		out.Humidity = &hum
		out.ReadAt = &at
	}
	if r.Error != nil {
		msg := r.Error.Error()
		out.Error = &msg
	}
	return out
}

func toReadingResult(r scheduler.Result) ReadingResult {
	return ReadingResult{
		Address:     r.Address,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		HasReading:  r.HasReading,
		ReadAt:      r.ReadAt,
		Battery:     r.Battery,
		Firmware:    r.Firmware,
		CheckedAt:   r.CheckedAt,
		Latency:     r.Latency,
		Error:       r.Error,
	}
}

// invokeCallbackSafe calls a reading callback with panic recovery.
func invokeCallbackSafe(cb func(ReadingResult), result ReadingResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reading callback panicked",
				"panic", r,
				"address", result.Address,
			)
		}
	}()
	cb(result)
}
