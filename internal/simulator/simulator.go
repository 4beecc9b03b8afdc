// Package simulator provides an in-process stand-in for a Mi temperature
// sensor, for demos and for running the CLI on machines without Bluetooth.
//
// Readings follow a slow random walk. The battery drains by one percent
// per simulated day and the sensor can be told to drop a fraction of
// connections.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jpalmerr/mitemp"
)

// ErrUnreachable is returned by Connect when a connection is dropped.
var ErrUnreachable = errors.New("simulated sensor out of range")

// Config tunes the simulated sensor. Zero values pick sensible defaults.
type Config struct {
	// Name is the advertised device name. Defaults to "MJ_HT_V1".
	Name string

	// Firmware is the firmware version string. Defaults to "1.0.0_0106".
	Firmware string

	// Temperature and Humidity are the starting values.
	// Default to 21.5 °C and 45 %.
	Temperature float64
	Humidity    float64

	// Battery is the starting charge in percent. Defaults to 100.
	Battery int

	// Latency delays each notification, like a real sensor waking up.
	Latency time.Duration

	// FailureRate is the probability (0-1) that Connect fails.
	FailureRate float64

	// Seed makes the random walk reproducible. 0 uses the clock.
	Seed int64

	Logger *slog.Logger
}

// Sensor is a simulated sensor. It implements [mitemp.Connector].
type Sensor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	temp     float64
	hum      float64
	started  time.Time
	connects int
}

var _ mitemp.Connector = (*Sensor)(nil)

// New creates a simulated sensor.
func New(cfg Config) *Sensor {
	if cfg.Name == "" {
		cfg.Name = "MJ_HT_V1"
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "1.0.0_0106"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 21.5
	}
	if cfg.Humidity == 0 {
		cfg.Humidity = 45
	}
	if cfg.Battery == 0 {
		cfg.Battery = 100
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sensor{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "simulator"),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		temp:    cfg.Temperature,
		hum:     cfg.Humidity,
		started: time.Now(),
	}
}

// Connect opens a simulated session.
func (s *Sensor) Connect(ctx context.Context, addr string) (mitemp.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate {
		s.logger.Info("dropping connection", "address", addr)
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}
	return &conn{sensor: s, subs: make(map[uint16]chan []byte)}, nil
}

// Connects returns how many sessions have been requested.
func (s *Sensor) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// step advances the random walk and returns the payload the real
// sensor would send.
func (s *Sensor) step() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.temp += (s.rng.Float64() - 0.5) * 0.4
	s.hum += (s.rng.Float64() - 0.5) * 1.0
	s.hum = clamp(s.hum, 0, 100)

	// the firmware sends a NUL terminated string
	return []byte(fmt.Sprintf("T=%.1f H=%.1f\x00", s.temp, s.hum))
}

func (s *Sensor) battery() byte {
	days := int(time.Since(s.started) / (24 * time.Hour))
	return byte(max(s.cfg.Battery-days, 0))
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

type conn struct {
	sensor *Sensor

	mu     sync.Mutex
	subs   map[uint16]chan []byte
	closed bool
	done   chan struct{}
}

func (c *conn) ReadHandle(handle uint16) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errors.New("simulated session closed")
	}

	switch handle {
	case mitemp.HandleName:
		return []byte(c.sensor.cfg.Name), nil
	case mitemp.HandleFirmwareVersion:
		return append([]byte(c.sensor.cfg.Firmware), 0), nil
	case mitemp.HandleBattery:
		return []byte{c.sensor.battery()}, nil
	default:
		return nil, fmt.Errorf("no attribute at handle 0x%04x", handle)
	}
}

func (c *conn) Subscribe(handle uint16) (<-chan []byte, error) {
	if handle != mitemp.HandleSensorData {
		return nil, fmt.Errorf("handle 0x%04x does not notify", handle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("simulated session closed")
	}
	if c.done == nil {
		c.done = make(chan struct{})
	}

	if old, ok := c.subs[handle]; ok {
		close(old)
	}
	ch := make(chan []byte, 1)
	c.subs[handle] = ch

	payload := c.sensor.step()
	latency := c.sensor.cfg.Latency
	done := c.done
	go func() {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-done:
				return
			}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		// a resubscribe closes ch and replaces it
		if !c.closed && c.subs[handle] == ch {
			ch <- payload
		}
	}()
	return ch, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.done != nil {
		close(c.done)
	}
	for _, ch := range c.subs {
		close(ch)
	}
	return nil
}
