package gatt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultAdapter     = "hci0"
	defaultDialTimeout = 10 * time.Second

	// notificationBuffer is the per-subscription channel capacity. The
	// sensor pushes roughly one notification per second and the poller
	// consumes only the first, so a small buffer suffices.
	notificationBuffer = 4
)

// ErrClosed is returned when using a session after Close.
var ErrClosed = errors.New("gatt: session closed")

// Backend names a Bluetooth stack implementation.
type Backend string

const (
	// BackendGoBLE uses github.com/go-ble/ble over a raw HCI socket.
	BackendGoBLE Backend = "go-ble"

	// BackendTinyGo uses tinygo.org/x/bluetooth over BlueZ D-Bus.
	BackendTinyGo Backend = "tinygo"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendGoBLE || b == BackendTinyGo
}

// Config configures a [Connector].
type Config struct {
	// Backend selects the Bluetooth stack. Required.
	Backend Backend

	// Adapter is the local HCI adapter, e.g. "hci0". Defaults to "hci0".
	Adapter string

	// DialTimeout bounds connection establishment. Defaults to 10s.
	DialTimeout time.Duration

	// Logger receives connection events. Defaults to slog.Default().
	Logger *slog.Logger
}

// driver is the backend-specific adapter handle.
type driver interface {
	dial(ctx context.Context, addr string) (link, error)
	stop() error
}

// link is the backend-specific connection.
type link interface {
	read(handle uint16) ([]byte, error)
	subscribe(handle uint16, fn func([]byte)) error
	close() error
}

// Connector opens [Session] values through one backend.
//
// The local adapter is opened lazily on the first Connect and held until
// [Connector.Close]. Connector is safe for concurrent use.
type Connector struct {
	cfg       Config
	newDriver func(Backend, Config) (driver, error)

	mu  sync.Mutex
	drv driver
}

// NewConnector creates a [Connector]. It does not touch the adapter.
//
// Returns an error if the backend is unknown.
func NewConnector(cfg Config) (*Connector, error) {
	if !cfg.Backend.Valid() {
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Adapter == "" {
		cfg.Adapter = defaultAdapter
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Connector{cfg: cfg, newDriver: newDriver}, nil
}

// Connect opens a session to the device at addr.
//
// Connection establishment is bounded by both ctx and the configured dial
// timeout. The caller must Close the returned session.
func (c *Connector) Connect(ctx context.Context, addr string) (*Session, error) {
	drv, err := c.driver()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	l, err := drv.dial(dialCtx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s via %s: %w", addr, c.cfg.Backend, err)
	}

	c.cfg.Logger.Debug("connected",
		"address", addr,
		"backend", string(c.cfg.Backend),
		"adapter", c.cfg.Adapter,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return newSession(l, c.cfg.Logger.With("address", addr)), nil
}

// Close releases the local adapter. Safe to call multiple times; a later
// Connect reopens the adapter.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drv == nil {
		return nil
	}
	err := c.drv.stop()
	c.drv = nil
	return err
}

// driver returns the open adapter, opening it on first use.
func (c *Connector) driver() (driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drv != nil {
		return c.drv, nil
	}
	drv, err := c.newDriver(c.cfg.Backend, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("open adapter %s (%s): %w", c.cfg.Adapter, c.cfg.Backend, err)
	}
	c.drv = drv
	return drv, nil
}

// Session is one open connection to the sensor.
//
// Notifications are delivered on per-subscription channels with
// non-blocking sends: if a channel's buffer is full the payload is dropped
// rather than stalling the Bluetooth event loop. Close disconnects and
// closes every subscription channel.
type Session struct {
	link   link
	logger *slog.Logger

	mu     sync.Mutex
	subs   []chan []byte
	closed bool
}

func newSession(l link, logger *slog.Logger) *Session {
	return &Session{link: l, logger: logger}
}

// ReadHandle reads the attribute at handle.
func (s *Session) ReadHandle(handle uint16) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	data, err := s.link.read(handle)
	if err != nil {
		return nil, fmt.Errorf("read handle 0x%04x: %w", handle, err)
	}
	return data, nil
}

// Subscribe enables notifications on handle and returns the channel they
// are delivered on. The channel is closed by [Session.Close].
func (s *Session) Subscribe(handle uint16) (<-chan []byte, error) {
	ch := make(chan []byte, notificationBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	if err := s.link.subscribe(handle, func(data []byte) {
		s.deliver(ch, handle, data)
	}); err != nil {
		return nil, fmt.Errorf("subscribe handle 0x%04x: %w", handle, err)
	}
	return ch, nil
}

// Close disconnects from the device. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	err := s.link.close()
	for _, ch := range subs {
		close(ch)
	}
	return err
}

// deliver forwards a notification payload to a subscription channel.
func (s *Session) deliver(ch chan []byte, handle uint16, data []byte) {
	// backends may reuse their receive buffer
	payload := append([]byte(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case ch <- payload:
	default:
		s.logger.Debug("notification dropped", "handle", fmt.Sprintf("0x%04x", handle))
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
