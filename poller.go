package mitemp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/mitemp/internal/gatt"
)

const (
	// firmwareRefreshInterval is how often firmware version and battery
	// level are re-read. Both change rarely and cost a connection each.
	firmwareRefreshInterval = 24 * time.Hour

	// retryDelay is how long after a failed refresh the cache is considered
	// stale again, instead of waiting a full cache timeout.
	retryDelay = 300 * time.Second
)

// Poller reads a single Mi Temperature & Humidity sensor and caches the
// results to minimize radio traffic.
//
// Temperature and humidity are served from cache until the cache timeout
// elapses; a refresh then waits for one notification from the sensor.
// Firmware version and battery level are cached separately and refreshed at
// most once every 24 hours.
//
// Failed temperature/humidity refreshes are not returned as errors. Instead
// the next refresh is scheduled 5 minutes out and callers see
// [ErrSensorUnavailable] until it succeeds.
//
// All methods are safe for concurrent use. Only one refresh runs at a time.
type Poller struct {
	address      string
	connector    Connector
	closer       io.Closer
	cacheTimeout time.Duration
	retries      int
	bleTimeout   time.Duration
	logger       *slog.Logger
	now          func() time.Time

	// refreshMu serializes the stale check and the refresh that follows it.
	refreshMu sync.Mutex

	mu       sync.Mutex
	cache    *string
	lastRead time.Time

	// fwMu guards the firmware fields and serializes firmware refreshes.
	fwMu       sync.Mutex
	firmware   *string
	battery    int
	fwLastRead time.Time
}

// New creates a [Poller] for the sensor at the given MAC address.
//
// Defaults:
//   - Backend: go-ble
//   - Adapter: hci0
//   - Cache timeout: 600 seconds
//   - Retries: 3
//   - BLE timeout: 10 seconds
//
// No connection is made until the first query.
//
// Example:
//
//	p, err := mitemp.New("4C:65:A8:D0:12:34", mitemp.WithBackend(mitemp.BackendTinyGo))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	temp, err := p.Parameter(ctx, mitemp.Temperature, true)
func New(address string, opts ...Option) (*Poller, error) {
	cfg := &pollerConfig{
		backend:      defaultBackend,
		adapter:      defaultAdapter,
		cacheTimeout: defaultCacheTimeout,
		retries:      defaultRetries,
		bleTimeout:   defaultBLETimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if _, err := net.ParseMAC(address); err != nil {
		return nil, fmt.Errorf("invalid sensor address %q: %w", address, err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		address:      strings.ToUpper(address),
		connector:    cfg.connector,
		cacheTimeout: cfg.cacheTimeout,
		retries:      cfg.retries,
		bleTimeout:   cfg.bleTimeout,
		logger:       logger,
		now:          time.Now,
	}

	if p.connector == nil {
		gc, err := gatt.NewConnector(gatt.Config{
			Backend:     gatt.Backend(cfg.backend),
			Adapter:     cfg.adapter,
			DialTimeout: cfg.bleTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		p.connector = gattConnector{c: gc}
		p.closer = gc
	}

	return p, nil
}

// Address returns the sensor's MAC address in upper case.
func (p *Poller) Address() string {
	return p.address
}

// CacheTimeout returns how long readings are served from cache.
func (p *Poller) CacheTimeout() time.Duration {
	return p.cacheTimeout
}

// Retries returns the configured retry count.
func (p *Poller) Retries() int {
	return p.retries
}

// Close releases the Bluetooth adapter held by the default connector.
// It is a no-op for connectors supplied with [WithConnector].
func (p *Poller) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Name reads the device name from the sensor.
//
// Name always connects to the sensor; the result is not cached.
// Returns an error wrapping [ErrConnection] if the session cannot be opened
// or the name attribute is empty.
func (p *Poller) Name(ctx context.Context) (string, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return "", err
	}
	defer p.closeConn(conn)

	raw, err := conn.ReadHandle(HandleName)
	if err != nil {
		return "", fmt.Errorf("%w: read name from %s: %w", ErrConnection, p.address, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: could not read name using handle 0x%04x from sensor %s",
			ErrConnection, HandleName, p.address)
	}

	// each byte is one character
	var b strings.Builder
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String(), nil
}

// FirmwareVersion returns the sensor's firmware version.
//
// The version and the battery level are read together, on first use and
// then at most once every 24 hours. An empty string means the sensor
// returned no version. Returns an error wrapping [ErrConnection] if a
// required refresh fails.
func (p *Poller) FirmwareVersion(ctx context.Context) (string, error) {
	p.fwMu.Lock()
	defer p.fwMu.Unlock()

	if err := p.refreshFirmwareLocked(ctx); err != nil {
		return "", err
	}
	if p.firmware == nil {
		return "", nil
	}
	return *p.firmware, nil
}

// Battery returns the battery level in percent.
//
// The battery level is refreshed together with the firmware version, at
// most once every 24 hours. It never touches the temperature/humidity cache.
func (p *Poller) Battery(ctx context.Context) (int, error) {
	p.fwMu.Lock()
	defer p.fwMu.Unlock()

	if err := p.refreshFirmwareLocked(ctx); err != nil {
		return 0, err
	}
	return p.battery, nil
}

// Parameter returns the current value of one parameter.
//
// [Battery] is delegated to [Poller.Battery]. For [Temperature] and
// [Humidity] the cached reading is used when useCache is true and the cache
// is younger than the cache timeout; otherwise the sensor is queried.
//
// Returns [ErrSensorUnavailable] if no valid reading exists afterwards, and
// an error wrapping [ErrConnection] if the firmware refresh preceding a
// reading fails.
func (p *Poller) Parameter(ctx context.Context, param Parameter, useCache bool) (float64, error) {
	switch param {
	case Battery:
		level, err := p.Battery(ctx)
		if err != nil {
			return 0, err
		}
		return float64(level), nil
	case Temperature, Humidity:
	default:
		return 0, fmt.Errorf("unknown parameter %v", param)
	}

	r, err := p.Reading(ctx, useCache)
	if err != nil {
		return 0, err
	}
	if param == Temperature {
		return r.Temperature, nil
	}
	return r.Humidity, nil
}

// Reading returns temperature and humidity from a single cache-or-refresh
// step. It follows the same rules as [Poller.Parameter].
func (p *Poller) Reading(ctx context.Context, useCache bool) (Reading, error) {
	if err := p.ensureFresh(ctx, useCache); err != nil {
		return Reading{}, err
	}

	r, ok := p.cachedReading()
	if !ok {
		return Reading{}, fmt.Errorf("%w: could not read data from sensor %s", ErrSensorUnavailable, p.address)
	}
	return r, nil
}

// ClearCache drops the cached reading so the next query refreshes
// regardless of elapsed time.
func (p *Poller) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearCacheLocked()
}

// CacheAvailable reports whether a valid reading is cached.
func (p *Poller) CacheAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache != nil
}

// ensureFresh refreshes the cache if it is stale or useCache is false.
func (p *Poller) ensureFresh(ctx context.Context, useCache bool) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if useCache {
		if age, fresh := p.cacheAge(); fresh {
			p.logger.Debug("using cache",
				"address", p.address,
				"age", age.String(),
				"cache_timeout", p.cacheTimeout.String(),
			)
			return nil
		}
	}
	return p.fillCache(ctx)
}

// cacheAge returns the time since the last read and whether it is within
// the cache timeout. A poller that never read is never fresh.
func (p *Poller) cacheAge() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastRead.IsZero() {
		return 0, false
	}
	age := p.now().Sub(p.lastRead)
	return age, age < p.cacheTimeout
}

// fillCache refreshes firmware information and waits for one sensor data
// notification. Only a firmware failure is returned; every other failure
// shortens the retry window and is logged.
func (p *Poller) fillCache(ctx context.Context) error {
	p.logger.Debug("filling cache with new sensor data", "address", p.address)

	if _, err := p.FirmwareVersion(ctx); err != nil {
		p.scheduleRetry()
		return err
	}

	if err := p.waitForReading(ctx); err != nil {
		p.scheduleRetry()
		p.logger.Warn("sensor refresh failed",
			"address", p.address,
			"retry_in", retryDelay.String(),
			"error", err.Error(),
		)
	}
	return nil
}

// waitForReading opens a session, subscribes to sensor data and handles
// the first notification.
func (p *Poller) waitForReading(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer p.closeConn(conn)

	notifications, err := conn.Subscribe(HandleSensorData)
	if err != nil {
		return fmt.Errorf("%w: subscribe to handle 0x%04x: %w", ErrConnection, HandleSensorData, err)
	}

	timer := time.NewTimer(p.bleTimeout)
	defer timer.Stop()

	select {
	case raw, ok := <-notifications:
		if !ok {
			return fmt.Errorf("%w: notification channel closed", ErrConnection)
		}
		return p.handleNotification(HandleSensorData, raw)
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrTimeout, p.bleTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleNotification stores a sensor data payload as the new cache entry
// and validates it. An invalid payload wipes the cache; the returned error
// describes why.
func (p *Poller) handleNotification(handle uint16, raw []byte) error {
	p.logger.Debug("received notification",
		"address", p.address,
		"handle", fmt.Sprintf("0x%04x", handle),
		"data", formatBytes(raw),
	)
	if raw == nil {
		return fmt.Errorf("%w: empty notification", ErrDecode)
	}

	data := strings.Trim(string(raw), " \n\t")
	r, err := decodeText(data)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.clearCacheLocked()
		p.lastRead = p.retryAt()
		return err
	}

	p.logger.Debug("received new data from sensor",
		"address", p.address,
		"temperature", r.Temperature,
		"humidity", r.Humidity,
	)
	p.cache = &data
	p.lastRead = p.now()
	return nil
}

// cachedReading decodes the cached payload. A payload that no longer
// validates is dropped.
func (p *Poller) cachedReading() (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache == nil {
		return Reading{}, false
	}
	r, err := decodeText(*p.cache)
	if err != nil {
		p.clearCacheLocked()
		return Reading{}, false
	}
	r.At = p.lastRead
	return r, true
}

// refreshFirmwareLocked re-reads firmware and battery when none was read
// yet or the last read is older than 24 hours. Caller must hold fwMu.
func (p *Poller) refreshFirmwareLocked(ctx context.Context) error {
	now := p.now()

	// first use always reads; the timestamp is only meaningful afterwards
	if p.firmware != nil && !now.Add(-firmwareRefreshInterval).After(p.fwLastRead) {
		return nil
	}
	// stamped before connecting so a failing sensor is not hammered
	p.fwLastRead = now

	fw, bat, err := p.readFirmware(ctx)
	if err != nil {
		return err
	}

	if len(fw) == 0 {
		p.firmware = nil
	} else {
		v := strings.TrimRight(string(fw), "\x00")
		p.firmware = &v
	}

	if len(bat) == 0 {
		p.battery = 0
	} else {
		p.battery = min(int(bat[0]), 100)
	}
	return nil
}

// readFirmware reads the firmware version and battery attributes in one session.
func (p *Poller) readFirmware(ctx context.Context) (fw, bat []byte, err error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer p.closeConn(conn)

	fw, err = conn.ReadHandle(HandleFirmwareVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read firmware version from %s: %w", ErrConnection, p.address, err)
	}
	p.logger.Debug("received result for handle",
		"handle", fmt.Sprintf("0x%04x", HandleFirmwareVersion),
		"data", formatBytes(fw),
	)

	bat, err = conn.ReadHandle(HandleBattery)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read battery level from %s: %w", ErrConnection, p.address, err)
	}
	p.logger.Debug("received result for handle",
		"handle", fmt.Sprintf("0x%04x", HandleBattery),
		"data", formatBytes(bat),
	)

	return fw, bat, nil
}

// connect opens a session, wrapping failures in [ErrConnection].
func (p *Poller) connect(ctx context.Context) (Conn, error) {
	conn, err := p.connector.Connect(ctx, p.address)
	if err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrConnection, p.address, err)
	}
	return conn, nil
}

// closeConn disconnects a session, logging failures.
func (p *Poller) closeConn(conn Conn) {
	if err := conn.Close(); err != nil {
		p.logger.Debug("disconnect failed", "address", p.address, "error", err.Error())
	}
}

// scheduleRetry makes the cache go stale retryDelay from now.
func (p *Poller) scheduleRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRead = p.retryAt()
}

// retryAt returns the last-read timestamp that expires retryDelay from now.
func (p *Poller) retryAt() time.Time {
	return p.now().Add(-p.cacheTimeout + retryDelay)
}

func (p *Poller) clearCacheLocked() {
	p.cache = nil
	p.lastRead = time.Time{}
}
