package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minInterval floors the tick interval to keep a misconfigured poller from
// saturating the radio.
const minInterval = time.Second

// Sample is the data gathered by one poll.
type Sample struct {
	// Temperature is in degrees Celsius. Only meaningful if HasReading is set.
	Temperature float64

	// Humidity is the relative humidity in percent. Only meaningful if
	// HasReading is set.
	Humidity float64

	// HasReading reports whether temperature and humidity were available.
	HasReading bool

	// ReadAt is when the reading was received from the sensor. It lags
	// CheckedAt when the reading was served from cache.
	ReadAt time.Time

	// Battery is the battery level in percent.
	Battery int

	// Firmware is the sensor's firmware version.
	Firmware string
}

// PollFunc queries the sensor once. A PollFunc may return a partial sample
// together with an error.
type PollFunc func(ctx context.Context) (Sample, error)

// Result holds the outcome of one poll.
type Result struct {
	Sample

	// Address identifies the polled sensor.
	Address string

	// Latency is the time the poll took.
	Latency time.Duration

	// CheckedAt is when the poll completed.
	CheckedAt time.Time

	// Error is any error the poll reported.
	Error error
}

// Scheduler runs a [PollFunc] at a fixed interval.
//
// Polls never overlap: the next tick is only considered once the previous
// poll has been delivered. All lifecycle methods are safe for concurrent use.
type Scheduler struct {
	address  string
	poll     PollFunc
	interval time.Duration
	results  chan Result
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a [Scheduler] that polls the sensor at address.
//
// Intervals below one second are raised to one second. The scheduler must
// be started with [Scheduler.Start] and stopped with [Scheduler.Stop].
func NewScheduler(address string, poll PollFunc, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		address:  address,
		poll:     poll,
		interval: interval,
		results:  make(chan Result, 1),
		logger:   logger,
	}
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Results returns the channel poll results are emitted on.
//
// The channel is closed when the scheduler stops. Consumers should read
// until it is closed.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Start begins polling in a background goroutine.
//
// The sensor is polled immediately, then once per interval until
// [Scheduler.Stop] is called or ctx is cancelled. If ctx is nil,
// context.Background() is used. Start is idempotent; if Stop was called
// first, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		if !s.pollOnce(pollCtx) {
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				if !s.pollOnce(pollCtx) {
					return
				}
			}
		}
	}()
}

// Stop halts the scheduler and waits for the in-flight poll to finish.
//
// Stop is idempotent. Calling Stop before Start is a safe no-op that still
// closes the results channel.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// pollOnce runs one poll and delivers its result. It returns false if the
// context was cancelled before delivery.
func (s *Scheduler) pollOnce(ctx context.Context) bool {
	start := time.Now()
	sample, err := s.safePoll(ctx)

	result := Result{
		Sample:    sample,
		Address:   s.address,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
		Error:     err,
	}

	select {
	case s.results <- result:
		return true
	case <-ctx.Done():
		return false
	}
}

// safePoll calls the poll function with panic recovery.
// A panic is logged with its stack trace under a correlation ID, and the
// returned error carries the same ID.
func (s *Scheduler) safePoll(ctx context.Context) (sample Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			s.logger.Error("poll panic",
				"correlation_id", correlationID,
				"address", s.address,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			sample = Sample{}
			err = fmt.Errorf("poll panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.poll(ctx)
}
