package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testAddress = "4C:65:A8:D0:12:34"

func okPoll(ctx context.Context) (Sample, error) {
	return Sample{Temperature: 21.5, Humidity: 40.2, HasReading: true, Battery: 90}, nil
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and closes the results channel.
func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler(testAddress, okPoll, time.Minute, testLogger())

	s.Stop()

	if _, ok := <-s.Results(); ok {
		t.Error("expected results channel to be closed after Stop()")
	}
}

// TestScheduler_StopTwice verifies that Stop() is idempotent.
func TestScheduler_StopTwice(t *testing.T) {
	s := NewScheduler(testAddress, okPoll, time.Minute, testLogger())
	s.Start(context.Background())

	s.Stop()
	s.Stop()
}

// TestScheduler_PollsImmediately verifies the first poll runs on Start
// without waiting for a tick.
func TestScheduler_PollsImmediately(t *testing.T) {
	s := NewScheduler(testAddress, okPoll, time.Hour, testLogger())
	s.Start(context.Background())
	defer s.Stop()

	select {
	case r := <-s.Results():
		if r.Address != testAddress {
			t.Errorf("Address = %q, want %q", r.Address, testAddress)
		}
		if !r.HasReading || r.Temperature != 21.5 || r.Humidity != 40.2 {
			t.Errorf("Sample = %+v, want T=21.5 H=40.2", r.Sample)
		}
		if r.Battery != 90 {
			t.Errorf("Battery = %d, want 90", r.Battery)
		}
		if r.Error != nil {
			t.Errorf("Error = %v, want nil", r.Error)
		}
		if r.CheckedAt.IsZero() {
			t.Error("CheckedAt not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first poll")
	}
}

// TestScheduler_PollsOnInterval verifies subsequent polls follow the ticker.
func TestScheduler_PollsOnInterval(t *testing.T) {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Sample, error) {
		calls.Add(1)
		return Sample{}, nil
	}

	s := NewScheduler(testAddress, poll, time.Minute, testLogger())
	s.interval = 20 * time.Millisecond
	s.Start(context.Background())

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 3 {
		select {
		case <-s.Results():
			received++
		case <-timeout:
			t.Fatalf("received %d results, want 3", received)
		}
	}
	s.Stop()

	if calls.Load() < 3 {
		t.Errorf("poll called %d times, want at least 3", calls.Load())
	}
}

// TestScheduler_IntervalFloor verifies sub-second intervals are raised.
func TestScheduler_IntervalFloor(t *testing.T) {
	s := NewScheduler(testAddress, okPoll, 10*time.Millisecond, testLogger())
	if s.Interval() != time.Second {
		t.Errorf("Interval() = %v, want %v", s.Interval(), time.Second)
	}
}

// TestScheduler_ErrorDelivered verifies poll errors are reported alongside
// any partial sample.
func TestScheduler_ErrorDelivered(t *testing.T) {
	pollErr := errors.New("sensor data unavailable")
	poll := func(ctx context.Context) (Sample, error) {
		return Sample{Battery: 55}, pollErr
	}

	s := NewScheduler(testAddress, poll, time.Hour, testLogger())
	s.Start(context.Background())
	defer s.Stop()

	r := <-s.Results()
	if !errors.Is(r.Error, pollErr) {
		t.Errorf("Error = %v, want %v", r.Error, pollErr)
	}
	if r.Battery != 55 {
		t.Errorf("Battery = %d, want 55", r.Battery)
	}
}

// TestScheduler_PanicRecovery verifies that a panicking poll does not crash
// the scheduler and is reported with a correlation ID.
func TestScheduler_PanicRecovery(t *testing.T) {
	poll := func(ctx context.Context) (Sample, error) {
		panic("driver exploded")
	}

	s := NewScheduler(testAddress, poll, time.Hour, testLogger())
	s.Start(context.Background())

	var r Result
	select {
	case r = <-s.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for poll result")
	}
	s.Stop()

	if r.Error == nil {
		t.Fatal("expected error from panicking poll")
	}
	if !strings.Contains(r.Error.Error(), "correlation_id") {
		t.Errorf("error %q should contain correlation_id", r.Error.Error())
	}
	if strings.Contains(r.Error.Error(), "driver exploded") {
		t.Errorf("error %q should not leak panic details", r.Error.Error())
	}
	if r.HasReading {
		t.Error("HasReading should be false after a panic")
	}
}

// TestScheduler_ContextCancellation verifies that cancelling the parent
// context stops the scheduler.
func TestScheduler_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(testAddress, okPoll, time.Minute, testLogger())
	s.Start(ctx)

	go func() {
		for range s.Results() {
		}
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete after parent context cancellation")
	}
}

// TestScheduler_StopWithUnreadResult verifies Stop does not block when no
// one is consuming results.
func TestScheduler_StopWithUnreadResult(t *testing.T) {
	s := NewScheduler(testAddress, okPoll, time.Minute, testLogger())
	s.interval = 5 * time.Millisecond
	s.Start(context.Background())

	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on an unconsumed result")
	}
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not race or panic.
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewScheduler(testAddress, okPoll, time.Minute, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
		wg.Wait()

		s.Stop()
		for range s.Results() {
		}
	}
}

// TestScheduler_StartAfterStop verifies Start is a no-op once stopped.
func TestScheduler_StartAfterStop(t *testing.T) {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Sample, error) {
		calls.Add(1)
		return Sample{}, nil
	}

	s := NewScheduler(testAddress, poll, time.Minute, testLogger())
	s.Stop()
	s.Start(context.Background())
	s.Stop()

	if calls.Load() != 0 {
		t.Errorf("poll called %d times after Stop, want 0", calls.Load())
	}
}
