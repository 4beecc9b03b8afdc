package gatt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLink struct {
	mu      sync.Mutex
	values  map[uint16][]byte
	readErr error
	subErr  error
	notify  map[uint16]func([]byte)
	closed  int
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		values: make(map[uint16][]byte),
		notify: make(map[uint16]func([]byte)),
	}
}

func (l *fakeLink) read(handle uint16) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.values[handle], nil
}

func (l *fakeLink) subscribe(handle uint16, fn func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subErr != nil {
		return l.subErr
	}
	l.notify[handle] = fn
	return nil
}

func (l *fakeLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

// push simulates the device sending a notification.
func (l *fakeLink) push(handle uint16, data []byte) {
	l.mu.Lock()
	fn := l.notify[handle]
	l.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

type fakeDriver struct {
	link    *fakeLink
	dialErr error
	dials   int
	stops   int
	lastCtx context.Context
}

func (d *fakeDriver) dial(ctx context.Context, addr string) (link, error) {
	d.dials++
	d.lastCtx = ctx
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.link, nil
}

func (d *fakeDriver) stop() error {
	d.stops++
	return nil
}

func newTestConnector(t *testing.T, drv *fakeDriver) (*Connector, *int) {
	t.Helper()
	c, err := NewConnector(Config{Backend: BackendGoBLE, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewConnector() error = %v", err)
	}
	opens := 0
	c.newDriver = func(Backend, Config) (driver, error) {
		opens++
		return drv, nil
	}
	return c, &opens
}

func TestNewConnector(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		c, err := NewConnector(Config{Backend: BackendTinyGo})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.cfg.Adapter != defaultAdapter {
			t.Errorf("Adapter = %q, want %q", c.cfg.Adapter, defaultAdapter)
		}
		if c.cfg.DialTimeout != defaultDialTimeout {
			t.Errorf("DialTimeout = %v, want %v", c.cfg.DialTimeout, defaultDialTimeout)
		}
		if c.cfg.Logger == nil {
			t.Error("Logger should default to slog.Default()")
		}
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		if _, err := NewConnector(Config{Backend: "bluez"}); err == nil {
			t.Error("expected error for unknown backend")
		}
	})

	t.Run("rejects empty backend", func(t *testing.T) {
		if _, err := NewConnector(Config{}); err == nil {
			t.Error("expected error for empty backend")
		}
	})
}

func TestConnector_OpensAdapterLazily(t *testing.T) {
	drv := &fakeDriver{link: newFakeLink()}
	c, opens := newTestConnector(t, drv)

	if *opens != 0 {
		t.Fatalf("adapter opened before Connect")
	}

	for i := 0; i < 3; i++ {
		s, err := c.Connect(context.Background(), "4C:65:A8:D0:12:34")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		_ = s.Close()
	}

	if *opens != 1 {
		t.Errorf("adapter opened %d times, want 1", *opens)
	}
	if drv.dials != 3 {
		t.Errorf("dials = %d, want 3", drv.dials)
	}
}

func TestConnector_DialTimeout(t *testing.T) {
	drv := &fakeDriver{link: newFakeLink()}
	c, _ := newTestConnector(t, drv)
	c.cfg.DialTimeout = 50 * time.Millisecond

	s, err := c.Connect(context.Background(), "4C:65:A8:D0:12:34")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	deadline, ok := drv.lastCtx.Deadline()
	if !ok {
		t.Fatal("dial context has no deadline")
	}
	if time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("dial deadline too far out: %v", time.Until(deadline))
	}
}

func TestConnector_DialError(t *testing.T) {
	dialErr := errors.New("no route to device")
	drv := &fakeDriver{dialErr: dialErr}
	c, _ := newTestConnector(t, drv)

	_, err := c.Connect(context.Background(), "4C:65:A8:D0:12:34")
	if !errors.Is(err, dialErr) {
		t.Errorf("Connect() error = %v, want wrapping %v", err, dialErr)
	}
}

func TestConnector_OpenError(t *testing.T) {
	c, err := NewConnector(Config{Backend: BackendGoBLE, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewConnector() error = %v", err)
	}
	openErr := errors.New("permission denied")
	c.newDriver = func(Backend, Config) (driver, error) {
		return nil, openErr
	}

	if _, err := c.Connect(context.Background(), "4C:65:A8:D0:12:34"); !errors.Is(err, openErr) {
		t.Errorf("Connect() error = %v, want wrapping %v", err, openErr)
	}
}

func TestConnector_Close(t *testing.T) {
	drv := &fakeDriver{link: newFakeLink()}
	c, opens := newTestConnector(t, drv)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() before Connect error = %v", err)
	}
	if drv.stops != 0 {
		t.Errorf("stop called on unopened adapter")
	}

	s, err := c.Connect(context.Background(), "4C:65:A8:D0:12:34")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = s.Close()

	_ = c.Close()
	_ = c.Close()
	if drv.stops != 1 {
		t.Errorf("stops = %d, want 1", drv.stops)
	}

	// reopens after Close
	s, err = c.Connect(context.Background(), "4C:65:A8:D0:12:34")
	if err != nil {
		t.Fatalf("Connect() after Close error = %v", err)
	}
	_ = s.Close()
	if *opens != 2 {
		t.Errorf("opens = %d, want 2", *opens)
	}
}

func TestSession_ReadHandle(t *testing.T) {
	l := newFakeLink()
	l.values[0x0024] = []byte("1.0.0_0106")
	s := newSession(l, testLogger())

	got, err := s.ReadHandle(0x0024)
	if err != nil {
		t.Fatalf("ReadHandle() error = %v", err)
	}
	if string(got) != "1.0.0_0106" {
		t.Errorf("ReadHandle() = %q, want %q", got, "1.0.0_0106")
	}

	l.readErr = errors.New("att error")
	if _, err := s.ReadHandle(0x0024); !errors.Is(err, l.readErr) {
		t.Errorf("ReadHandle() error = %v, want wrapping %v", err, l.readErr)
	}
}

func TestSession_SubscribeDelivers(t *testing.T) {
	l := newFakeLink()
	s := newSession(l, testLogger())
	defer s.Close()

	ch, err := s.Subscribe(0x0010)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	buf := []byte("T=25.6 H=23.6")
	l.push(0x0010, buf)
	// backend reuses its buffer
	copy(buf, "XXXXXXXXXXXXX")

	select {
	case got := <-ch:
		if string(got) != "T=25.6 H=23.6" {
			t.Errorf("payload = %q, want %q", got, "T=25.6 H=23.6")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestSession_DropsWhenFull(t *testing.T) {
	l := newFakeLink()
	s := newSession(l, testLogger())
	defer s.Close()

	ch, err := s.Subscribe(0x0010)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < notificationBuffer*3; i++ {
			l.push(0x0010, []byte("T=20.0 H=50.0"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a full subscription")
	}

	if len(ch) != notificationBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), notificationBuffer)
	}
}

func TestSession_SubscribeError(t *testing.T) {
	l := newFakeLink()
	l.subErr = errors.New("cccd write failed")
	s := newSession(l, testLogger())
	defer s.Close()

	if _, err := s.Subscribe(0x0010); !errors.Is(err, l.subErr) {
		t.Errorf("Subscribe() error = %v, want wrapping %v", err, l.subErr)
	}
}

func TestSession_Close(t *testing.T) {
	l := newFakeLink()
	s := newSession(l, testLogger())

	ch, err := s.Subscribe(0x0010)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if l.closed != 1 {
		t.Errorf("link closed %d times, want 1", l.closed)
	}

	if _, ok := <-ch; ok {
		t.Error("subscription channel still open after Close")
	}

	// late notifications are ignored
	l.push(0x0010, []byte("T=20.0 H=50.0"))

	if _, err := s.ReadHandle(0x0003); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadHandle() after Close error = %v, want %v", err, ErrClosed)
	}
	if _, err := s.Subscribe(0x0010); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestBackend_Valid(t *testing.T) {
	tests := []struct {
		backend Backend
		want    bool
	}{
		{BackendGoBLE, true},
		{BackendTinyGo, true},
		{"", false},
		{"rigado", false},
	}
	for _, tt := range tests {
		if got := tt.backend.Valid(); got != tt.want {
			t.Errorf("Backend(%q).Valid() = %v, want %v", tt.backend, got, tt.want)
		}
	}
}
