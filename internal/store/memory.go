package store

import (
	"sync"
)

const (
	// DefaultHistorySize keeps a day of readings at the default 5 minute
	// poll interval.
	DefaultHistorySize = 288

	subscriberBuffer = 100
)

// MemoryStore is an in-memory implementation of [Store].
//
// History is a fixed-size ring: once full, each update evicts the oldest
// reading. Subscribers receive updates via buffered channels (buffer size
// 100); if a subscriber's buffer is full, the update is dropped for that
// subscriber.
type MemoryStore struct {
	mu      sync.RWMutex
	history []Reading
	next    int
	full    bool

	subscribers map[chan Reading]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a [MemoryStore] holding up to size readings.
// A size below 1 uses [DefaultHistorySize].
func NewMemoryStore(size int) *MemoryStore {
	if size < 1 {
		size = DefaultHistorySize
	}
	return &MemoryStore{
		history:     make([]Reading, size),
		subscribers: make(map[chan Reading]struct{}),
	}
}

// Update records a [Reading] and notifies all subscribers.
func (m *MemoryStore) Update(r Reading) {
	m.mu.Lock()
	m.history[m.next] = r
	m.next = (m.next + 1) % len(m.history)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	m.notifySubscribers(r)
}

// Latest returns the most recent reading. The second result is false if
// nothing was recorded yet.
func (m *MemoryStore) Latest() (Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.next == 0 && !m.full {
		return Reading{}, false
	}
	i := m.next - 1
	if i < 0 {
		i = len(m.history) - 1
	}
	return m.history[i], true
}

// History returns a snapshot of recorded readings, oldest first.
func (m *MemoryStore) History() []Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.full {
		out := make([]Reading, m.next)
		copy(out, m.history[:m.next])
		return out
	}

	out := make([]Reading, 0, len(m.history))
	out = append(out, m.history[m.next:]...)
	out = append(out, m.history[:m.next]...)
	return out
}

// Subscribe creates a new subscription and returns a channel for receiving
// readings.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Reading {
	ch := make(chan Reading, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Reading) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the reading to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(r Reading) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- r:
		default:
			// subscriber is slow, drop the message
		}
	}
}
