package store

import (
	"sync"
	"testing"
	"time"
)

func reading(temp float64) Reading {
	return Reading{
		Address:     "4C:65:A8:D0:12:34",
		Temperature: &temp,
		Battery:     80,
		CheckedAt:   time.Now(),
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.History()) != 0 {
		t.Errorf("History() = %v items, want 0", len(store.History()))
	}
	if _, ok := store.Latest(); ok {
		t.Error("Latest() reported a reading on an empty store")
	}
	if len(store.history) != DefaultHistorySize {
		t.Errorf("capacity = %d, want %d", len(store.history), DefaultHistorySize)
	}
}

func TestMemoryStore_Latest(t *testing.T) {
	store := NewMemoryStore(3)

	store.Update(reading(20.0))
	store.Update(reading(21.0))

	got, ok := store.Latest()
	if !ok {
		t.Fatal("Latest() ok = false")
	}
	if *got.Temperature != 21.0 {
		t.Errorf("Latest().Temperature = %v, want 21.0", *got.Temperature)
	}
}

func TestMemoryStore_HistoryWraps(t *testing.T) {
	store := NewMemoryStore(3)

	for i := 0; i < 5; i++ {
		store.Update(reading(float64(i)))
	}

	h := store.History()
	if len(h) != 3 {
		t.Fatalf("History() = %v items, want 3", len(h))
	}
	for i, want := range []float64{2, 3, 4} {
		if *h[i].Temperature != want {
			t.Errorf("History()[%d].Temperature = %v, want %v", i, *h[i].Temperature, want)
		}
	}

	latest, _ := store.Latest()
	if *latest.Temperature != 4 {
		t.Errorf("Latest().Temperature = %v, want 4", *latest.Temperature)
	}
}

func TestMemoryStore_LatestAtRingBoundary(t *testing.T) {
	store := NewMemoryStore(2)

	store.Update(reading(1))
	store.Update(reading(2))

	latest, ok := store.Latest()
	if !ok || *latest.Temperature != 2 {
		t.Errorf("Latest() = %v, %v; want temperature 2", latest, ok)
	}
}

func TestMemoryStore_HistoryIsSnapshot(t *testing.T) {
	store := NewMemoryStore(3)
	store.Update(reading(1))

	h := store.History()
	h[0].Battery = 0

	if got, _ := store.Latest(); got.Battery != 80 {
		t.Errorf("store mutated through History(): Battery = %d", got.Battery)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore(0)

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Update(reading(22.5))
	}()

	select {
	case r := <-ch:
		if *r.Temperature != 22.5 {
			t.Errorf("received Temperature = %v, want %v", *r.Temperature, 22.5)
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore(0)

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	go func() {
		store.Update(reading(20))
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore(0)

	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore(0)

	// never read
	_ = store.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			store.Update(reading(20))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(16)

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Update(reading(float64(j)))
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.History()
				_, _ = store.Latest()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	if len(store.History()) != 16 {
		t.Errorf("History() = %d items, want 16", len(store.History()))
	}
}
