package watch

import (
	"sync"
	"testing"
	"time"
)

// stubMonitor records Watch/Cancel calls and lets tests fire events.
type stubMonitor struct {
	mu      sync.Mutex
	next    Handle
	fns     map[Handle]func(Reason)
	cancels []Handle
	closed  bool
}

func newStubMonitor() *stubMonitor {
	return &stubMonitor{fns: make(map[Handle]func(Reason))}
}

func (m *stubMonitor) Watch(paths []string, fn func(Reason)) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.fns[m.next] = fn
	return m.next, nil
}

func (m *stubMonitor) Cancel(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fns, h)
	m.cancels = append(m.cancels, h)
	return nil
}

func (m *stubMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *stubMonitor) fire(h Handle, r Reason) bool {
	m.mu.Lock()
	fn := m.fns[h]
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(r)
	return true
}

func (m *stubMonitor) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func collect() (Callback[string], func() []Reason) {
	var mu sync.Mutex
	var got []Reason
	cb := func(_ string, _ string, reason Reason) {
		mu.Lock()
		got = append(got, reason)
		mu.Unlock()
	}
	return cb, func() []Reason {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Reason, len(got))
		copy(out, got)
		return out
	}
}

func waitLen(t *testing.T, want int, got func() []Reason) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(got()) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out: delivered %d events, want %d", len(got()), want)
}

func TestRegisterRejectsEmptyPathSet(t *testing.T) {
	r := NewRegistry[string](newStubMonitor())
	if err := r.Register(nil, "k", "v", func(string, string, Reason) {}); err != ErrEmptyWatchSet {
		t.Fatalf("err = %v, want ErrEmptyWatchSet", err)
	}
}

func TestRegisterDeliversAsync(t *testing.T) {
	mon := newStubMonitor()
	r := NewRegistry[string](mon)
	cb, got := collect()

	if err := r.Register([]string{"/a"}, "k", "v", cb); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !mon.fire(1, Changed) {
		t.Fatalf("no monitor registration")
	}
	waitLen(t, 1, got)
	if got()[0] != Changed {
		t.Fatalf("reason = %v, want Changed", got()[0])
	}
}

// TestRegisterReplacesPriorRegistration: a second Register under the same
// key must cancel the first monitor watch and route events to the new
// callback only.
func TestRegisterReplacesPriorRegistration(t *testing.T) {
	mon := newStubMonitor()
	r := NewRegistry[string](mon)
	cbOld, gotOld := collect()
	cbNew, gotNew := collect()

	if err := r.Register([]string{"/a"}, "k", "old", cbOld); err != nil {
		t.Fatalf("Register old: %v", err)
	}
	if err := r.Register([]string{"/a"}, "k", "new", cbNew); err != nil {
		t.Fatalf("Register new: %v", err)
	}

	if mon.live() != 1 {
		t.Fatalf("live monitor watches = %d, want 1", mon.live())
	}
	if r.Len() != 1 {
		t.Fatalf("registrations = %d, want 1", r.Len())
	}

	mon.fire(2, Changed)
	waitLen(t, 1, gotNew)
	if len(gotOld()) != 0 {
		t.Fatalf("old callback still receiving events")
	}
}

// TestReregisterFromCallback re-registers the same key from inside its own
// callback (the coordinator's cheap path) and must not deadlock or drop
// delivery.
func TestReregisterFromCallback(t *testing.T) {
	mon := newStubMonitor()
	r := NewRegistry[string](mon)

	delivered := make(chan Reason, 4)
	var cb Callback[string]
	cb = func(key string, v string, reason Reason) {
		delivered <- reason
		if reason == Evicted {
			if err := r.Register([]string{"/a"}, key, v, cb); err != nil {
				t.Errorf("re-register: %v", err)
			}
		}
	}
	if err := r.Register([]string{"/a"}, "k", "v", cb); err != nil {
		t.Fatalf("Register: %v", err)
	}

	mon.fire(1, Evicted)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatalf("eviction not delivered")
	}

	// the replacement registration receives subsequent events
	deadline := time.Now().Add(time.Second)
	for mon.live() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	mon.fire(2, Changed)
	select {
	case reason := <-delivered:
		if reason != Changed {
			t.Fatalf("reason = %v, want Changed", reason)
		}
	case <-time.After(time.Second):
		t.Fatalf("event after re-register not delivered")
	}
}

func TestUnregisterIdempotentAndStopsDelivery(t *testing.T) {
	mon := newStubMonitor()
	r := NewRegistry[string](mon)
	cb, got := collect()

	if err := r.Register([]string{"/a"}, "k", "v", cb); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Unregister("k")
	r.Unregister("k")

	if mon.live() != 0 {
		t.Fatalf("monitor watch survived Unregister")
	}
	time.Sleep(10 * time.Millisecond)
	if len(got()) != 0 {
		t.Fatalf("events delivered after Unregister")
	}
}

func TestCloseCancelsAllAndClosesMonitor(t *testing.T) {
	mon := newStubMonitor()
	r := NewRegistry[string](mon)
	cb, _ := collect()

	_ = r.Register([]string{"/a"}, "k1", "v", cb)
	_ = r.Register([]string{"/b"}, "k2", "v", cb)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mon.live() != 0 || !mon.closed {
		t.Fatalf("Close left monitor running")
	}
	if err := r.Register([]string{"/c"}, "k3", "v", cb); err != ErrClosed {
		t.Fatalf("Register after Close: err = %v, want ErrClosed", err)
	}
}
