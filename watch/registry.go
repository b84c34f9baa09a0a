package watch

import (
	"sync"
)

// Callback receives events for a registration. Invoked from the
// registration's dispatch goroutine, never on the Register caller's stack.
type Callback[V any] func(key string, value V, reason Reason)

// Registry maps cache keys to live monitor registrations. At most one
// registration exists per key; Register under an existing key tears the
// prior one down first. V is the caller's per-key payload (the coordinator
// passes its cache entry).
type Registry[V any] struct {
	mon Monitor

	mu     sync.Mutex
	regs   map[string]*registration
	closed bool
}

type registration struct {
	handle Handle
	done   chan struct{}
	once   sync.Once
}

func (g *registration) stop(mon Monitor) {
	g.once.Do(func() {
		close(g.done)
		_ = mon.Cancel(g.handle)
	})
}

func NewRegistry[V any](mon Monitor) *Registry[V] {
	return &Registry[V]{
		mon:  mon,
		regs: make(map[string]*registration),
	}
}

// Register watches paths under key and delivers (key, value, reason) to cb
// asynchronously. Events arriving while cb runs are queued; a burst beyond
// the queue is coalesced, which is safe because a rebuild always reads
// current contents.
func (r *Registry[V]) Register(paths []string, key string, value V, cb Callback[V]) error {
	if len(paths) == 0 {
		return ErrEmptyWatchSet
	}

	events := make(chan Reason, 8)
	h, err := r.mon.Watch(paths, func(reason Reason) {
		select {
		case events <- reason:
		default: // coalesce burst
		}
	})
	if err != nil {
		return err
	}

	reg := &registration{handle: h, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = r.mon.Cancel(h)
		return ErrClosed
	}
	prev := r.regs[key]
	r.regs[key] = reg
	r.mu.Unlock()

	// Tear down the prior registration after the new one is in place so the
	// key is never left unwatched. stop does not join the old dispatcher;
	// re-registering from inside a callback must not deadlock.
	if prev != nil {
		prev.stop(r.mon)
	}

	go func() {
		for {
			select {
			case <-reg.done:
				return
			case reason := <-events:
				cb(key, value, reason)
			}
		}
	}()
	return nil
}

// Unregister tears down the registration for key. Idempotent.
func (r *Registry[V]) Unregister(key string) {
	r.mu.Lock()
	reg := r.regs[key]
	delete(r.regs, key)
	r.mu.Unlock()
	if reg != nil {
		reg.stop(r.mon)
	}
}

// Len returns the number of live registrations.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// Close tears down every registration and closes the underlying monitor.
func (r *Registry[V]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	regs := r.regs
	r.regs = make(map[string]*registration)
	r.mu.Unlock()

	for _, reg := range regs {
		reg.stop(r.mon)
	}
	return r.mon.Close()
}
