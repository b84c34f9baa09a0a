package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSOptions tune the fsnotify-backed monitor. Zero values take defaults.
type FSOptions struct {
	// Debounce collapses editor write bursts (save-then-rename etc.) into
	// one Changed event per watch. 0 => 100ms.
	Debounce time.Duration

	// MaxWatches caps live registrations. When a new Watch would exceed the
	// cap, the oldest registration is dropped and fired with Evicted so its
	// owner can re-register. 0 => unlimited.
	MaxWatches int

	// TTL drops registrations after a fixed lifetime, firing Expired.
	// 0 => registrations never expire.
	TTL time.Duration

	// OnError receives fsnotify stream errors. Nil => errors are dropped
	// (watching continues either way).
	OnError func(error)
}

// FSMonitor implements Monitor over fsnotify. Parent directories are watched
// rather than the files themselves: editors commonly replace files via
// rename+create, which would silently kill a direct file watch. Events are
// matched back to registered file paths by name.
type FSMonitor struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	maxW     int
	ttl      time.Duration
	onError  func(error)

	mu      sync.Mutex
	next    Handle
	watches map[Handle]*fsWatch
	order   []Handle                    // registration order, for eviction
	byPath  map[string]map[Handle]bool  // cleaned path -> subscribers
	dirRefs map[string]int              // watched dir -> subscriber count
	closed  bool

	wg sync.WaitGroup
}

type fsWatch struct {
	fn     func(Reason)
	paths  []string
	timer  *time.Timer // debounce; nil when idle
	expire *time.Timer // TTL; nil when disabled
}

var _ Monitor = (*FSMonitor)(nil)

func NewFSMonitor(opts FSOptions) (*FSMonitor, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}
	m := &FSMonitor{
		fsw:      fsw,
		debounce: opts.Debounce,
		maxW:     opts.MaxWatches,
		ttl:      opts.TTL,
		onError:  opts.OnError,
		watches:  make(map[Handle]*fsWatch),
		byPath:   make(map[string]map[Handle]bool),
		dirRefs:  make(map[string]int),
	}
	if m.debounce == 0 {
		m.debounce = 100 * time.Millisecond
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *FSMonitor) Watch(paths []string, fn func(Reason)) (Handle, error) {
	if len(paths) == 0 {
		return 0, ErrEmptyWatchSet
	}
	cleaned := make([]string, len(paths))
	for i, p := range paths {
		cleaned[i] = filepath.Clean(p)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}

	// Make room under the cap before registering. The evicted owner is
	// notified off this stack and re-registers through its own path.
	var evicted *fsWatch
	if m.maxW > 0 && len(m.watches) >= m.maxW && len(m.order) > 0 {
		evicted = m.dropLocked(m.order[0])
	}

	m.next++
	h := m.next
	w := &fsWatch{fn: fn, paths: cleaned}

	for _, p := range cleaned {
		if err := m.subscribeLocked(p, h); err != nil {
			m.unsubscribeAllLocked(h, w)
			m.mu.Unlock()
			return 0, err
		}
	}
	m.watches[h] = w
	m.order = append(m.order, h)
	if m.ttl > 0 {
		w.expire = time.AfterFunc(m.ttl, func() { m.expireWatch(h) })
	}
	m.mu.Unlock()

	if evicted != nil {
		go evicted.fn(Evicted)
	}
	return h, nil
}

func (m *FSMonitor) Cancel(h Handle) error {
	m.mu.Lock()
	m.dropLocked(h)
	m.mu.Unlock()
	return nil
}

func (m *FSMonitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for h := range m.watches {
		m.dropLocked(h)
	}
	m.mu.Unlock()

	err := m.fsw.Close() // unblocks loop
	m.wg.Wait()
	return err
}

// Len returns the number of live registrations.
func (m *FSMonitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

func (m *FSMonitor) expireWatch(h Handle) {
	m.mu.Lock()
	w := m.dropLocked(h)
	m.mu.Unlock()
	if w != nil {
		w.fn(Expired) // AfterFunc goroutine, already off any caller stack
	}
}

// dropLocked removes a registration and returns it (nil if unknown).
// Caller holds m.mu and decides whether/what to fire.
func (m *FSMonitor) dropLocked(h Handle) *fsWatch {
	w, ok := m.watches[h]
	if !ok {
		return nil
	}
	delete(m.watches, h)
	for i, oh := range m.order {
		if oh == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.expire != nil {
		w.expire.Stop()
		w.expire = nil
	}
	m.unsubscribeAllLocked(h, w)
	return w
}

func (m *FSMonitor) subscribeLocked(path string, h Handle) error {
	subs := m.byPath[path]
	if subs == nil {
		subs = make(map[Handle]bool)
		m.byPath[path] = subs
	}
	subs[h] = true

	dir := filepath.Dir(path)
	m.dirRefs[dir]++
	if m.dirRefs[dir] == 1 {
		if err := m.fsw.Add(dir); err != nil {
			m.dirRefs[dir]--
			delete(subs, h)
			return fmt.Errorf("watch: watching directory %s: %w", dir, err)
		}
	}
	return nil
}

func (m *FSMonitor) unsubscribeAllLocked(h Handle, w *fsWatch) {
	for _, p := range w.paths {
		subs := m.byPath[p]
		if subs == nil || !subs[h] {
			continue
		}
		delete(subs, h)
		if len(subs) == 0 {
			delete(m.byPath, p)
		}
		dir := filepath.Dir(p)
		m.dirRefs[dir]--
		if m.dirRefs[dir] <= 0 {
			delete(m.dirRefs, dir)
			_ = m.fsw.Remove(dir) // best-effort; dir may be gone
		}
	}
}

func (m *FSMonitor) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			m.dispatch(filepath.Clean(ev.Name))

		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			if m.onError != nil {
				m.onError(err)
			}
		}
	}
}

// relevant keeps writes, creates, removes and renames. A removed or renamed
// source still maps to Changed: the rebuild attempts a re-read and surfaces
// the missing file as an IO failure.
func relevant(ev fsnotify.Event) bool {
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) ||
		ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
}

func (m *FSMonitor) dispatch(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.byPath[path] {
		w, ok := m.watches[h]
		if !ok {
			continue
		}
		if w.timer == nil {
			hh := h
			w.timer = time.AfterFunc(m.debounce, func() { m.fire(hh) })
		} else {
			w.timer.Reset(m.debounce)
		}
	}
}

func (m *FSMonitor) fire(h Handle) {
	m.mu.Lock()
	w, ok := m.watches[h]
	if ok {
		w.timer = nil
	}
	m.mu.Unlock()
	if ok {
		w.fn(Changed) // AfterFunc goroutine
	}
}
