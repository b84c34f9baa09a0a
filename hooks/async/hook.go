// Package asynchook decouples hook consumers from the watch dispatch path:
// events are queued to a small worker pool and dropped when the queue is
// full, so a slow sink can never stall a rebuild.
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/assetforge"
)

type Hooks struct {
	inner assetforge.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ assetforge.Hooks = (*Hooks)(nil)

func New(inner assetforge.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) RebuildFailed(k string, err error) {
	h.try(func() { h.inner.RebuildFailed(k, err) })
}
func (h *Hooks) RebuildDiscarded(k string, obs, cur uint64) {
	h.try(func() { h.inner.RebuildDiscarded(k, obs, cur) })
}
func (h *Hooks) WatchReissued(k, reason string) {
	h.try(func() { h.inner.WatchReissued(k, reason) })
}
func (h *Hooks) ReissueFailed(k string, err error) {
	h.try(func() { h.inner.ReissueFailed(k, err) })
}
func (h *Hooks) SlowBuild(k string, elapsed time.Duration) {
	h.try(func() { h.inner.SlowBuild(k, elapsed) })
}
