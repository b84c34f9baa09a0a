// Package sloghooks is a ready-made Hooks implementation over log/slog with
// per-event sampling for the chatty paths.
package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/assetforge"
)

type Options struct {
	// Sampling to avoid floods on hot keys; 0/1 = log all.
	DiscardEvery uint64
	ReissueEvery uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	discardCtr atomic.Uint64
	reissueCtr atomic.Uint64
}

var _ assetforge.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RebuildFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("assetforge.rebuild_failed",
		"key", key,
		"err", err)
}

func (h *Hooks) RebuildDiscarded(key string, observed, current uint64) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("assetforge.rebuild_discarded",
		"key", key,
		"observed", observed,
		"current", current)
}

func (h *Hooks) WatchReissued(key, reason string) {
	if h.l == nil || !sample(h.opts.ReissueEvery, &h.reissueCtr) {
		return
	}
	h.l.Debug("assetforge.watch_reissued",
		"key", key,
		"reason", reason)
}

func (h *Hooks) ReissueFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("assetforge.reissue_failed",
		"key", key,
		"err", err)
}

func (h *Hooks) SlowBuild(key string, elapsed time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("assetforge.slow_build",
		"key", key,
		"elapsed", elapsed.String())
}
