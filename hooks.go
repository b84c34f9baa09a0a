package assetforge

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the coordinator calls
// them from watch dispatch goroutines. Errors raised inside the async
// rebuild path cannot propagate to any caller, so these hooks (plus the
// Logger) are the only way they surface.
type Hooks interface {
	// A rebuild triggered by a watch event failed. The entry stays
	// installed (stale) but is no longer watched; unrelated keys are
	// unaffected.
	RebuildFailed(key string, err error)

	// A finished rebuild was discarded because a newer generation started
	// (or the key was removed) while it ran.
	RebuildDiscarded(key string, observed, current uint64)

	// The cheap path re-registered an unchanged watch set.
	// reason ∈ {"evicted", "expired"}
	WatchReissued(key, reason string)

	// Re-registration on the cheap path failed; the entry is left
	// unwatched/stale.
	ReissueFailed(key string, err error)

	// A build completed but took longer than the configured bound.
	// Non-fatal: the result is still installed.
	SlowBuild(key string, elapsed time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RebuildFailed(string, error)           {}
func (NopHooks) RebuildDiscarded(string, uint64, uint64) {}
func (NopHooks) WatchReissued(string, string)          {}
func (NopHooks) ReissueFailed(string, error)           {}
func (NopHooks) SlowBuild(string, time.Duration)       {}
