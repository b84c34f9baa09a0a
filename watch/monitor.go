// Package watch binds filesystem path sets to cache keys. A Registry sits
// between the coordinator and a host Monitor: it owns one registration per
// key (re-registering atomically tears the prior one down) and delivers
// events asynchronously, one sequential dispatch goroutine per registration.
package watch

import "errors"

// Reason says why a watch fired.
type Reason int

const (
	// Changed: a monitored path was written, created, removed or renamed.
	// The artifact must be rebuilt from current source contents.
	Changed Reason = iota + 1
	// Evicted: the monitor dropped the registration under resource
	// pressure. Nothing changed on disk; re-registering is enough.
	Evicted
	// Expired: the monitor dropped the registration after a time bound.
	// Same handling as Evicted.
	Expired
)

func (r Reason) String() string {
	switch r {
	case Changed:
		return "changed"
	case Evicted:
		return "evicted"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Handle identifies one live registration with a Monitor.
type Handle uint64

// Monitor is the host path-change monitor. Implementations must deliver fn
// off the Watch caller's stack and must keep firing for the lifetime of the
// handle (or fire Evicted/Expired exactly once when dropping it).
type Monitor interface {
	// Watch registers fn for every path in paths. paths is non-empty.
	Watch(paths []string, fn func(Reason)) (Handle, error)

	// Cancel releases a registration. Unknown handles are a no-op.
	Cancel(h Handle) error

	// Close releases all registrations and monitor resources.
	Close() error
}

var (
	// ErrEmptyWatchSet is returned when Register is called with no paths.
	ErrEmptyWatchSet = errors.New("watch: empty path set")
	// ErrClosed is returned when registering on a closed registry.
	ErrClosed = errors.New("watch: registry closed")
)
