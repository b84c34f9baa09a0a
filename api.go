package assetforge

import (
	"context"
	"time"

	"github.com/unkn0wn-root/assetforge/bundle"
	"github.com/unkn0wn-root/assetforge/fsio"
	"github.com/unkn0wn-root/assetforge/store"
	"github.com/unkn0wn-root/assetforge/watch"
)

// Coordinator is the process-wide artifact cache. One instance owns the map
// from cache key to active entry; pass it to call sites explicitly (there is
// no package-level singleton).
type Coordinator interface {
	// Add builds the artifact, persists it and installs a watch over every
	// contributing path. Fails (installing nothing) if a source is
	// unreadable or the output unwritable. Re-Adding an existing key
	// replaces the entry wholesale.
	Add(ctx context.Context, spec ArtifactSpec) error

	// Remove tears down the watch and deletes the entry. Idempotent.
	// Wins races against in-flight rebuilds of the same key.
	Remove(key string)

	// Spec returns the installed spec for a key.
	Spec(key string) (ArtifactSpec, bool)

	// Generation returns the current generation for a key (0 if never
	// built). Consumers caching derived values (see linkref) tag them with
	// this and re-derive on mismatch.
	Generation(key string) uint64

	// Hash returns the content hash of the last written output for a key.
	Hash(key string) (fsio.Hash, bool)

	// Len returns the number of installed entries.
	Len() int

	// Close tears down all watches and the underlying monitor.
	Close(ctx context.Context) error
}

// Options tune the coordinator. Only Monitor is required; others have
// sensible defaults.
type Options struct {
	// Required
	Monitor watch.Monitor

	FS     *fsio.FS         // nil => default retry policy
	Store  store.Store      // nil => disk store over FS
	Script bundle.Processor // nil => bundle.NewScript(nil)
	Sprite bundle.Processor // nil => bundle.NewSprite()

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	MaxEntries   int           // entry/watch cap; 0 => 1024
	BuildTimeout time.Duration // bounds rebuild I/O, flags slow builds; 0 => 30s

	CleanupInterval time.Duration // generation map pruning; 0 => 1h
	GenRetention    time.Duration // prune removed-key gens after; 0 => 24h
}

func New(opts Options) (Coordinator, error) {
	return newCoordinator(opts)
}
