package assetforge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/unkn0wn-root/assetforge/bundle"
	"github.com/unkn0wn-root/assetforge/fsio"
	"github.com/unkn0wn-root/assetforge/store"
	"github.com/unkn0wn-root/assetforge/watch"
)

const (
	defaultMaxEntries   = 1024
	defaultBuildTimeout = 30 * time.Second
	defaultSweep        = time.Hour
	defaultGenRetention = 24 * time.Hour
)

// entry is one installed artifact. Entries are immutable once installed;
// a rebuild creates a fresh entry and swaps it in wholesale.
type entry struct {
	spec ArtifactSpec
	gen  uint64 // generation this entry was installed at
	hash fsio.Hash
}

type genEntry struct {
	Gen       uint64
	UpdatedAt time.Time // set only on bumps
}

type coordinator struct {
	reg    *watch.Registry[*entry]
	fs     *fsio.FS
	st     store.Store
	script bundle.Processor
	sprite bundle.Processor
	log    Logger
	hooks  Hooks

	maxEntries   int
	buildTimeout time.Duration
	genRetention time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	// generations outlive their entries (missing treated as gen=0) so that
	// a Remove or newer rebuild always invalidates in-flight work
	gens   map[string]genEntry
	closed bool

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newCoordinator(opts Options) (*coordinator, error) {
	if opts.Monitor == nil {
		return nil, fmt.Errorf("assetforge: monitor is required")
	}

	fs := opts.FS
	if fs == nil {
		fs = fsio.New(fsio.Options{})
	}
	c := &coordinator{
		reg:     watch.NewRegistry[*entry](opts.Monitor),
		fs:      fs,
		entries: make(map[string]*entry),
		gens:    make(map[string]genEntry),
	}

	c.st = opts.Store
	if c.st == nil {
		c.st = store.NewDisk(fs)
	}
	c.script = opts.Script
	if c.script == nil {
		c.script = bundle.NewScript(nil)
	}
	c.sprite = opts.Sprite
	if c.sprite == nil {
		c.sprite = bundle.NewSprite()
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.maxEntries = coalesce[int](opts.MaxEntries, defaultMaxEntries)
	c.buildTimeout = coalesce[time.Duration](opts.BuildTimeout, defaultBuildTimeout)
	c.genRetention = coalesce[time.Duration](opts.GenRetention, defaultGenRetention)

	sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	c.ticker = time.NewTicker(sweep)
	c.stopCh = make(chan struct{})
	c.closeWg.Add(1)
	go c.cleanupLoop()

	return c, nil
}

func (c *coordinator) Add(ctx context.Context, spec ArtifactSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	key := spec.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.mu.Unlock()
		return &CapacityError{Limit: c.maxEntries}
	}
	// starting a build supersedes anything in flight for the key
	obs := c.bumpGenLocked(key)
	c.mu.Unlock()

	hash, err := c.build(ctx, key, spec, obs, nil)
	if err != nil {
		if errors.Is(err, errSuperseded) {
			// a concurrent Add/Remove for the same key won; its result stands
			return nil
		}
		return err
	}

	if err := c.install(key, spec, hash, obs); err != nil {
		if errors.Is(err, errSuperseded) {
			c.log.Debug("add result discarded (superseded)", Fields{"key": key})
			return nil
		}
		return err
	}
	return nil
}

func (c *coordinator) Remove(key string) {
	c.mu.Lock()
	_, had := c.entries[key]
	delete(c.entries, key)
	// bump so an in-flight rebuild observes the move and discards itself
	if _, ok := c.gens[key]; ok {
		c.bumpGenLocked(key)
	}
	c.mu.Unlock()

	c.reg.Unregister(key)
	if had {
		c.log.Debug("entry removed", Fields{"key": key})
	}
}

func (c *coordinator) Spec(key string) (ArtifactSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return ArtifactSpec{}, false
	}
	return e.spec, true
}

func (c *coordinator) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key].Gen
}

func (c *coordinator) Hash(key string) (fsio.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return fsio.Hash{}, false
	}
	return e.hash, true
}

func (c *coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *coordinator) Close(_ context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.entries = make(map[string]*entry)
		c.mu.Unlock()

		close(c.stopCh)
		c.closeWg.Wait()
		c.ticker.Stop()
	})
	return c.reg.Close()
}

var (
	// errSuperseded aborts a build whose generation moved before it
	// persisted anything; the caller discards silently.
	errSuperseded = errors.New("assetforge: build superseded")
	// errUnchanged aborts a rebuild whose output is byte-identical to what
	// is already installed and on disk; nothing is written.
	errUnchanged = errors.New("assetforge: output unchanged")

	errClosed = errors.New("assetforge: coordinator closed")
)

// build runs one full processing pass: read every source, process, persist.
// Returns the content hash of the primary output. Nothing is installed here.
// The pre-write generation check keeps a superseded build from clobbering a
// newer output; install re-checks before the entry swap.
//
// prev, when non-nil, is the installed entry's content hash: a rebuild whose
// produced bytes match it (and match the bytes on disk) returns errUnchanged
// without writing. The output path is part of the watch set, so every write
// echoes back as a Changed event on the fresh registration; skipping the
// identical write is what terminates that echo instead of looping forever.
func (c *coordinator) build(ctx context.Context, key string, spec ArtifactSpec, obs uint64, prev *fsio.Hash) (fsio.Hash, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	req := bundle.Request{
		Assets:   make([]bundle.Asset, 0, len(spec.Sources)),
		ImageURL: spec.imageURL(),
	}
	for _, src := range spec.Sources {
		data, err := c.fs.ReadFile(ctx, src.Path)
		if err != nil {
			return fsio.Hash{}, &IOError{Op: "read", Path: src.Path, Err: err}
		}
		req.Assets = append(req.Assets, bundle.Asset{
			Path:   src.Path,
			Data:   data,
			Minify: src.Minify,
			Name:   src.Name,
		})
	}

	var proc bundle.Processor
	switch spec.Kind {
	case KindScript:
		proc = c.script
	case KindSprite:
		proc = c.sprite
	}
	out, err := proc.Process(ctx, req)
	if err != nil {
		if errors.Is(err, bundle.ErrNoSources) {
			return fsio.Hash{}, &InvalidInputError{Reason: err.Error()}
		}
		return fsio.Hash{}, err
	}

	if cur := c.Generation(key); cur != obs {
		c.hooks.RebuildDiscarded(key, obs, cur)
		return fsio.Hash{}, errSuperseded
	}
	if prev != nil && fsio.Sum(out.Content) == *prev && c.outputsIntact(ctx, spec, out) {
		return *prev, errUnchanged
	}
	hash, err := c.st.Write(ctx, spec.OutputPath, out.Content)
	if err != nil {
		return fsio.Hash{}, &IOError{Op: "write", Path: spec.OutputPath, Err: err}
	}
	if out.Stylesheet != nil {
		if _, err := c.st.Write(ctx, spec.StylesheetPath, out.Stylesheet); err != nil {
			return fsio.Hash{}, &IOError{Op: "write", Path: spec.StylesheetPath, Err: err}
		}
	}

	// CPU-bound compression cannot be cancelled mid-pass; a slow build is a
	// warning, never a failure
	if elapsed := time.Since(start); elapsed > c.buildTimeout {
		c.hooks.SlowBuild(key, elapsed)
		c.log.Warn("slow build", Fields{"key": key, "elapsed": elapsed.String()})
	}
	return hash, nil
}

// outputsIntact reports whether the bytes on disk already match the produced
// output. An unchanged rebuild skips its write only when this holds, so a
// direct external edit of the artifact itself is still healed.
func (c *coordinator) outputsIntact(ctx context.Context, spec ArtifactSpec, out *bundle.Output) bool {
	disk, err := c.fs.ReadFile(ctx, spec.OutputPath)
	if err != nil || !bytes.Equal(disk, out.Content) {
		return false
	}
	if out.Stylesheet != nil {
		disk, err = c.fs.ReadFile(ctx, spec.StylesheetPath)
		if err != nil || !bytes.Equal(disk, out.Stylesheet) {
			return false
		}
	}
	return true
}

// install swaps in a fresh entry and (re)registers its watch. Returns
// errSuperseded when the key's generation moved while the build ran, a
// CapacityError when a concurrent first-time install filled the map, or the
// registration error when the monitor rejected the watch; only the first is
// silent at the call sites.
func (c *coordinator) install(key string, spec ArtifactSpec, hash fsio.Hash, obs uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if cur := c.gens[key].Gen; cur != obs {
		c.hooks.RebuildDiscarded(key, obs, cur)
		return errSuperseded
	}
	// Add pre-checks the capacity, but concurrent first-time Adds can pass
	// that check together; the bound is enforced here, in the same critical
	// section as the entry swap.
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		return &CapacityError{Limit: c.maxEntries}
	}

	e := &entry{spec: spec, gen: obs, hash: hash}
	// registering under an existing key atomically replaces the old watch,
	// so every installed key has exactly one active watch
	if err := c.reg.Register(spec.WatchSet(), key, e, c.onEvent); err != nil {
		return &IOError{Op: "watch", Path: spec.OutputPath, Err: err}
	}
	c.entries[key] = e
	return nil
}

// onEvent is the watch callback. It runs on the registration's dispatch
// goroutine; errors here cannot reach a caller and are reported via hooks.
func (c *coordinator) onEvent(key string, e *entry, reason watch.Reason) {
	switch reason {
	case watch.Evicted, watch.Expired:
		c.reissue(key, e, reason)
	case watch.Changed:
		c.regenerate(key, e)
	}
}

// reissue is the cheap path: the monitor dropped the registration but
// nothing changed on disk, so re-register the same watch set over the same
// output. Entries live until explicit Remove; monitoring never lapses.
func (c *coordinator) reissue(key string, e *entry, reason watch.Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[key]
	if !ok || cur.gen != e.gen {
		return // removed or superseded since the event fired
	}
	if err := c.reg.Register(cur.spec.WatchSet(), key, cur, c.onEvent); err != nil {
		c.hooks.ReissueFailed(key, err)
		c.log.Error("watch re-registration failed; entry left unwatched", Fields{"key": key, "err": err})
		return
	}
	c.hooks.WatchReissued(key, reason.String())
	c.log.Debug("watch reissued", Fields{"key": key, "reason": reason.String()})
}

// regenerate is the self-healing path: rerun the processor over current
// source contents, rewrite the output and re-register the watch.
func (c *coordinator) regenerate(key string, e *entry) {
	c.mu.Lock()
	cur, ok := c.entries[key]
	if !ok || cur.gen != e.gen {
		c.mu.Unlock()
		return // removed or superseded since the event fired
	}
	obs := c.bumpGenLocked(key)
	spec := cur.spec
	prev := cur.hash
	c.mu.Unlock()

	hash, err := c.build(context.Background(), key, spec, obs, &prev)
	switch {
	case err == nil:
	case errors.Is(err, errSuperseded):
		return
	case errors.Is(err, errUnchanged):
		// the echo of our own output write, or a no-op source touch; the
		// existing entry and watch stay as they are
		c.log.Debug("rebuild output unchanged; write skipped", Fields{"key": key})
		return
	default:
		// leave the entry stale and unwatched; one bad source must not take
		// down monitoring for unrelated keys
		c.dropWatch(key, obs)
		c.hooks.RebuildFailed(key, err)
		c.log.Error("rebuild failed; entry left stale", Fields{"key": key, "err": err})
		return
	}

	if err := c.install(key, spec, hash, obs); err != nil {
		if errors.Is(err, errSuperseded) {
			c.log.Debug("rebuild result discarded (superseded)", Fields{"key": key})
			return
		}
		// the prior registration survives a failed replacement, so the key
		// is still watched; the rewritten output is picked up next event
		c.hooks.RebuildFailed(key, err)
		c.log.Error("rebuild result not installed", Fields{"key": key, "err": err})
		return
	}
	c.log.Debug("artifact regenerated", Fields{"key": key, "hash": hash.Hex()})
}

// dropWatch unregisters the watch for key unless a newer generation already
// replaced it.
func (c *coordinator) dropWatch(key string, obs uint64) {
	c.mu.Lock()
	stale := c.gens[key].Gen != obs
	c.mu.Unlock()
	if !stale {
		c.reg.Unregister(key)
	}
}

func (c *coordinator) bumpGenLocked(key string) uint64 {
	g := c.gens[key]
	g.Gen++
	g.UpdatedAt = time.Now()
	c.gens[key] = g
	return g.Gen
}

func (c *coordinator) cleanupLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.cleanupOldGenerations(c.genRetention)
		case <-c.stopCh:
			return
		}
	}
}

// cleanupOldGenerations prunes generation counters whose entries were
// removed long ago. Live entries keep theirs indefinitely.
func (c *coordinator) cleanupOldGenerations(retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	c.mu.Lock()
	removed := 0
	for k, g := range c.gens {
		if _, live := c.entries[k]; live {
			continue
		}
		if !g.UpdatedAt.IsZero() && g.UpdatedAt.Before(cutoff) {
			delete(c.gens, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug("generation cleanup removed stale counters", Fields{"removed": removed})
	}
}

// imageURL is the URL the sprite stylesheet uses to reference the sheet:
// the explicit public URL when set, else the sheet's file name (stylesheets
// conventionally sit next to their sheet).
func (s ArtifactSpec) imageURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return filepath.Base(s.OutputPath)
}
