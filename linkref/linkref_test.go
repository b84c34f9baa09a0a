package linkref

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/assetforge"
	"github.com/unkn0wn-root/assetforge/fsio"
	"github.com/unkn0wn-root/assetforge/refcache"
)

// fakeSource is a hand-rolled coordinator stand-in: specs, generations and
// hashes set directly by the test.
type fakeSource struct {
	mu    sync.Mutex
	specs map[string]assetforge.ArtifactSpec
	gens  map[string]uint64
	hash  map[string]fsio.Hash
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		specs: make(map[string]assetforge.ArtifactSpec),
		gens:  make(map[string]uint64),
		hash:  make(map[string]fsio.Hash),
	}
}

func (s *fakeSource) add(key string, spec assetforge.ArtifactSpec, gen uint64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[key] = spec
	s.gens[key] = gen
	s.hash[key] = fsio.Sum([]byte(content))
}

func (s *fakeSource) Spec(key string) (assetforge.ArtifactSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[key]
	return spec, ok
}

func (s *fakeSource) Generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

func (s *fakeSource) Hash(key string) (fsio.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hash[key]
	return h, ok
}

// countingCache wraps Memory and counts Set calls, so tests can tell a cache
// hit from a silent re-render.
type countingCache struct {
	*refcache.Memory
	mu   sync.Mutex
	sets int
	dels int
}

func newCountingCache() *countingCache {
	return &countingCache{Memory: refcache.NewMemory()}
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Memory.Set(ctx, key, value, cost, ttl)
}

func (c *countingCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	c.dels++
	c.mu.Unlock()
	return c.Memory.Del(ctx, key)
}

func (c *countingCache) counts() (sets, dels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets, c.dels
}

func scriptSpec(output string, sources ...string) assetforge.ArtifactSpec {
	spec := assetforge.ArtifactSpec{
		Kind:       assetforge.KindScript,
		OutputPath: output,
	}
	for _, s := range sources {
		spec.Sources = append(spec.Sources, assetforge.SourceRef{Path: s})
	}
	return spec
}

func TestTagsUnknownKeyIsConfigError(t *testing.T) {
	r, err := New(Options{Source: newFakeSource()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Tags(context.Background(), "nope")
	if !assetforge.IsConfig(err) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestTagsBundledScript(t *testing.T) {
	src := newFakeSource()
	src.add("k", scriptSpec("static/app.js", "a.js"), 1, "bundle-bytes")

	r, err := New(Options{Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	markup, err := r.Tags(context.Background(), "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	wantTag := fsio.Sum([]byte("bundle-bytes")).Tag()
	if !strings.Contains(markup, `<script src="static/app.js?v=`+wantTag+`"`) {
		t.Fatalf("markup = %q", markup)
	}
}

func TestTagsBundledPrefersPublicURL(t *testing.T) {
	src := newFakeSource()
	spec := scriptSpec("static/app.js", "a.js")
	spec.PublicURL = "https://cdn.example/app.js"
	src.add("k", spec, 1, "x")

	r, _ := New(Options{Source: src})
	markup, err := r.Tags(context.Background(), "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if !strings.Contains(markup, `src="https://cdn.example/app.js?v=`) {
		t.Fatalf("markup = %q", markup)
	}
}

func TestTagsSpriteUsesStylesheetLink(t *testing.T) {
	src := newFakeSource()
	src.add("k", assetforge.ArtifactSpec{
		Kind:           assetforge.KindSprite,
		OutputPath:     "static/icons.png",
		StylesheetPath: "static/icons.css",
		Sources:        []assetforge.SourceRef{{Path: "a.png"}},
	}, 1, "sheet")

	r, _ := New(Options{Source: src})
	markup, err := r.Tags(context.Background(), "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if !strings.Contains(markup, `<link rel="stylesheet" href="static/icons.css?v=`) {
		t.Fatalf("markup = %q", markup)
	}
	if strings.Contains(markup, "<script") {
		t.Fatalf("sprite markup contains a script tag: %q", markup)
	}
}

func TestTagsCachesUntilGenerationBump(t *testing.T) {
	src := newFakeSource()
	src.add("k", scriptSpec("static/app.js", "a.js"), 1, "v1")
	cache := newCountingCache()

	r, _ := New(Options{Source: src, Cache: cache})
	ctx := context.Background()

	first, err := r.Tags(ctx, "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	second, err := r.Tags(ctx, "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if first != second {
		t.Fatalf("cached render differs: %q vs %q", first, second)
	}
	if sets, _ := cache.counts(); sets != 1 {
		t.Fatalf("sets = %d, want 1 (second call must be a cache hit)", sets)
	}

	// a rebuild bumps the generation; the cached entry self-heals away
	src.add("k", scriptSpec("static/app.js", "a.js"), 2, "v2")
	third, err := r.Tags(ctx, "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if third == first {
		t.Fatalf("stale markup served after generation bump")
	}
	sets, dels := cache.counts()
	if dels != 1 || sets != 2 {
		t.Fatalf("sets = %d dels = %d, want re-render with delete of stale entry", sets, dels)
	}
	if !strings.Contains(third, fsio.Sum([]byte("v2")).Tag()) {
		t.Fatalf("markup not versioned with new hash: %q", third)
	}
}

func TestTagsSelfHealsCorruptCacheEntry(t *testing.T) {
	src := newFakeSource()
	src.add("k", scriptSpec("static/app.js", "a.js"), 1, "v1")
	cache := newCountingCache()

	r, _ := New(Options{Source: src, Cache: cache})
	ctx := context.Background()

	// plant garbage where the renderer expects a framed entry
	if _, err := cache.Set(ctx, "ref:bundled:static/app.js", []byte("garbage"), 7, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	markup, err := r.Tags(ctx, "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if !strings.Contains(markup, "static/app.js?v=") {
		t.Fatalf("markup = %q", markup)
	}
	if _, dels := cache.counts(); dels != 1 {
		t.Fatalf("corrupt entry not deleted")
	}
}

func TestTagsDebugRendersPerSource(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	b := filepath.Join(dir, "b.js")
	if err := os.WriteFile(a, []byte("AAA"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(b, []byte("BBB"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	src := newFakeSource()
	src.add("k", scriptSpec("static/app.js", a, b), 1, "bundle")

	r, _ := New(Options{Source: src, Debug: true})
	markup, err := r.Tags(context.Background(), "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if strings.Contains(markup, "static/app.js") {
		t.Fatalf("debug markup references the bundle: %q", markup)
	}
	if !strings.Contains(markup, a+"?v="+fsio.Sum([]byte("AAA")).Tag()) {
		t.Fatalf("markup missing individually hashed source a: %q", markup)
	}
	if !strings.Contains(markup, b+"?v="+fsio.Sum([]byte("BBB")).Tag()) {
		t.Fatalf("markup missing individually hashed source b: %q", markup)
	}
	if got := strings.Count(markup, "<script"); got != 2 {
		t.Fatalf("script tag count = %d, want 2", got)
	}
}

func TestTagsDebugSpriteStaysBundled(t *testing.T) {
	src := newFakeSource()
	src.add("k", assetforge.ArtifactSpec{
		Kind:           assetforge.KindSprite,
		OutputPath:     "static/icons.png",
		StylesheetPath: "static/icons.css",
		Sources:        []assetforge.SourceRef{{Path: "missing-on-disk.png"}},
	}, 1, "sheet")

	r, _ := New(Options{Source: src, Debug: true})
	markup, err := r.Tags(context.Background(), "k")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if !strings.Contains(markup, "static/icons.css?v=") {
		t.Fatalf("markup = %q", markup)
	}
}
