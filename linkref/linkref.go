// Package linkref renders HTML reference markup for cached artifacts: a
// single tag per artifact in bundled mode, or one tag per original source in
// debug mode. Rendered markup is cached keyed by output path and tagged with
// the coordinator generation; a rebuild bumps the generation, so stale
// markup is rejected (and deleted) on the next read without any extra
// invalidation plumbing.
package linkref

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/assetforge"
	"github.com/unkn0wn-root/assetforge/fsio"
	"github.com/unkn0wn-root/assetforge/internal/wire"
	"github.com/unkn0wn-root/assetforge/refcache"
)

// Source is the slice of the coordinator the renderer needs.
type Source interface {
	Spec(key string) (assetforge.ArtifactSpec, bool)
	Generation(key string) uint64
	Hash(key string) (fsio.Hash, bool)
}

// Options tune the renderer. Only Source is required.
type Options struct {
	// Required
	Source Source

	Cache refcache.Provider // nil => in-process map
	FS    *fsio.FS          // debug mode hashes each source; nil => defaults

	// Debug renders one individually hashed tag per original script source
	// instead of the bundle. Sprites are always bundled.
	Debug bool

	TTL    time.Duration     // markup cache TTL; 0 => 10m
	Logger assetforge.Logger // if nil, logging is disabled
}

// Renderer produces reference markup for installed artifacts.
// Safe for concurrent use.
type Renderer struct {
	src   Source
	cache refcache.Provider
	fs    *fsio.FS
	debug bool
	ttl   time.Duration
	log   assetforge.Logger
}

func New(opts Options) (*Renderer, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("linkref: source is required")
	}
	r := &Renderer{
		src:   opts.Source,
		cache: opts.Cache,
		fs:    opts.FS,
		debug: opts.Debug,
		ttl:   opts.TTL,
		log:   opts.Logger,
	}
	if r.cache == nil {
		r.cache = refcache.NewMemory()
	}
	if r.fs == nil {
		r.fs = fsio.New(fsio.Options{})
	}
	if r.ttl == 0 {
		r.ttl = 10 * time.Minute
	}
	if r.log == nil {
		r.log = assetforge.NopLogger{}
	}
	return r, nil
}

// Tags returns the reference markup for the artifact under key. The result
// is consumed by a templating layer; it is not a wire protocol.
func (r *Renderer) Tags(ctx context.Context, key string) (string, error) {
	spec, ok := r.src.Spec(key)
	if !ok {
		return "", &assetforge.ConfigError{Ref: key}
	}

	gen := r.src.Generation(key)
	ck := r.cacheKey(spec)

	if raw, hit, err := r.cache.Get(ctx, ck); err == nil && hit {
		cachedGen, payload, derr := wire.Decode(raw)
		if derr == nil && cachedGen == gen {
			return string(payload), nil
		}
		// stale or corrupt; delete and re-render
		_ = r.cache.Del(ctx, ck)
		r.log.Debug("markup cache self-heal", assetforge.Fields{"key": key})
	}

	markup, err := r.render(ctx, key, spec)
	if err != nil {
		return "", err
	}

	framed := wire.Encode(gen, []byte(markup))
	if ok, err := r.cache.Set(ctx, ck, framed, int64(len(framed)), r.ttl); err != nil || !ok {
		r.log.Debug("markup cache set rejected", assetforge.Fields{"key": key, "err": err})
	}
	return markup, nil
}

func (r *Renderer) cacheKey(spec assetforge.ArtifactSpec) string {
	mode := "bundled"
	if r.debug {
		mode = "debug"
	}
	return "ref:" + mode + ":" + spec.OutputPath
}

func (r *Renderer) render(ctx context.Context, key string, spec assetforge.ArtifactSpec) (string, error) {
	if r.debug && spec.Kind == assetforge.KindScript {
		return r.renderDebug(ctx, spec)
	}
	return r.renderBundled(key, spec)
}

// renderBundled emits one tag for the artifact, versioned with the content
// hash of the last written output. Sprites are referenced through their
// stylesheet.
func (r *Renderer) renderBundled(key string, spec assetforge.ArtifactSpec) (string, error) {
	hash, ok := r.src.Hash(key)
	if !ok {
		return "", &assetforge.ConfigError{Ref: key}
	}

	url := spec.PublicURL
	if url == "" {
		url = spec.OutputPath
	}
	if spec.Kind == assetforge.KindSprite {
		url = spec.StylesheetPath
	}
	return tag(url, hash.Tag()), nil
}

// renderDebug emits one tag per original source, each hashed individually,
// so the browser loads sources unbundled and line numbers survive.
func (r *Renderer) renderDebug(ctx context.Context, spec assetforge.ArtifactSpec) (string, error) {
	var b strings.Builder
	for _, src := range spec.Sources {
		data, err := r.fs.ReadFile(ctx, src.Path)
		if err != nil {
			return "", &assetforge.IOError{Op: "read", Path: src.Path, Err: err}
		}
		b.WriteString(tag(src.Path, fsio.Sum(data).Tag()))
	}
	return b.String(), nil
}

func tag(url, version string) string {
	versioned := url + "?v=" + version
	if strings.HasSuffix(url, ".css") {
		return fmt.Sprintf("<link rel=%q href=%q />\n", "stylesheet", versioned)
	}
	return fmt.Sprintf("<script src=%q></script>\n", versioned)
}
