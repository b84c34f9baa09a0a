// Package fsio is the retrying file I/O collaborator: bounded-retry reads
// and writes (editors and build tools briefly lock or replace files mid
// write) plus BLAKE3 content hashing for cache busting.
package fsio

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of artifact or source content.
type Hash [32]byte

// Sum computes the content hash of data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// Hex returns the full hex encoding, used in logs and tests.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// Tag returns the short form appended to asset URLs as the cache-busting
// query parameter (first 12 hex chars).
func (h Hash) Tag() string { return hex.EncodeToString(h[:6]) }

// Options tune retry behavior. Zero values take defaults.
type Options struct {
	MaxRetries      uint64        // attempts after the first; 0 => 4
	InitialInterval time.Duration // first backoff delay; 0 => 50ms
}

// FS performs file reads and writes with bounded exponential backoff.
// Safe for concurrent use.
type FS struct {
	maxRetries uint64
	initial    time.Duration
}

func New(opts Options) *FS {
	f := &FS{
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialInterval,
	}
	if f.maxRetries == 0 {
		f.maxRetries = 4
	}
	if f.initial == 0 {
		f.initial = 50 * time.Millisecond
	}
	return f
}

// ReadFile reads the whole file, retrying on any error (missing files are
// retried too: a source mid-replace reappears within a tick). Exhausted
// retries return the last error; the caller classifies it as an IO failure.
func (f *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := backoff.RetryWithData(func() ([]byte, error) {
		return os.ReadFile(path)
	}, f.policy(ctx))
	if err != nil {
		return nil, fmt.Errorf("fsio: read %q: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data atomically (temp file + rename), creating parent
// directories, and returns the content hash of data. Retried like reads.
func (f *FS) WriteFile(ctx context.Context, path string, data []byte) (Hash, error) {
	err := backoff.Retry(func() error {
		return writeAtomic(path, data)
	}, f.policy(ctx))
	if err != nil {
		return Hash{}, fmt.Errorf("fsio: write %q: %w", path, err)
	}
	return Sum(data), nil
}

func (f *FS) policy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initial
	bo.MaxElapsedTime = 0 // bounded by retry count and ctx, not wall clock
	return backoff.WithContext(backoff.WithMaxRetries(bo, f.maxRetries), ctx)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
