// Package store persists processed artifacts to their output locations.
package store

import (
	"context"

	"github.com/unkn0wn-root/assetforge/fsio"
)

// Store writes one artifact to its location and returns the content hash of
// the written bytes. Implementations must be safe for concurrent use.
type Store interface {
	Write(ctx context.Context, path string, data []byte) (fsio.Hash, error)
}

// Disk writes artifacts through the retrying fsio layer.
type Disk struct {
	fs *fsio.FS
}

var _ Store = (*Disk)(nil)

func NewDisk(fs *fsio.FS) *Disk {
	if fs == nil {
		fs = fsio.New(fsio.Options{})
	}
	return &Disk{fs: fs}
}

func (d *Disk) Write(ctx context.Context, path string, data []byte) (fsio.Hash, error) {
	return d.fs.WriteFile(ctx, path, data)
}
