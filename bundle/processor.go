// Package bundle turns ordered source contents into final artifact bytes.
// One Processor exists per artifact kind; the coordinator selects it by the
// spec's kind tag. Processors are pure: the same request yields the same
// bytes, which is what makes cached artifacts reproducible.
package bundle

import (
	"context"
	"errors"
)

// Asset is one input to a processing pass, already read from disk.
// Order in Request.Assets is the spec's source order.
type Asset struct {
	Path string
	Data []byte

	// Minify marks a script asset for cross-file minification.
	Minify bool
	// Name is the sprite element name. Empty => derived from Path.
	Name string
}

// Request carries one processing pass.
type Request struct {
	Assets []Asset

	// ImageURL is the URL under which the sprite stylesheet references the
	// composed sheet. Unused by script processing.
	ImageURL string
}

// Output is the product of one pass.
type Output struct {
	// Content is the primary artifact: the bundled script, or the encoded
	// sprite sheet.
	Content []byte
	// Stylesheet is the sprite companion; nil for scripts.
	Stylesheet []byte
}

// ErrNoSources is returned when a pass requires at least one source
// (sprites: max/sum over an empty set is undefined).
var ErrNoSources = errors.New("bundle: no sources")

// Processor produces output bytes from ordered source contents.
type Processor interface {
	Process(ctx context.Context, req Request) (*Output, error)
}
