package assetforge

import (
	"github.com/unkn0wn-root/assetforge/internal/keys"
)

// Kind selects the processing pipeline for an artifact.
type Kind int

const (
	// KindScript concatenates text sources (scripts or stylesheets) into a
	// single bundle, minifying the sources marked for it as one unit.
	KindScript Kind = iota + 1
	// KindSprite stacks source images into one sheet and emits a companion
	// stylesheet with one rule per element.
	KindSprite
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindSprite:
		return "sprite"
	default:
		return "unknown"
	}
}

// SourceRef is one input file of an artifact. Order within
// ArtifactSpec.Sources is significant and preserved end-to-end.
type SourceRef struct {
	Path string

	// Minify marks a script source for minification. Minified sources are
	// compressed together as one buffer (cross-file), not per file.
	// Ignored for sprites.
	Minify bool

	// Name is the sprite element name, used as the stylesheet class.
	// Empty => the file name without extension. Ignored for scripts.
	Name string
}

// ArtifactSpec describes one derived artifact: its ordered sources and where
// the output goes. Specs are value types; the coordinator copies them on Add.
type ArtifactSpec struct {
	Kind Kind

	// OutputPath is the primary output location (bundle file or sprite sheet).
	OutputPath string

	// StylesheetPath is the secondary output for sprites. Required for
	// KindSprite, ignored otherwise.
	StylesheetPath string

	// PublicURL optionally overrides the URL under which reference markup
	// addresses the artifact. Empty => OutputPath.
	PublicURL string

	Sources []SourceRef
}

// Key returns the deterministic cache key for this spec: the kind plus a
// short hash over every location identifier (outputs included, so two specs
// writing to different stylesheets get distinct keys).
func (s ArtifactSpec) Key() string {
	locs := make([]string, 0, len(s.Sources)+2)
	locs = append(locs, s.outputs()...)
	for _, src := range s.Sources {
		locs = append(locs, src.Path)
	}
	return keys.CacheKey(s.Kind.String(), locs)
}

// WatchSet returns the full set of paths monitored for this spec: every
// output plus every source. The output is included so a direct external
// edit of the derived artifact is healed too. Re-issued entirely on every
// (re)registration, never diffed.
func (s ArtifactSpec) WatchSet() []string {
	set := make([]string, 0, len(s.Sources)+2)
	set = append(set, s.outputs()...)
	for _, src := range s.Sources {
		set = append(set, src.Path)
	}
	return set
}

func (s ArtifactSpec) outputs() []string {
	if s.Kind == KindSprite && s.StylesheetPath != "" {
		return []string{s.OutputPath, s.StylesheetPath}
	}
	return []string{s.OutputPath}
}

func (s ArtifactSpec) validate() error {
	switch s.Kind {
	case KindScript:
	case KindSprite:
		if s.StylesheetPath == "" {
			return &InvalidInputError{Reason: "sprite spec requires a stylesheet path"}
		}
		if len(s.Sources) == 0 {
			return &InvalidInputError{Reason: "sprite spec requires at least one source"}
		}
	default:
		return &ConfigError{Ref: s.Kind.String()}
	}
	if s.OutputPath == "" {
		return &InvalidInputError{Reason: "spec requires an output path"}
	}
	for _, src := range s.Sources {
		if src.Path == "" {
			return &InvalidInputError{Reason: "source with empty path"}
		}
	}
	return nil
}
