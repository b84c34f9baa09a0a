package bundle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Minifier compresses one buffer. The script processor feeds it the
// concatenation of every minify-class source, so minification is cross-file.
type Minifier interface {
	Minify(data []byte) ([]byte, error)
}

// Script bundles text sources: verbatim sources are concatenated first in
// their original relative order, then the minify-class sources are
// concatenated (same rule) and minified as one unit, appended after the
// verbatim block. An empty source list is a valid no-op.
type Script struct {
	m Minifier
}

var _ Processor = (*Script)(nil)

func NewScript(m Minifier) *Script {
	if m == nil {
		m = NewMinifier("application/javascript")
	}
	return &Script{m: m}
}

func (s *Script) Process(_ context.Context, req Request) (*Output, error) {
	var verbatim, compress bytes.Buffer
	for _, a := range req.Assets {
		buf := &verbatim
		if a.Minify {
			buf = &compress
		}
		buf.Write(a.Data)
		// separate files so the last statement of one cannot run into the
		// first of the next
		if n := len(a.Data); n > 0 && a.Data[n-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	out := verbatim
	if compress.Len() > 0 {
		minified, err := s.m.Minify(compress.Bytes())
		if err != nil {
			return nil, fmt.Errorf("bundle: minify: %w", err)
		}
		out.Write(minified)
	}
	return &Output{Content: out.Bytes()}, nil
}

// TdewolffMinifier adapts tdewolff/minify to the Minifier interface.
type TdewolffMinifier struct {
	m         *minify.M
	mediatype string
}

// NewMinifier returns a minifier for the given media type. Script and
// stylesheet handlers are registered; other types pass through tdewolff's
// suffix matching.
func NewMinifier(mediatype string) *TdewolffMinifier {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("text/css", css.Minify)
	return &TdewolffMinifier{m: m, mediatype: mediatype}
}

func (t *TdewolffMinifier) Minify(data []byte) ([]byte, error) {
	return t.m.Bytes(t.mediatype, data)
}
