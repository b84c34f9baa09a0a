package bundle

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"path/filepath"
	"strings"

	// decoders for the common sprite source formats
	_ "image/gif"
	_ "image/jpeg"

	"github.com/unkn0wn-root/assetforge/fsio"
)

// DefaultPadding is the vertical gap between stacked sprite elements.
const DefaultPadding = 2

// Sprite composes source images into one vertically stacked sheet and emits
// a companion stylesheet with one rule per element. Elements keep input
// order; the Y offset of an element is the cumulative height (each including
// its padding) of all preceding elements. Canvas width is the max source
// width, canvas height the sum of heights plus per-element padding.
type Sprite struct {
	padding int
}

var _ Processor = (*Sprite)(nil)

func NewSprite() *Sprite {
	return &Sprite{padding: DefaultPadding}
}

// element is ephemeral layout state for one composition pass.
type element struct {
	name    string
	width   int
	height  int
	offsetY int
	img     image.Image
}

func (s *Sprite) Process(_ context.Context, req Request) (*Output, error) {
	if len(req.Assets) == 0 {
		return nil, ErrNoSources
	}

	elems := make([]element, 0, len(req.Assets))
	canvasW, canvasH := 0, 0
	for _, a := range req.Assets {
		img, _, err := image.Decode(bytes.NewReader(a.Data))
		if err != nil {
			return nil, fmt.Errorf("bundle: decode %q: %w", a.Path, err)
		}
		b := img.Bounds()
		e := element{
			name:    a.Name,
			width:   b.Dx(),
			height:  b.Dy(),
			offsetY: canvasH,
			img:     img,
		}
		if e.name == "" {
			e.name = elementName(a.Path)
		}
		if e.width > canvasW {
			canvasW = e.width
		}
		canvasH += e.height + s.padding
		elems = append(elems, e)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	for _, e := range elems {
		r := image.Rect(0, e.offsetY, e.width, e.offsetY+e.height)
		draw.Draw(canvas, r, e.img, e.img.Bounds().Min, draw.Src)
	}

	var sheet bytes.Buffer
	if err := png.Encode(&sheet, canvas); err != nil {
		return nil, fmt.Errorf("bundle: encode sprite sheet: %w", err)
	}

	// the cache buster is the hash of the sheet actually written, so a
	// regenerated sheet always changes the stylesheet too
	tag := fsio.Sum(sheet.Bytes()).Tag()
	stylesheet := renderStylesheet(elems, req.ImageURL, tag)

	return &Output{Content: sheet.Bytes(), Stylesheet: stylesheet}, nil
}

func renderStylesheet(elems []element, imageURL, tag string) []byte {
	var b strings.Builder
	for _, e := range elems {
		fmt.Fprintf(&b, ".%s {\n", e.name)
		fmt.Fprintf(&b, "\tbackground: url(%q) no-repeat 0 -%dpx;\n", imageURL+"?v="+tag, e.offsetY)
		fmt.Fprintf(&b, "\twidth: %dpx;\n", e.width)
		fmt.Fprintf(&b, "\theight: %dpx;\n", e.height)
		b.WriteString("}\n")
	}
	return []byte(b.String())
}

func elementName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
