package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngAsset(t *testing.T, name string, w, h int, c color.Color) Asset {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return Asset{Path: name + ".png", Data: buf.Bytes(), Name: name}
}

func TestSpriteEmptySourceSetFails(t *testing.T) {
	s := NewSprite()
	_, err := s.Process(context.Background(), Request{ImageURL: "icons.png"})
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
}

// TestSpriteGeometry: heights [10,20,30] with padding 2 stack at Y offsets
// [0,12,34]; canvas width is the max source width, height the sum of
// per-element height+padding (66).
func TestSpriteGeometry(t *testing.T) {
	s := NewSprite()
	out, err := s.Process(context.Background(), Request{
		ImageURL: "icons.png",
		Assets: []Asset{
			pngAsset(t, "first", 50, 10, color.RGBA{R: 255, A: 255}),
			pngAsset(t, "second", 30, 20, color.RGBA{G: 255, A: 255}),
			pngAsset(t, "third", 40, 30, color.RGBA{B: 255, A: 255}),
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	sheet, err := png.Decode(bytes.NewReader(out.Content))
	if err != nil {
		t.Fatalf("decode sheet: %v", err)
	}
	if b := sheet.Bounds(); b.Dx() != 50 || b.Dy() != 66 {
		t.Fatalf("canvas = %dx%d, want 50x66", b.Dx(), b.Dy())
	}

	// each element's pixels land at its offset; the padding rows stay empty
	probe := []struct {
		y    int
		want color.RGBA
	}{
		{0, color.RGBA{R: 255, A: 255}},
		{12, color.RGBA{G: 255, A: 255}},
		{34, color.RGBA{B: 255, A: 255}},
		{10, color.RGBA{}}, // padding row after first element
	}
	for _, p := range probe {
		r, g, b, a := sheet.At(0, p.y).RGBA()
		wr, wg, wb, wa := p.want.RGBA()
		if r != wr || g != wg || b != wb || a != wa {
			t.Fatalf("pixel (0,%d) = %v, want %v", p.y, sheet.At(0, p.y), p.want)
		}
	}

	css := string(out.Stylesheet)
	for _, off := range []int{0, 12, 34} {
		if !strings.Contains(css, fmt.Sprintf("no-repeat 0 -%dpx", off)) {
			t.Fatalf("stylesheet missing offset %d:\n%s", off, css)
		}
	}
}

func TestSpriteStylesheetCacheBuster(t *testing.T) {
	s := NewSprite()
	req := Request{
		ImageURL: "sprites/icons.png",
		Assets:   []Asset{pngAsset(t, "only", 8, 8, color.RGBA{R: 9, A: 255})},
	}
	out, err := s.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	css := string(out.Stylesheet)
	if !strings.Contains(css, `url("sprites/icons.png?v=`) {
		t.Fatalf("stylesheet lacks versioned image reference:\n%s", css)
	}

	// same inputs => same sheet bytes => same cache buster
	again, err := s.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if string(again.Stylesheet) != css {
		t.Fatalf("sprite pass is not deterministic")
	}
}

func TestSpriteElementNameDefaultsToFileName(t *testing.T) {
	s := NewSprite()
	a := pngAsset(t, "ignored", 4, 4, color.RGBA{A: 255})
	a.Path = "icons/arrow-left.png"
	a.Name = ""
	out, err := s.Process(context.Background(), Request{ImageURL: "x.png", Assets: []Asset{a}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(string(out.Stylesheet), ".arrow-left {") {
		t.Fatalf("stylesheet missing derived class:\n%s", out.Stylesheet)
	}
}

func TestSpriteRejectsUndecodableSource(t *testing.T) {
	s := NewSprite()
	_, err := s.Process(context.Background(), Request{
		ImageURL: "x.png",
		Assets:   []Asset{{Path: "broken.png", Data: []byte("not a png")}},
	})
	if err == nil || !strings.Contains(err.Error(), "broken.png") {
		t.Fatalf("err = %v, want decode failure naming the source", err)
	}
}
