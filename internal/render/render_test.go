package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const redSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10" width="10" height="10">
  <rect x="0" y="0" width="10" height="10" fill="#ff0000"/>
</svg>`

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

func assertRed(t *testing.T, c color.Color) {
	t.Helper()
	r, g, b, a := c.RGBA()
	if r>>8 < 250 || g>>8 > 5 || b>>8 > 5 || a>>8 < 250 {
		t.Errorf("pixel = (%d,%d,%d,%d), want red", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestDecodePNG(t *testing.T) {
	src, err := Decode(solidPNG(t, 16, 16, color.NRGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Format() != "png" {
		t.Errorf("Format = %q, want png", src.Format())
	}
	if src.Bounds().Dx() != 16 {
		t.Errorf("Bounds = %v", src.Bounds())
	}
}

func TestDecodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	src, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Format() != "jpeg" {
		t.Errorf("Format = %q, want jpeg", src.Format())
	}
}

func TestDecodeSVG(t *testing.T) {
	src, err := Decode([]byte(redSVG))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Format() != "svg" {
		t.Errorf("Format = %q, want svg", src.Format())
	}
	if src.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Errorf("Bounds = %v", src.Bounds())
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmptySource) {
		t.Errorf("Decode(nil) = %v, want ErrEmptySource", err)
	}
	if _, err := Decode([]byte("definitely not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, err := Decode([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)); err == nil {
		t.Error("expected error for svg without viewBox")
	}
}

const illustratorPrologue = `<?xml version="1.0" encoding="utf-8"?>
<!-- Generator: Adobe Illustrator 27.0.0, SVG Export Plug-In . SVG Version: 6.00 Build 0)  -->
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd" [
	<!ENTITY ns_extend "http://ns.adobe.com/Extensibility/1.0/">
	<!ENTITY ns_ai "http://ns.adobe.com/AdobeIllustrator/10.0/">
]>
`

func TestDecodeSVGLongPrologue(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<!-- ` + strings.Repeat("generated by a very chatty exporter ", 40) + ` -->
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect width="10" height="10" fill="#f00"/></svg>`
	if len(doc) < 1200 {
		t.Fatalf("prologue too short: %d bytes", len(doc))
	}
	src, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Format() != "svg" {
		t.Errorf("Format = %q, want svg", src.Format())
	}
}

func TestDecodeSVGFractionalViewBox(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 0.5 1.2"><rect width="0.5" height="1.2" fill="#00f"/></svg>`
	src, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if src.Bounds() != image.Rect(0, 0, 1, 2) {
		t.Errorf("Bounds = %v, want (0,0)-(1,2)", src.Bounds())
	}
	r, err := NewPNG("", "")
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.Rasterize(context.Background(), src, 32)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if img := decodePNG(t, data); img.Bounds().Dx() != 32 {
		t.Errorf("width = %d, want 32", img.Bounds().Dx())
	}
}

func TestIsSVG(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{redSVG, true},
		{"\xef\xbb\xbf<svg viewBox='0 0 1 1'/>", true},
		{"  \n<!-- c --><svg/>", true},
		{"\x89PNG\r\n", false},
		{"hello <svg>", false},
		{"<?xml version=\"1.0\"?><html><svg/></html>", false},
		{illustratorPrologue + "<svg viewBox='0 0 1 1'/>", true},
		{"<?xml version=\"1.0\"?><!-- " + strings.Repeat("x", 2048) + " --><svg/>", true},
	}
	for _, tt := range tests {
		if got := isSVG([]byte(tt.in)); got != tt.want {
			t.Errorf("isSVG(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRasterizeRasterSource(t *testing.T) {
	src, err := Decode(solidPNG(t, 8, 8, color.NRGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}
	for _, filter := range Filters() {
		t.Run(filter, func(t *testing.T) {
			r, err := NewPNG(filter, "")
			if err != nil {
				t.Fatal(err)
			}
			data, err := r.Rasterize(context.Background(), src, 40)
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			img := decodePNG(t, data)
			if img.Bounds() != image.Rect(0, 0, 40, 40) {
				t.Errorf("bounds = %v, want 40x40", img.Bounds())
			}
			assertRed(t, img.At(20, 20))
		})
	}
}

func TestRasterizeStretchesNonSquare(t *testing.T) {
	src, err := Decode(solidPNG(t, 20, 10, color.NRGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}
	r, _ := NewPNG("", "")
	data, err := r.Rasterize(context.Background(), src, 16)
	if err != nil {
		t.Fatal(err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("bounds = %v, want 16x16", img.Bounds())
	}
}

func TestRasterizeSVGSource(t *testing.T) {
	src, err := Decode([]byte(redSVG))
	if err != nil {
		t.Fatal(err)
	}
	r, _ := NewPNG("", "best")
	data, err := r.Rasterize(context.Background(), src, 64)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	img := decodePNG(t, data)
	if img.Bounds() != image.Rect(0, 0, 64, 64) {
		t.Errorf("bounds = %v, want 64x64", img.Bounds())
	}
	assertRed(t, img.At(32, 32))
}

func TestRasterizeConcurrentSVG(t *testing.T) {
	src, err := Decode([]byte(redSVG))
	if err != nil {
		t.Fatal(err)
	}
	r, _ := NewPNG("", "speed")
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func(edge int) {
			defer wg.Done()
			if _, err := r.Rasterize(context.Background(), src, edge); err != nil {
				errs <- err
			}
		}(16 + i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRasterizeInvalidEdge(t *testing.T) {
	src, _ := Decode(solidPNG(t, 4, 4, color.White))
	r, _ := NewPNG("", "")
	if _, err := r.Rasterize(context.Background(), src, 0); err == nil {
		t.Error("expected error for zero edge")
	}
	if _, err := r.Rasterize(context.Background(), nil, 10); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestRasterizeCanceled(t *testing.T) {
	src, _ := Decode(solidPNG(t, 4, 4, color.White))
	r, _ := NewPNG("", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Rasterize(ctx, src, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewPNGUnknownOptions(t *testing.T) {
	if _, err := NewPNG("lanczos", ""); err == nil {
		t.Error("expected error for unknown filter")
	}
	if _, err := NewPNG("", "ultra"); err == nil {
		t.Error("expected error for unknown compression")
	}
}

func TestCompressionLevelsShrink(t *testing.T) {
	src, _ := Decode(solidPNG(t, 8, 8, color.NRGBA{10, 200, 90, 255}))
	none, _ := NewPNG("nearest", "none")
	best, _ := NewPNG("nearest", "best")
	a, err := none.Rasterize(context.Background(), src, 128)
	if err != nil {
		t.Fatal(err)
	}
	b, err := best.Rasterize(context.Background(), src, 128)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) >= len(a) {
		t.Errorf("best (%d bytes) not smaller than none (%d bytes)", len(b), len(a))
	}
}

// countingRasterizer records the peak number of overlapping calls.
type countingRasterizer struct {
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (c *countingRasterizer) Rasterize(ctx context.Context, _ Source, edge int) ([]byte, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	c.calls.Add(1)
	time.Sleep(time.Millisecond)
	return []byte{byte(edge)}, nil
}

func TestSerialNeverOverlaps(t *testing.T) {
	inner := &countingRasterizer{}
	s := NewSerial(inner)
	defer s.Close()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(edge int) {
			defer wg.Done()
			data, err := s.Rasterize(context.Background(), nil, edge)
			if err != nil {
				t.Errorf("Rasterize: %v", err)
				return
			}
			if len(data) != 1 || int(data[0]) != edge {
				t.Errorf("reply for %d = %v", edge, data)
			}
		}(i + 1)
	}
	wg.Wait()

	if got := inner.calls.Load(); got != 16 {
		t.Errorf("calls = %d, want 16", got)
	}
	if got := inner.peak.Load(); got != 1 {
		t.Errorf("peak concurrency = %d, want 1", got)
	}
}

func TestSerialClosed(t *testing.T) {
	s := NewSerial(&countingRasterizer{})
	s.Close()
	s.Close()
	if _, err := s.Rasterize(context.Background(), nil, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestSerialCanceledContext(t *testing.T) {
	inner := &countingRasterizer{}
	s := NewSerial(inner)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Rasterize(ctx, nil, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
