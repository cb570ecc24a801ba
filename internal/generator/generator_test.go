package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mavwarf/appicon/internal/export"
	"github.com/Mavwarf/appicon/internal/render"
	"github.com/Mavwarf/appicon/internal/sink"
)

func sourcePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.NRGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestGenerateEndToEnd(t *testing.T) {
	out := t.TempDir()
	_, p, err := Plan()
	if err != nil {
		t.Fatal(err)
	}
	r, err := render.NewPNG("nearest", "speed")
	if err != nil {
		t.Fatal(err)
	}

	set, err := Generate(context.Background(), sourcePNG(t), out, Options{Rasterizer: r})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(set.Images) != len(p) || len(p) != 35 {
		t.Fatalf("len(Images) = %d, plan = %d, want 35", len(set.Images), len(p))
	}

	entries, err := os.ReadDir(sink.Path(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1+len(p) {
		t.Errorf("files = %d, want %d", len(entries), 1+len(p))
	}

	for _, gi := range set.Images {
		if gi.DestinationPath != filepath.Join(out, sink.DirName, gi.Filename) {
			t.Errorf("%s: DestinationPath = %q", gi.Filename, gi.DestinationPath)
		}
		data, err := os.ReadFile(gi.DestinationPath)
		if err != nil {
			t.Fatal(err)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: %v", gi.Filename, err)
		}
		if cfg.Width != gi.Pixels || cfg.Height != gi.Pixels {
			t.Errorf("%s: %dx%d, want %d", gi.Filename, cfg.Width, cfg.Height, gi.Pixels)
		}
	}
}

func TestGenerateInMemory(t *testing.T) {
	cwd := t.TempDir()
	t.Chdir(cwd)

	set, err := Generate(context.Background(), sourcePNG(t), "", Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Images) != 35 {
		t.Errorf("len(Images) = %d, want 35", len(set.Images))
	}
	for _, gi := range set.Images {
		if gi.DestinationPath != "" {
			t.Errorf("%s: DestinationPath = %q, want empty", gi.Filename, gi.DestinationPath)
		}
	}
	if entries, _ := os.ReadDir(cwd); len(entries) != 0 {
		t.Errorf("in-memory generation wrote %d entries", len(entries))
	}
}

type failOn struct {
	edge int
	next render.Rasterizer
}

func (f failOn) Rasterize(ctx context.Context, src render.Source, edge int) ([]byte, error) {
	if edge == f.edge {
		return nil, errors.New("renderer refused")
	}
	return f.next.Rasterize(ctx, src, edge)
}

func TestGenerateFailureWritesNothing(t *testing.T) {
	out := t.TempDir()
	next, _ := render.NewPNG("nearest", "speed")
	_, err := Generate(context.Background(), sourcePNG(t), out, Options{Rasterizer: failOn{edge: 58, next: next}})
	if !errors.Is(err, export.ErrInvalidImage) {
		t.Fatalf("err = %v, want ErrInvalidImage", err)
	}
	if _, err := os.Stat(sink.Path(out)); !os.IsNotExist(err) {
		t.Errorf("icon set directory exists after failed export: %v", err)
	}
}

func TestGenerateInvalidSource(t *testing.T) {
	out := t.TempDir()
	_, err := Generate(context.Background(), []byte("not an image"), out, Options{})
	var ie *export.InvalidImageError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *InvalidImageError", err)
	}
	if ie.Filename != "" {
		t.Errorf("Filename = %q, want empty for source errors", ie.Filename)
	}
	if _, err := os.Stat(sink.Path(out)); !os.IsNotExist(err) {
		t.Error("icon set directory created for invalid source")
	}
}

func TestGenerateUnwritableOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	r, _ := render.NewPNG("nearest", "speed")
	set, err := Generate(context.Background(), sourcePNG(t), file, Options{Rasterizer: r})
	if set != nil {
		t.Error("expected nil IconSet on persist failure")
	}
	if !errors.Is(err, sink.ErrCreation) && !errors.Is(err, sink.ErrWrite) {
		t.Errorf("err = %v, want creation or write error", err)
	}
}

func TestGenerateSerialRasterizer(t *testing.T) {
	next, _ := render.NewPNG("nearest", "speed")
	s := render.NewSerial(next)
	defer s.Close()
	set, err := Generate(context.Background(), sourcePNG(t), "", Options{Rasterizer: s, Workers: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Images) != 35 {
		t.Errorf("len(Images) = %d, want 35", len(set.Images))
	}
}
