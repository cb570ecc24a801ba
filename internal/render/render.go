// Package render turns a decoded source image into PNG bytes at a given
// square pixel size.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sort"
	"sync"

	"golang.org/x/image/draw"
)

// Rasterizer produces encoded PNG bytes for src scaled to edge × edge.
type Rasterizer interface {
	Rasterize(ctx context.Context, src Source, edge int) ([]byte, error)
}

// DefaultFilter and DefaultCompression are used for empty option strings.
const (
	DefaultFilter      = "catmull-rom"
	DefaultCompression = "default"
)

var filters = map[string]draw.Interpolator{
	"nearest":         draw.NearestNeighbor,
	"approx-bilinear": draw.ApproxBiLinear,
	"bilinear":        draw.BiLinear,
	"catmull-rom":     draw.CatmullRom,
}

var compressions = map[string]png.CompressionLevel{
	"default": png.DefaultCompression,
	"none":    png.NoCompression,
	"speed":   png.BestSpeed,
	"best":    png.BestCompression,
}

// Filters lists the accepted filter names, sorted.
func Filters() []string { return keys(filters) }

// Compressions lists the accepted compression names, sorted.
func Compressions() []string { return keys(compressions) }

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PNG scales with an x/image/draw interpolator and encodes with image/png.
// It holds no per-call state and is safe for concurrent use.
type PNG struct {
	interp  draw.Interpolator
	encoder *png.Encoder
}

// NewPNG returns a PNG rasterizer for the named filter and compression
// level. Empty names select the defaults.
func NewPNG(filter, compression string) (*PNG, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	if compression == "" {
		compression = DefaultCompression
	}
	interp, ok := filters[filter]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q (supported: %v)", filter, Filters())
	}
	level, ok := compressions[compression]
	if !ok {
		return nil, fmt.Errorf("unknown compression %q (supported: %v)", compression, Compressions())
	}
	return &PNG{
		interp:  interp,
		encoder: &png.Encoder{CompressionLevel: level, BufferPool: &bufferPool{}},
	}, nil
}

func (r *PNG) Rasterize(ctx context.Context, src Source, edge int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("nil source")
	}
	img, err := src.Render(edge, r.interp)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// bufferPool satisfies png.EncoderBufferPool. png.Encoder may be shared
// across goroutines only when its pool is concurrency-safe.
type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}
