// Package export rasterizes every planned rendition of a source image
// concurrently and gathers the results into an IconSet.
package export

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Mavwarf/appicon/internal/manifest"
	"github.com/Mavwarf/appicon/internal/plan"
	"github.com/Mavwarf/appicon/internal/render"
)

// ErrInvalidImage is the kind of every error returned by Export.
var ErrInvalidImage = errors.New("invalid image")

// InvalidImageError reports a rendition that could not be produced. An
// empty Filename means the source itself was unusable.
type InvalidImageError struct {
	Filename string
	Err      error
}

func (e *InvalidImageError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("%s: source: %v", ErrInvalidImage.Error(), e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrInvalidImage.Error(), e.Filename, e.Err)
}

func (e *InvalidImageError) Unwrap() []error { return []error{ErrInvalidImage, e.Err} }

// GeneratedIcon is one encoded rendition.
type GeneratedIcon struct {
	Filename string
	Pixels   int
	Data     []byte
	// DestinationPath is set only when the set is persisted to disk.
	DestinationPath string
}

// IconSet is the result of one generation: the manifest that describes the
// renditions and the renditions themselves, in plan order.
type IconSet struct {
	Manifest manifest.Manifest
	Images   []GeneratedIcon
	// Source is the decoded image every rendition was drawn from.
	Source render.Source
}

// TotalBytes sums the encoded size of all images.
func (s *IconSet) TotalBytes() int64 {
	var n int64
	for _, img := range s.Images {
		n += int64(len(img.Data))
	}
	return n
}

// Options tunes Export.
type Options struct {
	// Workers bounds concurrent Rasterize calls; <= 0 uses GOMAXPROCS.
	Workers int
	// Progress, if set, is called by the collecting goroutine after each
	// rendition completes. Calls never overlap.
	Progress func(done, total int, filename string)
}

type result struct {
	index int
	data  []byte
}

// Export rasterizes each entry of p from src. It is all-or-nothing: the
// first failed or empty rendition aborts the batch, cancels the remaining
// work, and is returned as an *InvalidImageError. Results from work still
// in flight at that point are dropped.
func Export(ctx context.Context, r render.Rasterizer, src render.Source, m manifest.Manifest, p []plan.Rendition, opts Options) (*IconSet, error) {
	if r == nil {
		return nil, &InvalidImageError{Err: errors.New("nil rasterizer")}
	}
	if src == nil {
		return nil, &InvalidImageError{Err: errors.New("nil source")}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// Buffered to len(p) so workers never block on a coordinator that
	// has already returned.
	results := make(chan result, len(p))
	finished := make(chan error, 1)

	go func() {
		for i, rd := range p {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return &InvalidImageError{Filename: rd.Filename, Err: err}
				}
				data, err := r.Rasterize(gctx, src, rd.Pixels)
				if err != nil {
					return &InvalidImageError{Filename: rd.Filename, Err: err}
				}
				if len(data) == 0 {
					return &InvalidImageError{Filename: rd.Filename, Err: errors.New("rasterizer produced no data")}
				}
				results <- result{index: i, data: data}
				return nil
			})
		}
		finished <- g.Wait()
	}()

	images := make([]GeneratedIcon, len(p))
	for received := 0; received < len(p); {
		select {
		case res := <-results:
			rd := p[res.index]
			images[res.index] = GeneratedIcon{Filename: rd.Filename, Pixels: rd.Pixels, Data: res.data}
			received++
			if opts.Progress != nil {
				opts.Progress(received, len(p), rd.Filename)
			}
		case err := <-finished:
			if err != nil {
				return nil, err
			}
			// Every worker succeeded; the rest is already buffered.
			finished = nil
		}
	}

	return &IconSet{Manifest: m, Images: images, Source: src}, nil
}
