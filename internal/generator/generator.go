// Package generator runs a full icon-set generation: load the bundled
// manifest, plan renditions, rasterize them, and optionally persist.
package generator

import (
	"context"
	"fmt"

	"github.com/Mavwarf/appicon/internal/export"
	"github.com/Mavwarf/appicon/internal/manifest"
	"github.com/Mavwarf/appicon/internal/plan"
	"github.com/Mavwarf/appicon/internal/render"
	"github.com/Mavwarf/appicon/internal/sink"
)

// Options configures Generate. The zero value renders with the default
// PNG rasterizer on GOMAXPROCS workers.
type Options struct {
	Rasterizer render.Rasterizer
	Workers    int
	Progress   func(done, total int, filename string)
}

// Plan returns the bundled manifest and its rendition plan.
func Plan() (manifest.Manifest, []plan.Rendition, error) {
	m, err := manifest.Load()
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	return m, plan.Plan(m), nil
}

// Generate renders source into every planned rendition. When outputDir is
// non-empty the set is also written to <outputDir>/AppIcon.appiconset and
// each image's DestinationPath is filled in. Nothing touches the disk
// unless every rendition succeeded.
func Generate(ctx context.Context, source []byte, outputDir string, opts Options) (*export.IconSet, error) {
	m, p, err := Plan()
	if err != nil {
		return nil, err
	}

	src, err := render.Decode(source)
	if err != nil {
		return nil, &export.InvalidImageError{Err: err}
	}

	r := opts.Rasterizer
	if r == nil {
		if r, err = render.NewPNG("", ""); err != nil {
			return nil, fmt.Errorf("default rasterizer: %w", err)
		}
	}

	set, err := export.Export(ctx, r, src, m, p, export.Options{
		Workers:  opts.Workers,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	if outputDir == "" {
		return set, nil
	}
	for i := range set.Images {
		set.Images[i].DestinationPath = sink.IconPath(outputDir, set.Images[i].Filename)
	}
	if err := sink.Persist(outputDir, set.Manifest, set.Images); err != nil {
		return nil, err
	}
	return set, nil
}
