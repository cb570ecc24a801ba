// Package plan expands a manifest into the deduplicated list of renditions
// that must be rasterized.
package plan

import (
	"math"
	"strconv"
	"strings"

	"github.com/Mavwarf/appicon/internal/manifest"
)

// Rendition is one file to produce: a square PNG of Pixels × Pixels.
type Rendition struct {
	Filename string
	Idiom    string
	Points   float64 // nominal edge length in points
	Factor   float64 // scale factor
	Target   float64 // Points × Factor, before rounding
	Pixels   int
}

// Plan walks m.Images in order and returns one Rendition per distinct
// filename. Entries without a filename, duplicates of an already planned
// filename, and entries whose size or scale cannot be parsed are dropped.
//
// Pixel edges are Target rounded half away from zero; a target that is not
// finite or rounds below one pixel counts as unparsable.
func Plan(m manifest.Manifest) []Rendition {
	seen := make(map[string]bool, len(m.Images))
	out := make([]Rendition, 0, len(m.Images))
	for _, img := range m.Images {
		if img.Filename == "" || seen[img.Filename] {
			continue
		}
		r, ok := expand(img)
		if !ok {
			continue
		}
		seen[img.Filename] = true
		out = append(out, r)
	}
	return out
}

func expand(img manifest.RenditionSpec) (Rendition, bool) {
	points, ok := leading(img.Size)
	if !ok {
		return Rendition{}, false
	}
	factor, ok := leading(img.Scale)
	if !ok {
		return Rendition{}, false
	}
	target := points * factor
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return Rendition{}, false
	}
	px := math.Round(target)
	if px < 1 || px > math.MaxInt32 {
		return Rendition{}, false
	}
	return Rendition{
		Filename: img.Filename,
		Idiom:    img.Idiom,
		Points:   points,
		Factor:   factor,
		Target:   target,
		Pixels:   int(px),
	}, true
}

// leading parses the first "x"-separated token of s ("83.5x83.5" → 83.5,
// "2x" → 2).
func leading(s string) (float64, bool) {
	tok, _, _ := strings.Cut(strings.TrimSpace(s), "x")
	if tok == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Filenames returns the filenames of p in order.
func Filenames(p []Rendition) []string {
	out := make([]string, len(p))
	for i, r := range p {
		out[i] = r.Filename
	}
	return out
}
