// Package manifest models the asset-catalog icon descriptor (Contents.json)
// and loads the bundled list of required renditions.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion is the only descriptor version this package reads and writes.
const FormatVersion = 1

//go:embed Contents.json
var bundled []byte

// ErrLoad is the kind of every error returned by Load and Decode.
var ErrLoad = errors.New("manifest load failed")

// LoadError reports a missing or malformed manifest. The bundled manifest
// ships with the binary, so seeing one at runtime is a packaging defect.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	if e == nil || e.Err == nil {
		return ErrLoad.Error()
	}
	return fmt.Sprintf("%s: %v", ErrLoad.Error(), e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// Manifest describes the icon set: every rendition the catalog expects.
type Manifest struct {
	Images []RenditionSpec `json:"images"`
	Info   Info            `json:"info"`
}

// RenditionSpec is one required output image. An empty Filename marks a
// slot that is declared but never rendered.
type RenditionSpec struct {
	Filename string `json:"filename,omitempty"`
	Idiom    string `json:"idiom"`
	Scale    string `json:"scale"` // "2x"
	Size     string `json:"size"`  // "83.5x83.5"
	Subtype  string `json:"subtype,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Info carries descriptor metadata. Asset catalogs store the format
// version under the "version" key.
type Info struct {
	Author        string `json:"author"`
	FormatVersion int    `json:"version"`
}

// Load decodes the bundled Contents.json.
func Load() (Manifest, error) {
	if len(bundled) == 0 {
		return Manifest{}, &LoadError{Err: errors.New("bundled Contents.json is empty")}
	}
	return Decode(bundled)
}

// Bundled returns a copy of the raw bundled Contents.json.
func Bundled() []byte {
	return bytes.Clone(bundled)
}

// Decode parses a Contents.json document and checks its format version.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &LoadError{Err: fmt.Errorf("parsing Contents.json: %w", err)}
	}
	if m.Info.FormatVersion != FormatVersion {
		return Manifest{}, &LoadError{Err: fmt.Errorf("unsupported format version %d (want %d)", m.Info.FormatVersion, FormatVersion)}
	}
	return m, nil
}

// Encode renders m as pretty-printed JSON with a trailing newline, the
// layout Xcode writes.
func Encode(m Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding Contents.json: %w", err)
	}
	return append(data, '\n'), nil
}

// Filenames returns the distinct non-empty filenames of m in
// first-occurrence order.
func (m Manifest) Filenames() []string {
	seen := make(map[string]bool, len(m.Images))
	var out []string
	for _, img := range m.Images {
		if img.Filename == "" || seen[img.Filename] {
			continue
		}
		seen[img.Filename] = true
		out = append(out, img.Filename)
	}
	return out
}
