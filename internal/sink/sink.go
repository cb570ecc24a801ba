// Package sink writes an icon set to disk as an asset-catalog
// AppIcon.appiconset directory.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mavwarf/appicon/internal/export"
	"github.com/Mavwarf/appicon/internal/manifest"
	"github.com/Mavwarf/appicon/internal/paths"
)

const (
	DirName        = "AppIcon.appiconset"
	DescriptorName = "Contents.json"
)

// Failure kinds. Every error returned by Persist matches exactly one.
var (
	ErrCleanup  = errors.New("removing previous icon set")
	ErrCreation = errors.New("creating icon set directory")
	ErrWrite    = errors.New("writing icon set")
)

// ErrUnsafeFilename is the cause reported for image filenames that are not
// a single path element.
var ErrUnsafeFilename = errors.New("filename must not contain path separators")

// PersistError carries the failure kind, the path involved and the cause.
type PersistError struct {
	Kind error
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind.Error(), e.Path, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Path returns the icon set directory under outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, DirName)
}

// IconPath returns where Persist writes filename.
func IconPath(outputDir, filename string) string {
	return filepath.Join(Path(outputDir), filename)
}

// Persist recreates <outputDir>/AppIcon.appiconset from scratch and writes
// the manifest and every image into it. Any existing directory is removed
// first, so repeated calls never merge with older output. A write failure
// stops immediately and leaves whatever was already written in place.
func Persist(outputDir string, m manifest.Manifest, images []export.GeneratedIcon) error {
	dir := Path(outputDir)

	if _, err := os.Lstat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return &PersistError{Kind: ErrCleanup, Path: dir, Err: err}
		}
	}

	if err := os.MkdirAll(dir, paths.DirPerm); err != nil {
		return &PersistError{Kind: ErrCreation, Path: dir, Err: err}
	}

	descriptor := filepath.Join(dir, DescriptorName)
	data, err := manifest.Encode(m)
	if err != nil {
		return &PersistError{Kind: ErrWrite, Path: descriptor, Err: err}
	}
	if err := paths.AtomicWrite(descriptor, data); err != nil {
		return &PersistError{Kind: ErrWrite, Path: descriptor, Err: err}
	}

	for _, img := range images {
		p := filepath.Join(dir, img.Filename)
		if !safeName(img.Filename) {
			return &PersistError{Kind: ErrWrite, Path: p, Err: ErrUnsafeFilename}
		}
		if err := os.WriteFile(p, img.Data, paths.FilePerm); err != nil {
			return &PersistError{Kind: ErrWrite, Path: p, Err: err}
		}
	}
	return nil
}

func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && filepath.IsLocal(name)
}
