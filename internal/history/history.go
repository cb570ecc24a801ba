// Package history records generation runs in a local SQLite database.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Run is one recorded generation run.
type Run struct {
	ID         string
	Time       time.Time
	Source     string
	Format     string // decoded source format, e.g. "png" or "svg"
	Width      int    // native source size; 0 when decoding failed
	Height     int
	OutputDir  string // empty for in-memory runs
	Renditions int
	Bytes      int64
	Duration   time.Duration
	Error      string // empty on success
}

// OK reports whether the run succeeded.
func (r Run) OK() bool { return r.Error == "" }

// Rendition is one file produced by a run.
type Rendition struct {
	Filename string
	Pixels   int
	Bytes    int
}

// Store abstracts run history storage.
type Store interface {
	Record(run Run, renditions []Rendition) (string, error)
	Recent(limit int) ([]Run, error)
	Renditions(runID string) ([]Rendition, error)

	// Maintenance
	Clean(days int) (int, error) // remove runs older than days, return removed count
	Clear() error

	Path() string
	Close() error
}

// NewID returns a fresh run identifier.
func NewID() string {
	return uuid.NewString()
}

// Cutoff returns the start of the local day that lies days-1 days before
// today, so Cutoff(1) is midnight today.
func Cutoff(days int) time.Time {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -(days - 1))
}
