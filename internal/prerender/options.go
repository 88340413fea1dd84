package prerender

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Options is the pipeline's view of the site configuration.
type Options struct {
	// BuildDir receives one directory per URL.
	BuildDir string
	// URLs are site-relative paths, each starting with "/".
	URLs []string
	// Domain is prefixed to every URL to navigate, e.g. "http://localhost:8000".
	Domain    string
	BatchSize int
	Headless  bool

	Width  int
	Height int

	Snapshots        bool
	SnapshotQuality  int
	PagesName        string
	SnapshotFileName string
	// HTMLToReinject is inserted before the first </body> of every page.
	HTMLToReinject string

	NavigationTimeout time.Duration
	// MaxPagesPerSecond throttles navigations; zero disables the limit.
	MaxPagesPerSecond float64
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	if strings.TrimSpace(o.BuildDir) == "" {
		return errors.New("build dir is required")
	}
	if o.Domain == "" {
		return errors.New("domain is required")
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", o.BatchSize)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.PagesName == "" {
		return errors.New("pages name is required")
	}
	if o.Snapshots {
		if o.SnapshotFileName == "" {
			return errors.New("snapshot file name is required when snapshots are enabled")
		}
		// Chrome drops a zero quality and falls back to its own default.
		if o.SnapshotQuality < 1 || o.SnapshotQuality > 100 {
			return fmt.Errorf("snapshot quality must be within 1..100, got %d", o.SnapshotQuality)
		}
	}
	for _, u := range o.URLs {
		if !strings.HasPrefix(u, "/") {
			return fmt.Errorf("url %q must start with /", u)
		}
	}
	if o.MaxPagesPerSecond < 0 {
		return errors.New("max pages per second must be >= 0")
	}
	return nil
}
