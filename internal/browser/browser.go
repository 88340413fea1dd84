// Package browser exposes a headless browser as a capability: one shared
// Browser hands out independently owned Pages.
package browser

import (
	"context"
	"fmt"
)

// Browser opens pages. It is safe for concurrent use; pages never share state.
type Browser interface {
	OpenPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browser tab. The caller owns it and must Close it.
type Page interface {
	SetViewport(ctx context.Context, width, height int) error
	// Navigate loads url and returns once the network is idle.
	Navigate(ctx context.Context, url string) error
	// HTML returns the serialized DOM, doctype included.
	HTML(ctx context.Context) (string, error)
	// Screenshot captures the viewport as JPEG at the given quality (1-100).
	// Chrome never receives a quality of 0 and uses its default instead.
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	Close() error
}

// NavigationError reports a page that never reached network idle.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
