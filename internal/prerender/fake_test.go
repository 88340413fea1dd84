package prerender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/progress"
)

// fakeBrowser serves canned documents keyed by full URL.
type fakeBrowser struct {
	mu        sync.Mutex
	pages     map[string]string
	failNav   map[string]error
	navDelay  time.Duration
	opened    atomic.Int32
	closedTab atomic.Int32
	closed    atomic.Int32
	visited   []string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func newFakeBrowser(pages map[string]string) *fakeBrowser {
	return &fakeBrowser{pages: pages, failNav: map[string]error{}}
}

func (b *fakeBrowser) OpenPage(context.Context) (browser.Page, error) {
	b.opened.Add(1)
	return &fakePage{b: b}, nil
}

func (b *fakeBrowser) Close() error {
	b.closed.Add(1)
	return nil
}

func (b *fakeBrowser) Visited() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.visited...)
}

type fakePage struct {
	b      *fakeBrowser
	url    string
	width  int
	height int
	closed bool
}

func (p *fakePage) SetViewport(_ context.Context, width, height int) error {
	p.width, p.height = width, height
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	n := p.b.inFlight.Add(1)
	defer p.b.inFlight.Add(-1)
	for {
		peak := p.b.maxFlight.Load()
		if n <= peak || p.b.maxFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	p.b.mu.Lock()
	p.b.visited = append(p.b.visited, url)
	failure := p.b.failNav[url]
	p.b.mu.Unlock()

	if p.b.navDelay > 0 {
		select {
		case <-time.After(p.b.navDelay):
		case <-ctx.Done():
			return &browser.NavigationError{URL: url, Err: ctx.Err()}
		}
	}
	if failure != nil {
		return &browser.NavigationError{URL: url, Err: failure}
	}
	p.url = url
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	doc, ok := p.b.pages[p.url]
	if !ok {
		return "", fmt.Errorf("no page for %s", p.url)
	}
	return doc, nil
}

func (p *fakePage) Screenshot(_ context.Context, quality int) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg:%s:%dx%d:q%d", p.url, p.width, p.height, quality)), nil
}

func (p *fakePage) Close() error {
	if !p.closed {
		p.closed = true
		p.b.closedTab.Add(1)
	}
	return nil
}

func document(title string) string {
	return "<!DOCTYPE html>\n<html>\n<head><title>" + title + "</title></head>\n<body>\n  <h1>" +
		title + "</h1>\n  <!-- rendered -->\n</body>\n</html>"
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type staticIDs struct {
	err error
}

func (s staticIDs) NewRunID() (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func launcherFor(b *fakeBrowser) Launcher {
	return func(context.Context) (browser.Browser, error) {
		return b, nil
	}
}

var errRefused = errors.New("net::ERR_CONNECTION_REFUSED")

func hasPrefixAll(items []string, prefix string) bool {
	for _, item := range items {
		if !strings.HasPrefix(item, prefix) {
			return false
		}
	}
	return true
}
