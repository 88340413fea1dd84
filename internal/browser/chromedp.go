package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	lifecycleNetworkIdle     = "networkIdle"
)

// documentScript serializes the rendered document the way a browser would
// save it: doctype first, then the root element.
const documentScript = `(() => {
  const dt = document.doctype;
  const doctype = dt ? new XMLSerializer().serializeToString(dt) : "";
  return doctype + document.documentElement.outerHTML;
})()`

// Config controls the Chrome instance.
type Config struct {
	Headless          bool
	NoSandbox         bool
	ExecPath          string
	NavigationTimeout time.Duration
	Logger            *zap.Logger
}

// Chromedp is a Browser backed by a single Chrome process.
type Chromedp struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
	closeOnce     sync.Once
	closeErr      error
}

// Launch starts Chrome and waits until it accepts commands.
func Launch(ctx context.Context, cfg Config) (*Chromedp, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Debug("browser launched", zap.Bool("headless", cfg.Headless))

	return &Chromedp{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// OpenPage creates a new tab in the shared browser.
func (b *Chromedp) OpenPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	tracker := newIdleTracker()
	chromedp.ListenTarget(tabCtx, tracker.observe)
	return &chromedpPage{
		ctx:     tabCtx,
		cancel:  cancel,
		stop:    stop,
		tracker: tracker,
		timeout: b.cfg.NavigationTimeout,
	}, nil
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Chromedp) Close() error {
	b.closeOnce.Do(func() {
		if err := chromedp.Cancel(b.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.closeErr = fmt.Errorf("close browser: %w", err)
		}
		b.browserCancel()
		b.allocCancel()
		b.logger.Debug("browser closed")
	})
	return b.closeErr
}

type chromedpPage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	tracker *idleTracker
	timeout time.Duration
	once    sync.Once
}

func (p *chromedpPage) SetViewport(ctx context.Context, width, height int) error {
	if err := p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	return nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	p.tracker.reset()
	var loader cdp.LoaderID
	navigate := chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		loader = loaderID
		return nil
	})
	if err := chromedp.Run(navCtx, navigate); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	select {
	case <-p.tracker.expect(loader):
		return nil
	case <-navCtx.Done():
		return &NavigationError{URL: url, Err: fmt.Errorf("waiting for network idle: %w", navCtx.Err())}
	}
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.Evaluate(documentScript, &html)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

// Screenshot captures a JPEG. The quality parameter is omitted from the
// protocol call when zero, so 0 means Chrome's default quality.
func (p *chromedpPage) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	})
	if err := p.run(ctx, capture); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. Later calls are no-ops.
func (p *chromedpPage) Close() error {
	var err error
	p.once.Do(func() {
		p.stop()
		if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close tab: %w", cerr)
		}
		p.cancel()
	})
	return err
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// idleTracker turns Chrome lifecycle events into a "network idle" signal for
// one document, identified by the loader ID of its navigation.
type idleTracker struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]struct{}
	loader cdp.LoaderID
	idle   chan struct{}
	fired  bool
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		seen: make(map[cdp.LoaderID]struct{}),
		idle: make(chan struct{}),
	}
}

// reset forgets everything observed so far.
func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[cdp.LoaderID]struct{})
	t.loader = ""
	t.fired = false
	t.idle = make(chan struct{})
}

// expect returns a channel closed once loader reports network idle. An empty
// loader means a same-document navigation, which is idle right away.
func (t *idleTracker) expect(loader cdp.LoaderID) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loader = loader
	if _, ok := t.seen[loader]; ok || loader == "" {
		t.fire()
	}
	return t.idle
}

func (t *idleTracker) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != lifecycleNetworkIdle {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[e.LoaderID] = struct{}{}
	if t.loader != "" && e.LoaderID == t.loader {
		t.fire()
	}
}

func (t *idleTracker) fire() {
	if t.fired {
		return
	}
	t.fired = true
	close(t.idle)
}
