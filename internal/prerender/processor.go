package prerender

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/optimize"
)

// PageResult describes one rendered page.
type PageResult struct {
	URL          string
	Path         string
	Bytes        int
	SnapshotPath string
	Duration     time.Duration
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Processor renders single pages with a shared browser.
type Processor struct {
	browser  browser.Browser
	opts     Options
	sink     *PageSink
	minifier *optimize.Minifier
	limiter  *rate.Limiter
	clock    Clock
	logger   *zap.Logger
}

// NewProcessor wires a Processor. The limiter is built from
// opts.MaxPagesPerSecond.
func NewProcessor(b browser.Browser, opts Options, clock Clock, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.MaxPagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxPagesPerSecond), 1)
	}
	return &Processor{
		browser:  b,
		opts:     opts,
		sink:     NewPageSink(opts.BuildDir, logger),
		minifier: optimize.NewMinifier(),
		limiter:  limiter,
		clock:    clock,
		logger:   logger,
	}
}

// Process renders url (site-relative) and writes its artifacts. The tab is
// closed on every path.
func (p *Processor) Process(ctx context.Context, url string) (result PageResult, err error) {
	start := p.clock.Now()
	result.URL = url

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("rate limit %s: %w", url, err)
		}
	}

	tab, err := p.browser.OpenPage(ctx)
	if err != nil {
		return result, fmt.Errorf("open page for %s: %w", url, err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			p.logger.Debug("close tab", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if err := tab.SetViewport(ctx, p.opts.Width, p.opts.Height); err != nil {
		return result, err
	}
	if err := tab.Navigate(ctx, p.opts.Domain+url); err != nil {
		return result, err
	}
	if _, err := p.sink.Prepare(url); err != nil {
		return result, err
	}

	document, err := tab.HTML(ctx)
	if err != nil {
		return result, err
	}
	document = optimize.InjectBeforeBodyClose(document, p.opts.HTMLToReinject)
	minified, err := p.minifier.HTML(document)
	if err != nil {
		return result, fmt.Errorf("%s: %w", url, err)
	}
	result.Path, err = p.sink.Write(ctx, url, p.opts.PagesName, []byte(minified))
	if err != nil {
		return result, err
	}
	result.Bytes = len(minified)

	if p.opts.Snapshots {
		shot, err := tab.Screenshot(ctx, p.opts.SnapshotQuality)
		if err != nil {
			return result, err
		}
		result.SnapshotPath, err = p.sink.Write(ctx, url, p.opts.SnapshotFileName, shot)
		if err != nil {
			return result, err
		}
	}

	result.Duration = p.clock.Now().Sub(start)
	return result, nil
}
