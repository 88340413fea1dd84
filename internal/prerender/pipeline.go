package prerender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/batch"
	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/progress"
)

// Launcher starts the browser shared by a run.
type Launcher func(ctx context.Context) (browser.Browser, error)

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Report summarizes a run. Err is set when the run stopped early.
type Report struct {
	RunID    uuid.UUID
	Pages    []PageResult
	Batches  int
	Duration time.Duration
	Err      error
}

// Pipeline prerenders every configured URL with one browser.
type Pipeline struct {
	opts    Options
	launch  Launcher
	emitter progress.Emitter
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger
}

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Launcher Launcher
	Emitter  progress.Emitter
	Clock    Clock
	IDs      IDGenerator
	Logger   *zap.Logger
}

// NewPipeline validates opts and returns a ready Pipeline.
func NewPipeline(opts Options, deps Deps) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("prerender options: %w", err)
	}
	if deps.Launcher == nil {
		return nil, fmt.Errorf("browser launcher is required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		opts:    opts,
		launch:  deps.Launcher,
		emitter: deps.Emitter,
		clock:   deps.Clock,
		ids:     deps.IDs,
		logger:  logger,
	}, nil
}

// Generate renders all pages. Failures never escape: they are logged and
// returned in Report.Err so the caller can carry on.
func (p *Pipeline) Generate(ctx context.Context) Report {
	start := p.clock.Now()
	var report Report

	runID, err := p.ids.NewRunID()
	if err != nil {
		report.Err = err
		p.logger.Error("static page generation failed", zap.Error(err))
		return report
	}
	report.RunID = runID
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Note: p.opts.BuildDir})

	err = p.run(ctx, &report)
	report.Duration = p.clock.Now().Sub(start)
	if err != nil {
		report.Err = err
		p.emit(progress.Event{
			RunID: runID,
			Stage: progress.StageRunError,
			Dur:   report.Duration,
			Note:  err.Error(),
		})
		p.logger.Error("static page generation failed",
			zap.String("run_id", runID.String()),
			zap.Int("pages_written", len(report.Pages)),
			zap.Error(err),
		)
		return report
	}

	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Dur: report.Duration})
	p.logger.Info("Done!")
	p.logger.Info("static site ready",
		zap.String("dir", p.opts.BuildDir),
		zap.Int("pages", len(report.Pages)),
		zap.Duration("dur", report.Duration),
	)
	return report
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	b, err := p.launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			p.logger.Warn("close browser", zap.Error(cerr))
		}
	}()

	proc := NewProcessor(b, p.opts, p.clock, p.logger)
	var mu sync.Mutex
	handler := func(ctx context.Context, url string) error {
		full := p.opts.Domain + url
		p.emit(progress.Event{RunID: report.RunID, Stage: progress.StagePageStart, URL: full})
		result, err := proc.Process(ctx, url)
		if err != nil {
			p.emit(progress.Event{
				RunID: report.RunID,
				Stage: progress.StagePageError,
				URL:   full,
				Note:  err.Error(),
			})
			return err
		}
		p.emit(progress.Event{
			RunID: report.RunID,
			Stage: progress.StagePageDone,
			URL:   full,
			Bytes: int64(result.Bytes),
			Dur:   result.Duration,
		})
		mu.Lock()
		report.Pages = append(report.Pages, result)
		mu.Unlock()
		return nil
	}
	onBatch := func(index, total int) {
		report.Batches = index
		p.emit(progress.Event{
			RunID:   report.RunID,
			Stage:   progress.StageBatchStart,
			Batch:   index,
			Batches: total,
		})
	}
	return batch.Run(ctx, p.opts.URLs, p.opts.BatchSize, handler, batch.WithBatchStart(onBatch))
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}
