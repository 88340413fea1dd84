package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/progress"
)

// LogSink narrates a run on the console: one line per batch and per page.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logEvent(evt)
	}
	return nil
}

func (s *LogSink) logEvent(evt progress.Event) {
	run := zap.String("run_id", evt.RunID.String())
	switch evt.Stage {
	case progress.StageRunStart:
		s.logger.Debug("prerender started", run, zap.String("note", evt.Note))
	case progress.StageBatchStart:
		s.logger.Info(fmt.Sprintf("batch %d of %d", evt.Batch, evt.Batches), run)
	case progress.StagePageStart:
		s.logger.Info(evt.URL, run)
	case progress.StagePageDone:
		s.logger.Debug("page written",
			run,
			zap.String("url", evt.URL),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
		)
	case progress.StagePageError:
		s.logger.Warn("page failed", run, zap.String("url", evt.URL), zap.String("error", evt.Note))
	case progress.StageRunDone:
		s.logger.Debug("prerender finished", run, zap.Duration("dur", evt.Dur))
	case progress.StageRunError:
		s.logger.Debug("prerender aborted", run, zap.Duration("dur", evt.Dur), zap.String("error", evt.Note))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
