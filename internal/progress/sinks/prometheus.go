package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/elm-starter/internal/progress"
)

// PrometheusSink exports prerender metrics. It owns every collector it
// registers.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	batches       prometheus.Counter

	pages        *prometheus.CounterVec
	pageBytes    prometheus.Counter
	pageDuration prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg, falling back to
// the default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elmstarter_prerender_runs_started_total",
			Help: "Prerender runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elmstarter_prerender_runs_completed_total",
			Help: "Prerender runs completed partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elmstarter_prerender_run_duration_seconds",
			Help:    "Wall time per prerender run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elmstarter_prerender_batches_total",
			Help: "Batches started.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elmstarter_prerender_pages_total",
			Help: "Pages rendered partitioned by result.",
		}, []string{"result"}),
		pageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elmstarter_prerender_page_bytes_total",
			Help: "Bytes of minified HTML written.",
		}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "elmstarter_prerender_page_duration_seconds",
			Help:    "Time to render and write one page.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.batches,
		s.pages,
		s.pageBytes,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.completeRun(evt, "success")
	case progress.StageRunError:
		s.completeRun(evt, "error")
	case progress.StageBatchStart:
		s.batches.Inc()
	case progress.StagePageDone:
		s.pages.WithLabelValues("success").Inc()
		if evt.Bytes > 0 {
			s.pageBytes.Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.pageDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StagePageError:
		s.pages.WithLabelValues("error").Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
