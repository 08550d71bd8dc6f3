package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpetrov/ideaharvest/internal/progress"
)

// PrometheusSink exports pipeline progress metrics via Prometheus. It owns
// the collectors for runs, batches, and per-record fetch outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	batchDuration prometheus.Histogram
	processed     prometheus.Counter
	failed        prometheus.Counter
	remaining     prometheus.Gauge

	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaharvest_runs_started_total",
			Help: "Total enrichment runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaharvest_runs_completed_total",
			Help: "Total enrichment runs completed partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaharvest_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ideaharvest_batch_duration_seconds",
			Help:    "Wall time per batch of concurrent fetches.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaharvest_ideas_processed_total",
			Help: "Records enriched and marked processed.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaharvest_ideas_failed_total",
			Help: "Records whose fetch attempts were all spent.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ideaharvest_ideas_remaining",
			Help: "Unprocessed records remaining, from the last batch report.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaharvest_fetch_duration_seconds",
			Help:    "Per-record enrichment duration partitioned by outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.batchDuration,
		s.processed,
		s.failed,
		s.remaining,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
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
		s.remaining.Set(float64(evt.Remaining))
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRun(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRun(evt, "error")
	case progress.StageBatchDone:
		if evt.Dur > 0 {
			s.batchDuration.Observe(evt.Dur.Seconds())
		}
		s.remaining.Set(float64(evt.Remaining))
	case progress.StageFetchDone:
		s.observeFetch(evt)
	}
}

func (s *PrometheusSink) observeRun(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	outcome := "error"
	if evt.OK {
		outcome = "success"
		s.processed.Inc()
	} else {
		s.failed.Inc()
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
