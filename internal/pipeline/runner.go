// Package pipeline drives the enrichment loop: pull a batch of unprocessed
// records, fan the fetches out, reconcile the results, report progress, and
// repeat until a pull comes back empty.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/ideas"
	"github.com/mpetrov/ideaharvest/internal/progress"
)

// Config controls a pipeline run.
type Config struct {
	// BatchSize is both the pull limit and the fan-out width per batch.
	BatchSize int
	// Topic, when set together with a publisher, receives one message per
	// processed record.
	Topic string
}

// Summary aggregates one run's outcome.
type Summary struct {
	Total     int64
	Processed int64
	Failed    int64
	Batches   int64
	Elapsed   time.Duration
}

// ProcessedMessage is the payload published for each processed record.
type ProcessedMessage struct {
	IdeaID      string    `json:"idea_id"`
	URL         string    `json:"url"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Runner owns the outer batch loop. The driver is single-threaded; only the
// per-record fetches inside a batch run concurrently, and a batch joins fully
// before the next pull.
type Runner struct {
	store     ideas.Store
	enricher  ideas.Enricher
	clock     ideas.Clock
	publisher ideas.Publisher
	emitter   progress.Emitter
	logger    *zap.Logger
	out       io.Writer
	cfg       Config
}

// NewRunner wires the pipeline dependencies. publisher, emitter, and out are
// optional.
func NewRunner(store ideas.Store, enricher ideas.Enricher, clock ideas.Clock, cfg Config, opts ...Option) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	r := &Runner{
		store:    store,
		enricher: enricher,
		clock:    clock,
		logger:   zap.NewNop(),
		out:      io.Discard,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher emits one message per processed record to cfg.Topic.
func WithPublisher(p ideas.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithEmitter streams progress events to the hub.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Runner) { r.emitter = e }
}

// WithOutput sets the writer that receives the per-batch progress line.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// Run executes batches until a pull returns no records. The total used for
// progress reporting is captured once at the start and never refreshed, so
// records ingested mid-run surface in the next run instead. Store errors
// abort the run; fetch failures never do.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	runID := progress.UUIDToBytes(uuid.New())
	start := r.clock.Now()

	total, err := r.store.CountUnprocessed(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("count unprocessed: %w", err)
	}
	sum := Summary{Total: total}
	r.emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageRunStart, Remaining: total})
	r.logger.Info("enrichment run started", zap.Int64("total", total), zap.Int("batch_size", r.cfg.BatchSize))

	// Rows that already exhausted their attempts this run. A pull made up
	// entirely of such rows would never drain, so it ends the run; those
	// records stay unprocessed for the next invocation.
	failedRows := make(map[int64]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(runID, start, sum, err)
		}
		batch, err := r.store.FindUnprocessed(ctx, r.cfg.BatchSize)
		if err != nil {
			return r.fail(runID, start, sum, fmt.Errorf("pull batch: %w", err))
		}
		if len(batch) == 0 {
			break
		}
		if allFailed(batch, failedRows) {
			r.logger.Warn("remaining records all exhausted their attempts, stopping",
				zap.Int("stuck", len(batch)))
			break
		}

		batchStart := r.clock.Now()
		results := r.fanOut(ctx, batch)
		if err := r.reconcile(ctx, runID, results, &sum, failedRows); err != nil {
			return r.fail(runID, start, sum, err)
		}
		sum.Batches++

		elapsed := r.clock.Now().Sub(start)
		snap := progress.Compute(total, sum.Processed, sum.Failed, elapsed)
		fmt.Fprintln(r.out, snap.String())
		r.emit(progress.Event{
			RunID:     runID,
			TS:        r.clock.Now(),
			Stage:     progress.StageBatchDone,
			Processed: sum.Processed,
			Failed:    sum.Failed,
			Remaining: snap.Remaining,
			Dur:       r.clock.Now().Sub(batchStart),
		})
	}

	sum.Elapsed = r.clock.Now().Sub(start)
	r.emit(progress.Event{
		RunID:     runID,
		TS:        r.clock.Now(),
		Stage:     progress.StageRunDone,
		Processed: sum.Processed,
		Failed:    sum.Failed,
		Dur:       sum.Elapsed,
	})
	r.logger.Info("enrichment run finished",
		zap.Int64("processed", sum.Processed),
		zap.Int64("failed", sum.Failed),
		zap.Int64("batches", sum.Batches),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// fanOut dispatches one fetch goroutine per record and joins them all before
// returning, bounding in-flight fetches to one batch's width.
func (r *Runner) fanOut(ctx context.Context, batch []ideas.Record) []ideas.FetchResult {
	results := make([]ideas.FetchResult, len(batch))
	var wg sync.WaitGroup
	for i, rec := range batch {
		wg.Add(1)
		go func(i int, rec ideas.Record) {
			defer wg.Done()
			started := time.Now()
			info, err := r.enricher.Enrich(ctx, rec)
			results[i] = ideas.FetchResult{
				RowID: rec.RowID,
				URL:   rec.URL,
				Info:  info,
				Err:   err,
				Dur:   time.Since(started),
			}
		}(i, rec)
	}
	wg.Wait()
	return results
}

// reconcile applies one update per success using a shared batch timestamp,
// keyed by row identity. Failures leave the record untouched.
func (r *Runner) reconcile(ctx context.Context, runID [16]byte, results []ideas.FetchResult, sum *Summary, failedRows map[int64]struct{}) error {
	now := r.clock.Now()
	for _, res := range results {
		if res.Err != nil {
			sum.Failed++
			failedRows[res.RowID] = struct{}{}
			r.logger.Warn("enrichment failed", zap.String("url", res.URL), zap.Error(res.Err))
			r.emit(progress.Event{
				RunID: runID,
				TS:    now,
				Stage: progress.StageFetchDone,
				URL:   res.URL,
				Dur:   res.Dur,
				Note:  res.Err.Error(),
			})
			continue
		}
		if err := r.store.MarkProcessed(ctx, res.RowID, *res.Info, now); err != nil {
			return fmt.Errorf("mark processed row %d: %w", res.RowID, err)
		}
		sum.Processed++
		r.emit(progress.Event{
			RunID: runID,
			TS:    now,
			Stage: progress.StageFetchDone,
			URL:   res.URL,
			OK:    true,
			Dur:   res.Dur,
		})
		r.publish(ctx, res, now)
	}
	return nil
}

// publish is best-effort; a broker outage must not stall enrichment.
func (r *Runner) publish(ctx context.Context, res ideas.FetchResult, at time.Time) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	msg := ProcessedMessage{IdeaID: res.Info.ID, URL: res.URL, ProcessedAt: at}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, msg); err != nil {
		r.logger.Warn("publish processed record failed", zap.String("url", res.URL), zap.Error(err))
	}
}

func (r *Runner) fail(runID [16]byte, start time.Time, sum Summary, err error) (Summary, error) {
	sum.Elapsed = r.clock.Now().Sub(start)
	r.emit(progress.Event{
		RunID:     runID,
		TS:        r.clock.Now(),
		Stage:     progress.StageRunError,
		Processed: sum.Processed,
		Failed:    sum.Failed,
		Dur:       sum.Elapsed,
		Note:      err.Error(),
	})
	r.logger.Error("enrichment run aborted", zap.Error(err))
	return sum, err
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func allFailed(batch []ideas.Record, failedRows map[int64]struct{}) bool {
	for _, rec := range batch {
		if _, ok := failedRows[rec.RowID]; !ok {
			return false
		}
	}
	return true
}
