// Package ingest persists discovered idea URLs as unprocessed records.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

// Result summarizes one ingestion batch.
type Result struct {
	Discovered int
	Malformed  int
	Skipped    int
	Inserted   int
}

// Ingestor dedups discovered URLs against the store and bulk-inserts the
// remainder. It never updates pre-existing records, so re-running the same
// batch is a no-op.
//
// Known limitation, preserved from the original design: the existence check
// and the insert are two store calls, not one atomic operation. Two
// processes ingesting the same batch concurrently can both classify an id
// as new and double-insert it.
type Ingestor struct {
	store  ideas.Store
	clock  ideas.Clock
	logger *zap.Logger
}

// New constructs an Ingestor.
func New(store ideas.Store, clock ideas.Clock, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, clock: clock, logger: logger}
}

// Ingest derives records from the URLs, drops the ones without an external
// id, and inserts the not-yet-known remainder in one bulk operation. One
// existence-check query covers the whole batch. A malformed URL rejects
// only that entry.
func (i *Ingestor) Ingest(ctx context.Context, urls []string) (Result, error) {
	res := Result{Discovered: len(urls)}
	now := i.clock.Now()

	var batch []ideas.Record
	for _, raw := range urls {
		rec, err := ideas.NewRecord(raw, now)
		if err != nil {
			if errors.Is(err, ideas.ErrMalformedURL) {
				res.Malformed++
				i.logger.Warn("rejecting malformed url", zap.String("url", raw), zap.Error(err))
				continue
			}
			return res, fmt.Errorf("derive record: %w", err)
		}
		if rec.ID == "" {
			res.Malformed++
			i.logger.Warn("url path too short to derive id", zap.String("url", rec.URL))
			continue
		}
		batch = append(batch, rec)
	}
	if len(batch) == 0 {
		return res, nil
	}

	candidates := make([]string, 0, len(batch))
	for _, rec := range batch {
		candidates = append(candidates, rec.ID)
	}
	existing, err := i.store.FindExistingIDs(ctx, candidates)
	if err != nil {
		return res, fmt.Errorf("check existing ids: %w", err)
	}

	fresh := batch[:0]
	for _, rec := range batch {
		if _, ok := existing[rec.ID]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return res, nil
	}
	if err := i.store.BulkInsert(ctx, fresh); err != nil {
		return res, fmt.Errorf("bulk insert: %w", err)
	}
	res.Inserted = len(fresh)
	return res, nil
}
