// Package memory provides an in-memory idea store for development/testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

// IdeaStore implements ideas.Store with a mutex-guarded slice. Records are
// returned in insertion order; callers must not rely on that.
type IdeaStore struct {
	mu      sync.RWMutex
	nextRow int64
	records []ideas.Record
}

// NewIdeaStore constructs an empty IdeaStore.
func NewIdeaStore() *IdeaStore {
	return &IdeaStore{nextRow: 1}
}

// CountUnprocessed reports how many records still await enrichment.
func (s *IdeaStore) CountUnprocessed(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if rec.Status == ideas.StatusUnprocessed {
			n++
		}
	}
	return n, nil
}

// FindUnprocessed returns up to limit unprocessed records.
func (s *IdeaStore) FindUnprocessed(_ context.Context, limit int) ([]ideas.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ideas.Record, 0, limit)
	for _, rec := range s.records {
		if rec.Status != ideas.StatusUnprocessed {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FindExistingIDs returns the candidates already present in the store.
func (s *IdeaStore) FindExistingIDs(_ context.Context, candidates []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		want[id] = struct{}{}
	}
	existing := make(map[string]struct{})
	for _, rec := range s.records {
		if _, ok := want[rec.ID]; ok {
			existing[rec.ID] = struct{}{}
		}
	}
	return existing, nil
}

// BulkInsert appends new records, assigning row identities.
func (s *IdeaStore) BulkInsert(_ context.Context, records []ideas.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			return errors.New("record without external id")
		}
	}
	for _, rec := range records {
		rec.RowID = s.nextRow
		s.nextRow++
		s.records = append(s.records, rec)
	}
	return nil
}

// MarkProcessed flips one record to processed and attaches its payload.
func (s *IdeaStore) MarkProcessed(_ context.Context, rowID int64, info ideas.Info, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].RowID != rowID {
			continue
		}
		ts := at.UTC()
		s.records[i].Status = ideas.StatusProcessed
		s.records[i].ProcessedAt = &ts
		infoCopy := info
		s.records[i].Info = &infoCopy
		return nil
	}
	return fmt.Errorf("record %d not found", rowID)
}

// Close implements ideas.Store; it performs no action.
func (s *IdeaStore) Close() {}

// Records returns a snapshot of all records, for test assertions.
func (s *IdeaStore) Records() []ideas.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ideas.Record, len(s.records))
	copy(out, s.records)
	return out
}
