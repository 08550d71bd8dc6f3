package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrov/ideaharvest/internal/ideas"
	pubmem "github.com/mpetrov/ideaharvest/internal/publisher/memory"
	storemem "github.com/mpetrov/ideaharvest/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// scriptedEnricher fails each URL a configured number of times before
// succeeding.
type scriptedEnricher struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func newScriptedEnricher(failures map[string]int) *scriptedEnricher {
	return &scriptedEnricher{failures: failures, calls: map[string]int{}}
}

func (e *scriptedEnricher) Enrich(_ context.Context, rec ideas.Record) (*ideas.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[rec.URL]++
	if e.calls[rec.URL] <= e.failures[rec.URL] {
		return nil, errors.New("fetch exhausted")
	}
	return &ideas.Info{ID: rec.ID, DisplayName: rec.Name}, nil
}

func seedStore(t *testing.T, store *storemem.IdeaStore, ids ...string) {
	t.Helper()
	now := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	records := make([]ideas.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, ideas.Record{
			ID:        id,
			URL:       "https://example.com/ideas/topic-" + id + "/" + id + "/",
			Name:      "topic-" + id,
			Status:    ideas.StatusUnprocessed,
			CreatedAt: now,
		})
	}
	require.NoError(t, store.BulkInsert(context.Background(), records))
}

func recordByID(t *testing.T, store *storemem.IdeaStore, id string) ideas.Record {
	t.Helper()
	for _, rec := range store.Records() {
		if rec.ID == id {
			return rec
		}
	}
	t.Fatalf("record %s not found", id)
	return ideas.Record{}
}

// TestRunEndToEnd exercises the full loop: pull {A,B}, A succeeds, B fails;
// next pull {B,C}, both succeed; the empty pull terminates the run.
func TestRunEndToEnd(t *testing.T) {
	store := storemem.NewIdeaStore()
	seedStore(t, store, "100", "200", "300")
	urlB := "https://example.com/ideas/topic-200/200/"
	enricher := newScriptedEnricher(map[string]int{urlB: 1})

	var out bytes.Buffer
	pub := pubmem.New()
	runner := NewRunner(store, enricher, newFakeClock(), Config{BatchSize: 2, Topic: "ideas.processed"},
		WithOutput(&out), WithPublisher(pub))

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), sum.Total)
	assert.Equal(t, int64(3), sum.Processed)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(2), sum.Batches)

	for _, id := range []string{"100", "200", "300"} {
		rec := recordByID(t, store, id)
		assert.Equal(t, ideas.StatusProcessed, rec.Status, id)
		require.NotNil(t, rec.ProcessedAt, id)
		require.NotNil(t, rec.Info, id)
		assert.Equal(t, id, rec.Info.ID)
	}

	// One progress line per batch, one publish per processed record.
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte("\n")))
	assert.Len(t, pub.Messages(), 3)
}

// TestRunStopsWhenOnlyExhaustedRecordsRemain guards against spinning on
// records that keep failing: once a pull holds nothing new, the run ends.
func TestRunStopsWhenOnlyExhaustedRecordsRemain(t *testing.T) {
	store := storemem.NewIdeaStore()
	seedStore(t, store, "100", "200")
	urlB := "https://example.com/ideas/topic-200/200/"
	enricher := newScriptedEnricher(map[string]int{urlB: 1000})

	runner := NewRunner(store, enricher, newFakeClock(), Config{BatchSize: 2})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Processed)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, ideas.StatusUnprocessed, recordByID(t, store, "200").Status)
	assert.Nil(t, recordByID(t, store, "200").Info)
}

// countingEnricher tracks the maximum number of concurrently running fetches.
type countingEnricher struct {
	inFlight atomic.Int64
	max      atomic.Int64
}

func (e *countingEnricher) Enrich(_ context.Context, rec ideas.Record) (*ideas.Info, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		cur := e.max.Load()
		if n <= cur || e.max.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &ideas.Info{ID: rec.ID}, nil
}

// TestRunBatchIsolation asserts the fan-out never exceeds the batch width:
// every fetch of one batch joins before the next batch is pulled.
func TestRunBatchIsolation(t *testing.T) {
	store := storemem.NewIdeaStore()
	seedStore(t, store, "1", "2", "3", "4", "5", "6", "7", "8", "9")

	enricher := &countingEnricher{}
	runner := NewRunner(store, enricher, newFakeClock(), Config{BatchSize: 3})

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(9), sum.Processed)
	assert.Equal(t, int64(3), sum.Batches)
	assert.LessOrEqual(t, enricher.max.Load(), int64(3))
}

// TestRunIsIdempotent verifies a second run over a drained store does nothing.
func TestRunIsIdempotent(t *testing.T) {
	store := storemem.NewIdeaStore()
	seedStore(t, store, "100")
	enricher := newScriptedEnricher(nil)
	runner := NewRunner(store, enricher, newFakeClock(), Config{BatchSize: 2})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	first := recordByID(t, store, "100")

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Total)
	assert.Equal(t, int64(0), sum.Processed)
	assert.Equal(t, int64(0), sum.Batches)
	assert.Equal(t, first.ProcessedAt, recordByID(t, store, "100").ProcessedAt)
}

// failingStore wraps the memory store and fails MarkProcessed.
type failingStore struct {
	*storemem.IdeaStore
}

func (s *failingStore) MarkProcessed(context.Context, int64, ideas.Info, time.Time) error {
	return errors.New("connection reset")
}

// TestRunAbortsOnStoreError ensures store failures halt the run instead of
// being swallowed like fetch failures.
func TestRunAbortsOnStoreError(t *testing.T) {
	inner := storemem.NewIdeaStore()
	seedStore(t, inner, "100")
	runner := NewRunner(&failingStore{inner}, newScriptedEnricher(nil), newFakeClock(), Config{BatchSize: 2})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark processed")
}

// TestRunHonorsCancelledContext stops between batches once the context ends.
func TestRunHonorsCancelledContext(t *testing.T) {
	store := storemem.NewIdeaStore()
	seedStore(t, store, "100")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(store, newScriptedEnricher(nil), newFakeClock(), Config{BatchSize: 2})
	_, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
