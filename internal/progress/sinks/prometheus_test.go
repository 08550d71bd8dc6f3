package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mpetrov/ideaharvest/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Remaining: 120},
		{
			RunID: runID,
			TS:    time.Now().Add(time.Second),
			Stage: progress.StageFetchDone,
			URL:   "https://example.com/ideas/woodworking/12345/",
			OK:    true,
			Dur:   200 * time.Millisecond,
		},
		{
			RunID: runID,
			TS:    time.Now().Add(2 * time.Second),
			Stage: progress.StageFetchDone,
			URL:   "https://example.com/ideas/carving/678/",
			Dur:   5 * time.Second,
		},
		{RunID: runID, TS: time.Now().Add(3 * time.Second), Stage: progress.StageBatchDone, Remaining: 118, Dur: 6 * time.Second},
		{RunID: runID, TS: time.Now().Add(10 * time.Second), Stage: progress.StageRunDone, Dur: 10 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.processed))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.failed))
	require.Equal(t, 118.0, testutil.ToFloat64(sink.remaining))
	require.Equal(t, 1, testutil.CollectAndCount(sink.batchDuration, "ideaharvest_batch_duration_seconds"))
	require.Equal(t, 2, testutil.CollectAndCount(sink.fetchDuration, "ideaharvest_fetch_duration_seconds"))
}

// TestPrometheusSinkRunError verifies error completions are labeled separately.
func TestPrometheusSinkRunError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Dur: time.Second, Note: "store unavailable"},
	}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}
