package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

func record(id, url string) ideas.Record {
	return ideas.Record{
		ID:        id,
		URL:       url,
		Status:    ideas.StatusUnprocessed,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestBulkInsertAndFind(t *testing.T) {
	t.Parallel()

	store := NewIdeaStore()
	ctx := context.Background()

	require.NoError(t, store.BulkInsert(ctx, []ideas.Record{
		record("1", "https://x/ideas/a/1/"),
		record("2", "https://x/ideas/b/2/"),
	}))

	count, err := store.CountUnprocessed(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	batch, err := store.FindUnprocessed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NotZero(t, batch[0].RowID)
}

func TestBulkInsertRejectsMissingID(t *testing.T) {
	t.Parallel()

	store := NewIdeaStore()
	err := store.BulkInsert(context.Background(), []ideas.Record{{URL: "https://x/short/"}})
	require.Error(t, err)
	require.Empty(t, store.Records())
}

func TestFindExistingIDs(t *testing.T) {
	t.Parallel()

	store := NewIdeaStore()
	ctx := context.Background()
	require.NoError(t, store.BulkInsert(ctx, []ideas.Record{record("1", "u1"), record("2", "u2")}))

	existing, err := store.FindExistingIDs(ctx, []string{"1", "3"})
	require.NoError(t, err)
	require.Len(t, existing, 1)
	require.Contains(t, existing, "1")
}

func TestMarkProcessedExcludesFromPull(t *testing.T) {
	t.Parallel()

	store := NewIdeaStore()
	ctx := context.Background()
	require.NoError(t, store.BulkInsert(ctx, []ideas.Record{record("1", "u1")}))

	batch, err := store.FindUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	now := time.Unix(1700000100, 0)
	info := ideas.Info{DisplayName: "Cats"}
	require.NoError(t, store.MarkProcessed(ctx, batch[0].RowID, info, now))

	count, err := store.CountUnprocessed(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	recs := store.Records()
	require.Equal(t, ideas.StatusProcessed, recs[0].Status)
	require.NotNil(t, recs[0].Info)
	require.Equal(t, "Cats", recs[0].Info.DisplayName)
	require.NotNil(t, recs[0].ProcessedAt)
	require.Equal(t, now.UTC(), *recs[0].ProcessedAt)
}

func TestMarkProcessedUnknownRow(t *testing.T) {
	t.Parallel()

	store := NewIdeaStore()
	err := store.MarkProcessed(context.Background(), 99, ideas.Info{}, time.Now())
	require.Error(t, err)
}
