package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-price-watch/internal/storage"
)

func TestFeedRunStore_RecordAndGetLast(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeedRunStore(pool)

	_, err := store.GetLast(ctx, "prices")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	finished := time.Date(2025, 9, 23, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, &storage.FeedRun{
		Feed:       "prices",
		Checksum:   "abc",
		Rows:       10,
		LatestDay:  day1,
		FinishedAt: finished,
	}))

	// Upsert replaces the previous run.
	require.NoError(t, store.Record(ctx, &storage.FeedRun{
		Feed:       "prices",
		Checksum:   "def",
		Rows:       12,
		LatestDay:  day2,
		FinishedAt: finished.Add(time.Hour),
	}))

	run, err := store.GetLast(ctx, "prices")
	require.NoError(t, err)
	assert.Equal(t, "def", run.Checksum)
	assert.Equal(t, 12, run.Rows)
	assert.Equal(t, day2, run.LatestDay)
	assert.Equal(t, finished.Add(time.Hour), run.FinishedAt)
}

func TestFeedRunStore_RegistryWithoutLatestDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeedRunStore(pool)

	require.NoError(t, store.Record(ctx, &storage.FeedRun{Feed: "registry", Checksum: "x", FinishedAt: time.Now()}))

	run, err := store.GetLast(ctx, "registry")
	require.NoError(t, err)
	assert.True(t, run.LatestDay.IsZero())

	assert.ErrorIs(t, store.Record(ctx, &storage.FeedRun{}), storage.ErrInvalidInput)
}
