package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

var (
	day1 = time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)
)

func variationOf(id string, stationID int64, fuel string, d time.Time, source domain.DetectionSource) *domain.PriceVariation {
	return &domain.PriceVariation{
		ID:         id,
		StationID:  stationID,
		FuelType:   fuel,
		IsSelf:     true,
		OldPrice:   1.799,
		NewPrice:   1.699,
		Delta:      -0.1,
		Percent:    -5.5586,
		Direction:  domain.DirectionDown,
		Day:        d,
		Source:     source,
		DetectedAt: d.Add(8 * time.Hour),
	}
}

func TestVariationStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVariationStore(conn)

	n, err := store.InsertBulk(ctx, []*domain.PriceVariation{
		variationOf("a", 1, "Gasolio", day2, domain.SourceBulk),
		variationOf("a", 1, "Gasolio", day2, domain.SourceBulk),
		variationOf("b", 2, "Gasolio", day2, domain.SourceLive),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Replaying the batch stores nothing new.
	n, err = store.InsertBulk(ctx, []*domain.PriceVariation{
		variationOf("a", 1, "Gasolio", day2, domain.SourceBulk),
		variationOf("c", 1, "Benzina", day2, domain.SourceBulk),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.InsertBulk(ctx, []*domain.PriceVariation{{}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestVariationStore_InsertBulkAcrossLookupChunks(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVariationStore(conn)

	batch := func(from, to int) []*domain.PriceVariation {
		var vs []*domain.PriceVariation
		for i := from; i < to; i++ {
			vs = append(vs, variationOf(fmt.Sprintf("v%05d", i), int64(i+1), "Gasolio", day2, domain.SourceBulk))
		}
		return vs
	}

	n, err := store.InsertBulk(ctx, batch(0, idLookupChunk+10))
	require.NoError(t, err)
	assert.Equal(t, idLookupChunk+10, n)

	// Overlaps the first batch on both sides of the chunk boundary.
	n, err = store.InsertBulk(ctx, batch(idLookupChunk-5, idLookupChunk+30))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	vs, err := store.ListByDay(ctx, day2)
	require.NoError(t, err)
	assert.Len(t, vs, idLookupChunk+30)
}

func TestVariationStore_ListByDay(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVariationStore(conn)

	_, err := store.InsertBulk(ctx, []*domain.PriceVariation{
		variationOf("z", 2, "Benzina", day2, domain.SourceBulk),
		variationOf("y", 1, "Gasolio", day2, domain.SourceBulk),
		variationOf("x", 1, "Benzina", day2, domain.SourceBulk),
		variationOf("w", 1, "Benzina", day1, domain.SourceBulk),
	})
	require.NoError(t, err)

	vs, err := store.ListByDay(ctx, day2)
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{vs[0].ID, vs[1].ID, vs[2].ID})

	got := vs[0]
	assert.True(t, got.IsSelf)
	assert.Equal(t, domain.DirectionDown, got.Direction)
	assert.Equal(t, day2, got.Day)
	assert.InDelta(t, -0.1, got.Delta, 1e-9)
	assert.Equal(t, day2.Add(8*time.Hour), got.DetectedAt)
}

func TestVariationStore_ListByStation(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVariationStore(conn)

	_, err := store.InsertBulk(ctx, []*domain.PriceVariation{
		variationOf("old", 1, "Benzina", day1, domain.SourceBulk),
		variationOf("new", 1, "Benzina", day2, domain.SourceBulk),
		variationOf("other", 2, "Benzina", day2, domain.SourceBulk),
	})
	require.NoError(t, err)

	vs, err := store.ListByStation(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "new", vs[0].ID)

	vs, err = store.ListByStation(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, vs, 1)
}
