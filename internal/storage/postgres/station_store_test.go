package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

func TestStationStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStationStore(pool)

	st := &domain.Station{
		StationID:    1001,
		Operator:     "ROSSI SRL",
		Brand:        "Agip Eni",
		Kind:         "Stradale",
		Name:         "ENI ROMA",
		Address:      "VIA APPIA 1",
		Municipality: "ROMA",
		Province:     "RM",
		Latitude:     ptr(41.89),
		Longitude:    ptr(12.49),
	}

	result, err := store.Upsert(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, storage.Inserted, result)

	got, err := store.Get(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, st.SameAs(got))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStationStore_UpsertUnchangedAndUpdated(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStationStore(pool)

	st := &domain.Station{StationID: 7, Name: "A", Province: "MI"}
	_, err := store.Upsert(ctx, st)
	require.NoError(t, err)

	result, err := store.Upsert(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, storage.Unchanged, result)

	st.Name = "B"
	st.Latitude = ptr(45.0)
	result, err = store.Upsert(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, storage.Updated, result)

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	require.NotNil(t, got.Latitude)
	assert.Nil(t, got.Longitude)
}

func TestStationStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewStationStore(pool).Get(context.Background(), 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStationStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewStationStore(pool).Upsert(context.Background(), &domain.Station{StationID: 0})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStationStore_ExistsAndListIDs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStationStore(pool)
	seedStations(t, ctx, pool, 30, 10, 20)

	ok, err := store.Exists(ctx, 20)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, 40)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)
}
