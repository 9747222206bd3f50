package postgres

import (
	"context"
	"fmt"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// StationStore implements storage.StationStore using PostgreSQL.
type StationStore struct {
	pool *Pool
}

// NewStationStore creates a new StationStore.
func NewStationStore(pool *Pool) *StationStore {
	return &StationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StationStore = (*StationStore)(nil)

// Upsert inserts or overwrites a station by station_id. A row whose registry
// attributes are all unchanged is left untouched and reported as Unchanged.
func (s *StationStore) Upsert(ctx context.Context, st *domain.Station) (result storage.UpsertResult, err error) {
	defer observe("station_upsert", time.Now(), &err)

	if st == nil || st.StationID <= 0 {
		return 0, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO stations (
			station_id, operator, brand, kind, name, address, municipality, province,
			latitude, longitude, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (station_id) DO UPDATE
		SET operator = EXCLUDED.operator,
		    brand = EXCLUDED.brand,
		    kind = EXCLUDED.kind,
		    name = EXCLUDED.name,
		    address = EXCLUDED.address,
		    municipality = EXCLUDED.municipality,
		    province = EXCLUDED.province,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    updated_at = NOW()
		WHERE (stations.operator, stations.brand, stations.kind, stations.name,
		       stations.address, stations.municipality, stations.province,
		       stations.latitude, stations.longitude)
		      IS DISTINCT FROM
		      (EXCLUDED.operator, EXCLUDED.brand, EXCLUDED.kind, EXCLUDED.name,
		       EXCLUDED.address, EXCLUDED.municipality, EXCLUDED.province,
		       EXCLUDED.latitude, EXCLUDED.longitude)
		RETURNING (xmax = 0)
	`

	var inserted bool
	err = s.pool.QueryRow(ctx, query,
		st.StationID,
		st.Operator,
		st.Brand,
		st.Kind,
		st.Name,
		st.Address,
		st.Municipality,
		st.Province,
		st.Latitude,
		st.Longitude,
	).Scan(&inserted)
	switch {
	case isNotFoundError(err):
		// The WHERE clause suppressed the update.
		return storage.Unchanged, nil
	case err != nil:
		return 0, fmt.Errorf("upsert station %d: %w", st.StationID, err)
	case inserted:
		return storage.Inserted, nil
	default:
		return storage.Updated, nil
	}
}

// Get retrieves a station by registry ID. Returns ErrNotFound if not exists.
func (s *StationStore) Get(ctx context.Context, stationID int64) (*domain.Station, error) {
	query := `
		SELECT station_id, operator, brand, kind, name, address, municipality, province,
		       latitude, longitude, updated_at
		FROM stations
		WHERE station_id = $1
	`

	var st domain.Station
	err := s.pool.QueryRow(ctx, query, stationID).Scan(
		&st.StationID,
		&st.Operator,
		&st.Brand,
		&st.Kind,
		&st.Name,
		&st.Address,
		&st.Municipality,
		&st.Province,
		&st.Latitude,
		&st.Longitude,
		&st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get station: %w", err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// Exists reports whether a station is registered.
func (s *StationStore) Exists(ctx context.Context, stationID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stations WHERE station_id = $1)`, stationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check station: %w", err)
	}
	return exists, nil
}

// ListIDs returns all registered station IDs, ascending.
func (s *StationStore) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT station_id FROM stations ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan station id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
