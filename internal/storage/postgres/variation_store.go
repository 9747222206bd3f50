package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// VariationStore implements storage.VariationStore using PostgreSQL.
type VariationStore struct {
	pool *Pool
}

// NewVariationStore creates a new VariationStore.
func NewVariationStore(pool *Pool) *VariationStore {
	return &VariationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VariationStore = (*VariationStore)(nil)

const variationColumns = `id, station_id, fuel_type, is_self, old_price, new_price, delta, percent,
	direction, day, source, detected_at`

// InsertBulk appends variations in one transaction. Rows whose id already
// exists are skipped. Returns the number actually inserted.
func (s *VariationStore) InsertBulk(ctx context.Context, variations []*domain.PriceVariation) (inserted int, err error) {
	defer observe("variation_insert", time.Now(), &err)

	if len(variations) == 0 {
		return 0, nil
	}
	for _, v := range variations {
		if v == nil || v.ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO price_variations (` + variationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, v := range variations {
			batch.Queue(query,
				v.ID,
				v.StationID,
				v.FuelType,
				v.IsSelf,
				v.OldPrice,
				v.NewPrice,
				v.Delta,
				v.Percent,
				string(v.Direction),
				day(v.Day),
				string(v.Source),
				v.DetectedAt.UTC(),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range variations {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return fmt.Errorf("insert variation: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByDay retrieves variations of a day ordered by (station, fuel, self, source).
func (s *VariationStore) ListByDay(ctx context.Context, d time.Time) ([]*domain.PriceVariation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+variationColumns+`
		FROM price_variations
		WHERE day = $1
		ORDER BY station_id, fuel_type, is_self, source
	`, day(d))
	if err != nil {
		return nil, fmt.Errorf("list variations by day: %w", err)
	}
	return collectVariations(rows)
}

// ListByStation retrieves the most recent variations for a station, newest
// day first. limit <= 0 means no limit.
func (s *VariationStore) ListByStation(ctx context.Context, stationID int64, limit int) ([]*domain.PriceVariation, error) {
	query := `
		SELECT ` + variationColumns + `
		FROM price_variations
		WHERE station_id = $1
		ORDER BY day DESC, detected_at DESC, fuel_type, is_self
	`
	args := []any{stationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list variations by station: %w", err)
	}
	return collectVariations(rows)
}

func collectVariations(rows pgx.Rows) ([]*domain.PriceVariation, error) {
	defer rows.Close()

	var result []*domain.PriceVariation
	for rows.Next() {
		var (
			v         domain.PriceVariation
			direction string
			source    string
		)
		err := rows.Scan(
			&v.ID,
			&v.StationID,
			&v.FuelType,
			&v.IsSelf,
			&v.OldPrice,
			&v.NewPrice,
			&v.Delta,
			&v.Percent,
			&direction,
			&v.Day,
			&source,
			&v.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		v.Direction = domain.Direction(direction)
		v.Source = domain.DetectionSource(source)
		v.Day = day(v.Day)
		v.DetectedAt = v.DetectedAt.UTC()
		result = append(result, &v)
	}
	return result, rows.Err()
}
