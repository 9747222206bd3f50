package clickhouse

import (
	"context"
	"fmt"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/storage"
)

// VariationStore implements storage.VariationStore on the
// price_variation_history table. The table is a ReplacingMergeTree keyed by
// id; reads use FINAL so replays never surface twice.
type VariationStore struct {
	conn *Conn
}

// NewVariationStore creates a new VariationStore.
func NewVariationStore(conn *Conn) *VariationStore {
	return &VariationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VariationStore = (*VariationStore)(nil)

const variationColumns = `id, station_id, fuel_type, is_self, old_price, new_price, delta, percent,
	direction, day, source, detected_at`

// InsertBulk appends variations not yet stored. Duplicates inside the batch
// and ids already present are skipped. Returns the number sent.
func (s *VariationStore) InsertBulk(ctx context.Context, variations []*domain.PriceVariation) (n int, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "variation_insert", time.Since(start).Seconds(), err)
	}()

	if len(variations) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{}, len(variations))
	unique := make([]*domain.PriceVariation, 0, len(variations))
	ids := make([]string, 0, len(variations))
	for _, v := range variations {
		if v == nil || v.ID == "" {
			return 0, storage.ErrInvalidInput
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		unique = append(unique, v)
		ids = append(ids, v.ID)
	}

	stored, err := s.storedIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check existing ids: %w", err)
	}
	pending := unique[:0]
	for _, v := range unique {
		if _, ok := stored[v.ID]; !ok {
			pending = append(pending, v)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_variation_history (`+variationColumns+`)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, v := range pending {
		var isSelf uint8
		if v.IsSelf {
			isSelf = 1
		}
		err = batch.Append(
			v.ID, v.StationID, v.FuelType, isSelf,
			v.OldPrice, v.NewPrice, v.Delta, v.Percent,
			string(v.Direction), v.Day.UTC(), string(v.Source), v.DetectedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(pending), nil
}

// ListByDay retrieves variations of a day ordered by (station, fuel, self, source).
func (s *VariationStore) ListByDay(ctx context.Context, day time.Time) ([]*domain.PriceVariation, error) {
	query := `
		SELECT ` + variationColumns + `
		FROM price_variation_history FINAL
		WHERE day = ?
		ORDER BY station_id, fuel_type, is_self, source
	`

	rows, err := s.conn.Query(ctx, query, day.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by day: %w", err)
	}
	defer rows.Close()

	return scanVariations(rows)
}

// ListByStation retrieves the most recent variations for a station, newest
// day first. limit <= 0 means no limit.
func (s *VariationStore) ListByStation(ctx context.Context, stationID int64, limit int) ([]*domain.PriceVariation, error) {
	query := `
		SELECT ` + variationColumns + `
		FROM price_variation_history FINAL
		WHERE station_id = ?
		ORDER BY day DESC, detected_at DESC, fuel_type, is_self
	`
	args := []any{stationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by station: %w", err)
	}
	defer rows.Close()

	return scanVariations(rows)
}

// exists checks if a variation with the given id is stored.
// idLookupChunk bounds the IN list of one existence query.
const idLookupChunk = 1000

// storedIDs returns which of ids are already in the table, one query per
// idLookupChunk ids.
func (s *VariationStore) storedIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	stored := make(map[string]struct{})
	for _, chunk := range chunks(ids, idLookupChunk) {
		rows, err := s.conn.Query(ctx, `SELECT DISTINCT id FROM price_variation_history WHERE id IN (?)`, chunk)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			stored[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// scanVariations scans multiple rows.
func scanVariations(rows chRows) ([]*domain.PriceVariation, error) {
	var result []*domain.PriceVariation

	for rows.Next() {
		var (
			v         domain.PriceVariation
			isSelf    uint8
			direction string
			source    string
		)
		err := rows.Scan(
			&v.ID, &v.StationID, &v.FuelType, &isSelf,
			&v.OldPrice, &v.NewPrice, &v.Delta, &v.Percent,
			&direction, &v.Day, &source, &v.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan variation row: %w", err)
		}

		v.IsSelf = isSelf == 1
		v.Direction = domain.Direction(direction)
		v.Source = domain.DetectionSource(source)
		v.Day = v.Day.UTC()
		v.DetectedAt = v.DetectedAt.UTC()
		result = append(result, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variation rows: %w", err)
	}

	return result, nil
}
