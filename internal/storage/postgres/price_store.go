package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
// price_points holds one row per natural key; current_prices is refreshed in
// the same transaction.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

const pricePointColumns = `station_id, fuel_type, day, is_self, price, communicated_at`

// UpsertPrice atomically inserts or updates the point for its natural key.
// A row communicated later than p is never overwritten.
func (s *PriceStore) UpsertPrice(ctx context.Context, p *domain.PricePoint) (result storage.UpsertResult, err error) {
	defer observe("price_upsert", time.Now(), &err)

	if p == nil || p.StationID <= 0 || p.FuelType == "" || p.Day.IsZero() {
		return 0, storage.ErrInvalidInput
	}

	d := day(p.Day)
	price := domain.RoundPrice(p.Price)
	at := p.CommunicatedAt.UTC()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var inserted bool
		err := tx.QueryRow(ctx, `
			INSERT INTO price_points (`+pricePointColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (station_id, fuel_type, day, is_self) DO UPDATE
			SET price = EXCLUDED.price,
			    communicated_at = EXCLUDED.communicated_at
			WHERE price_points.communicated_at <= EXCLUDED.communicated_at
			  AND (price_points.price <> EXCLUDED.price
			       OR price_points.communicated_at <> EXCLUDED.communicated_at)
			RETURNING (xmax = 0)
		`, p.StationID, p.FuelType, d, p.IsSelf, price, at).Scan(&inserted)

		if isNotFoundError(err) {
			// Conflict without update: either identical or stale.
			var stored time.Time
			err = tx.QueryRow(ctx, `
				SELECT communicated_at FROM price_points
				WHERE station_id = $1 AND fuel_type = $2 AND day = $3 AND is_self = $4
			`, p.StationID, p.FuelType, d, p.IsSelf).Scan(&stored)
			if err != nil {
				return fmt.Errorf("read conflicting point: %w", err)
			}
			if stored.After(at) {
				result = storage.Stale
			} else {
				result = storage.Unchanged
			}
			return nil
		}
		if err != nil {
			if isForeignKeyError(err) {
				return storage.ErrUnknownStation
			}
			return fmt.Errorf("upsert price point: %w", err)
		}

		result = storage.Updated
		if inserted {
			result = storage.Inserted
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO current_prices (station_id, fuel_type, is_self, day, price, communicated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (station_id, fuel_type, is_self) DO UPDATE
			SET day = EXCLUDED.day,
			    price = EXCLUDED.price,
			    communicated_at = EXCLUDED.communicated_at
			WHERE (current_prices.day, current_prices.communicated_at)
			      <= (EXCLUDED.day, EXCLUDED.communicated_at)
		`, p.StationID, p.FuelType, p.IsSelf, d, price, at)
		if err != nil {
			return fmt.Errorf("refresh current price: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// GetPrice retrieves the point for a natural key. Returns nil, nil if absent.
func (s *PriceStore) GetPrice(ctx context.Context, stationID int64, fuelType string, d time.Time, isSelf bool) (*domain.PricePoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pricePointColumns+`
		FROM price_points
		WHERE station_id = $1 AND fuel_type = $2 AND day = $3 AND is_self = $4
	`, stationID, fuelType, day(d), isSelf)

	p, err := scanPricePoint(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get price point: %w", err)
	}
	return p, nil
}

// GetLatestBefore retrieves the most recent point for the key on a day
// strictly before d. Returns nil, nil if absent.
func (s *PriceStore) GetLatestBefore(ctx context.Context, key domain.PriceKey, d time.Time) (*domain.PricePoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pricePointColumns+`
		FROM price_points
		WHERE station_id = $1 AND fuel_type = $2 AND is_self = $3 AND day < $4
		ORDER BY day DESC
		LIMIT 1
	`, key.StationID, key.FuelType, key.IsSelf, day(d))

	p, err := scanPricePoint(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest point before %s: %w", d.Format("2006-01-02"), err)
	}
	return p, nil
}

// GetLatestPriorDay returns the most recent day strictly before before
// holding any point. Returns nil, nil if none.
func (s *PriceStore) GetLatestPriorDay(ctx context.Context, before time.Time) (*time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(day) FROM price_points WHERE day < $1`, day(before)).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("get latest prior day: %w", err)
	}
	if latest != nil {
		d := day(*latest)
		latest = &d
	}
	return latest, nil
}

// ListByDay retrieves all points of a day ordered by (station, fuel, self).
func (s *PriceStore) ListByDay(ctx context.Context, d time.Time) ([]*domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pricePointColumns+`
		FROM price_points
		WHERE day = $1
		ORDER BY station_id, fuel_type, is_self
	`, day(d))
	if err != nil {
		return nil, fmt.Errorf("list price points: %w", err)
	}
	defer rows.Close()

	var result []*domain.PricePoint
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetCurrent retrieves the latest price for a key. Returns nil, nil if absent.
func (s *PriceStore) GetCurrent(ctx context.Context, key domain.PriceKey) (*domain.CurrentPrice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT station_id, fuel_type, is_self, day, price, communicated_at
		FROM current_prices
		WHERE station_id = $1 AND fuel_type = $2 AND is_self = $3
	`, key.StationID, key.FuelType, key.IsSelf)

	c, err := scanCurrentPrice(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get current price: %w", err)
	}
	return c, nil
}

// ListCurrentByStation retrieves current prices for a station ordered by (fuel, self).
func (s *PriceStore) ListCurrentByStation(ctx context.Context, stationID int64) ([]*domain.CurrentPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT station_id, fuel_type, is_self, day, price, communicated_at
		FROM current_prices
		WHERE station_id = $1
		ORDER BY fuel_type, is_self
	`, stationID)
	if err != nil {
		return nil, fmt.Errorf("list current prices: %w", err)
	}
	defer rows.Close()

	var result []*domain.CurrentPrice
	for rows.Next() {
		c, err := scanCurrentPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan current price: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanPricePoint(row pgx.Row) (*domain.PricePoint, error) {
	var p domain.PricePoint
	if err := row.Scan(&p.StationID, &p.FuelType, &p.Day, &p.IsSelf, &p.Price, &p.CommunicatedAt); err != nil {
		return nil, err
	}
	p.Day = day(p.Day)
	p.CommunicatedAt = p.CommunicatedAt.UTC()
	return &p, nil
}

func scanCurrentPrice(row pgx.Row) (*domain.CurrentPrice, error) {
	var c domain.CurrentPrice
	if err := row.Scan(&c.StationID, &c.FuelType, &c.IsSelf, &c.Day, &c.Price, &c.CommunicatedAt); err != nil {
		return nil, err
	}
	c.Day = day(c.Day)
	c.CommunicatedAt = c.CommunicatedAt.UTC()
	return &c, nil
}
