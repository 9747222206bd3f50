package storage

import (
	"context"
	"time"

	"fuel-price-watch/internal/domain"
)

// UpsertResult reports what an upsert-by-natural-key did.
type UpsertResult int

const (
	// Inserted means no row existed for the key.
	Inserted UpsertResult = iota + 1
	// Updated means an existing row was overwritten in place.
	Updated
	// Unchanged means the stored row already held identical values.
	Unchanged
	// Stale means the stored row was communicated later than the incoming
	// value; nothing was written.
	Stale
)

// String returns a lowercase label for logs and metrics.
func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// StationStore provides access to stations storage.
type StationStore interface {
	// Upsert inserts or overwrites a station by StationID.
	Upsert(ctx context.Context, s *domain.Station) (UpsertResult, error)

	// Get retrieves a station by registry ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, stationID int64) (*domain.Station, error)

	// Exists reports whether a station is registered.
	Exists(ctx context.Context, stationID int64) (bool, error)

	// ListIDs returns all registered station IDs, ascending.
	ListIDs(ctx context.Context) ([]int64, error)
}

// PriceStore provides access to price_points and current_prices storage.
// UpsertPrice is the only write path for price points.
type PriceStore interface {
	// UpsertPrice atomically inserts or updates the point for its natural key
	// (station, fuel, day, self) and refreshes the current price view.
	// Re-upserting identical values returns Unchanged. A value communicated
	// before the stored one returns Stale and writes nothing.
	// Returns ErrUnknownStation if the station is not registered.
	UpsertPrice(ctx context.Context, p *domain.PricePoint) (UpsertResult, error)

	// GetPrice retrieves the point for a natural key. Returns nil, nil if absent.
	GetPrice(ctx context.Context, stationID int64, fuelType string, day time.Time, isSelf bool) (*domain.PricePoint, error)

	// GetLatestBefore retrieves the most recent point for the key on a day
	// strictly before day. Returns nil, nil if absent.
	GetLatestBefore(ctx context.Context, key domain.PriceKey, day time.Time) (*domain.PricePoint, error)

	// GetLatestPriorDay returns the most recent day strictly before before
	// holding any point. Returns nil, nil if none.
	GetLatestPriorDay(ctx context.Context, before time.Time) (*time.Time, error)

	// ListByDay retrieves all points of a day ordered by (station, fuel, self).
	ListByDay(ctx context.Context, day time.Time) ([]*domain.PricePoint, error)

	// GetCurrent retrieves the latest price for a key. Returns nil, nil if absent.
	GetCurrent(ctx context.Context, key domain.PriceKey) (*domain.CurrentPrice, error)

	// ListCurrentByStation retrieves current prices for a station ordered by (fuel, self).
	ListCurrentByStation(ctx context.Context, stationID int64) ([]*domain.CurrentPrice, error)
}

// VariationStore provides access to append-only price variation storage.
type VariationStore interface {
	// InsertBulk appends variations. Variations whose ID already exists are
	// skipped, not failed. Returns the number actually inserted.
	InsertBulk(ctx context.Context, variations []*domain.PriceVariation) (int, error)

	// ListByDay retrieves variations of a day ordered by (station, fuel, self, source).
	ListByDay(ctx context.Context, day time.Time) ([]*domain.PriceVariation, error)

	// ListByStation retrieves the most recent variations for a station,
	// newest day first. limit <= 0 means no limit.
	ListByStation(ctx context.Context, stationID int64, limit int) ([]*domain.PriceVariation, error)
}
