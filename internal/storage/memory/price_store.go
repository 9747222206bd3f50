package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// pointKey is the natural key of a price point.
type pointKey struct {
	stationID int64
	fuelType  string
	day       int64 // unix seconds of UTC midnight
	isSelf    bool
}

func keyOf(stationID int64, fuelType string, day time.Time, isSelf bool) pointKey {
	return pointKey{stationID: stationID, fuelType: fuelType, day: day.UTC().Unix(), isSelf: isSelf}
}

// PriceStore is an in-memory implementation of storage.PriceStore.
// A single mutex makes UpsertPrice atomic per natural key.
type PriceStore struct {
	mu       sync.RWMutex
	points   map[pointKey]*domain.PricePoint
	current  map[domain.PriceKey]*domain.CurrentPrice
	stations storage.StationStore // optional, enables ErrUnknownStation
}

// NewPriceStore creates a new in-memory price store. When stations is not
// nil, upserts for unregistered stations fail with storage.ErrUnknownStation.
func NewPriceStore(stations storage.StationStore) *PriceStore {
	return &PriceStore{
		points:   make(map[pointKey]*domain.PricePoint),
		current:  make(map[domain.PriceKey]*domain.CurrentPrice),
		stations: stations,
	}
}

// UpsertPrice atomically inserts or updates the point for its natural key.
func (s *PriceStore) UpsertPrice(ctx context.Context, p *domain.PricePoint) (storage.UpsertResult, error) {
	if p == nil || p.StationID <= 0 || p.FuelType == "" || p.Day.IsZero() {
		return 0, storage.ErrInvalidInput
	}

	if s.stations != nil {
		ok, err := s.stations.Exists(ctx, p.StationID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, storage.ErrUnknownStation
		}
	}

	pCopy := *p
	pCopy.Day = p.Day.UTC()
	pCopy.CommunicatedAt = p.CommunicatedAt.UTC()
	pCopy.Price = domain.RoundPrice(p.Price)
	key := keyOf(pCopy.StationID, pCopy.FuelType, pCopy.Day, pCopy.IsSelf)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.points[key]
	result := storage.Inserted
	if ok {
		switch {
		case existing.CommunicatedAt.After(pCopy.CommunicatedAt):
			return storage.Stale, nil
		case existing.Price == pCopy.Price && existing.CommunicatedAt.Equal(pCopy.CommunicatedAt):
			return storage.Unchanged, nil
		}
		result = storage.Updated
	}

	s.points[key] = &pCopy
	s.refreshCurrent(&pCopy)
	return result, nil
}

// refreshCurrent replaces the current price when p is at least as recent.
// Caller must hold the write lock.
func (s *PriceStore) refreshCurrent(p *domain.PricePoint) {
	k := p.Key()
	cur, ok := s.current[k]
	if ok {
		if cur.Day.After(p.Day) {
			return
		}
		if cur.Day.Equal(p.Day) && cur.CommunicatedAt.After(p.CommunicatedAt) {
			return
		}
	}
	s.current[k] = &domain.CurrentPrice{
		StationID:      p.StationID,
		FuelType:       p.FuelType,
		IsSelf:         p.IsSelf,
		Day:            p.Day,
		Price:          p.Price,
		CommunicatedAt: p.CommunicatedAt,
	}
}

// GetPrice retrieves the point for a natural key. Returns nil, nil if absent.
func (s *PriceStore) GetPrice(_ context.Context, stationID int64, fuelType string, day time.Time, isSelf bool) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.points[keyOf(stationID, fuelType, day, isSelf)]
	if !ok {
		return nil, nil
	}
	pCopy := *p
	return &pCopy, nil
}

// GetLatestBefore retrieves the most recent point for the key strictly before day.
func (s *PriceStore) GetLatestBefore(_ context.Context, key domain.PriceKey, day time.Time) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PricePoint
	for _, p := range s.points {
		if p.StationID != key.StationID || p.FuelType != key.FuelType || p.IsSelf != key.IsSelf {
			continue
		}
		if !p.Day.Before(day) {
			continue
		}
		if best == nil || p.Day.After(best.Day) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	pCopy := *best
	return &pCopy, nil
}

// GetLatestPriorDay returns the most recent day strictly before before.
func (s *PriceStore) GetLatestPriorDay(_ context.Context, before time.Time) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *time.Time
	for _, p := range s.points {
		if !p.Day.Before(before) {
			continue
		}
		if best == nil || p.Day.After(*best) {
			d := p.Day
			best = &d
		}
	}
	return best, nil
}

// ListByDay retrieves all points of a day ordered by (station, fuel, self).
func (s *PriceStore) ListByDay(_ context.Context, day time.Time) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.points {
		if p.Day.Equal(day) {
			pCopy := *p
			result = append(result, &pCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lessKey(result[i].Key(), result[j].Key())
	})
	return result, nil
}

// GetCurrent retrieves the latest price for a key. Returns nil, nil if absent.
func (s *PriceStore) GetCurrent(_ context.Context, key domain.PriceKey) (*domain.CurrentPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.current[key]
	if !ok {
		return nil, nil
	}
	cCopy := *c
	return &cCopy, nil
}

// ListCurrentByStation retrieves current prices for a station ordered by (fuel, self).
func (s *PriceStore) ListCurrentByStation(_ context.Context, stationID int64) ([]*domain.CurrentPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CurrentPrice
	for k, c := range s.current {
		if k.StationID == stationID {
			cCopy := *c
			result = append(result, &cCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lessKey(result[i].Key(), result[j].Key())
	})
	return result, nil
}

// lessKey orders keys by station, fuel, then served before self.
func lessKey(a, b domain.PriceKey) bool {
	if a.StationID != b.StationID {
		return a.StationID < b.StationID
	}
	if a.FuelType != b.FuelType {
		return a.FuelType < b.FuelType
	}
	return !a.IsSelf && b.IsSelf
}

var _ storage.PriceStore = (*PriceStore)(nil)
