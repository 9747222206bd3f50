package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// VariationStore is an in-memory implementation of storage.VariationStore.
type VariationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceVariation // keyed by variation ID
}

// NewVariationStore creates a new in-memory variation store.
func NewVariationStore() *VariationStore {
	return &VariationStore{
		data: make(map[string]*domain.PriceVariation),
	}
}

// InsertBulk appends variations, skipping IDs that already exist.
func (s *VariationStore) InsertBulk(_ context.Context, variations []*domain.PriceVariation) (int, error) {
	for _, v := range variations {
		if v == nil || v.ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, v := range variations {
		if _, exists := s.data[v.ID]; exists {
			continue
		}
		vCopy := *v
		s.data[v.ID] = &vCopy
		inserted++
	}
	return inserted, nil
}

// ListByDay retrieves variations of a day ordered by (station, fuel, self, source).
func (s *VariationStore) ListByDay(_ context.Context, day time.Time) ([]*domain.PriceVariation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceVariation
	for _, v := range s.data {
		if v.Day.Equal(day) {
			vCopy := *v
			result = append(result, &vCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Key() != b.Key() {
			return lessKey(a.Key(), b.Key())
		}
		return a.Source < b.Source
	})
	return result, nil
}

// ListByStation retrieves the most recent variations for a station, newest day first.
func (s *VariationStore) ListByStation(_ context.Context, stationID int64, limit int) ([]*domain.PriceVariation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceVariation
	for _, v := range s.data {
		if v.StationID == stationID {
			vCopy := *v
			result = append(result, &vCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.After(b.Day)
		}
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.After(b.DetectedAt)
		}
		return lessKey(a.Key(), b.Key())
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.VariationStore = (*VariationStore)(nil)
