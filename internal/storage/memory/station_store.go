package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// StationStore is an in-memory implementation of storage.StationStore.
type StationStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Station
	now  func() time.Time
}

// NewStationStore creates a new in-memory station store.
func NewStationStore() *StationStore {
	return &StationStore{
		data: make(map[int64]*domain.Station),
		now:  time.Now,
	}
}

// Upsert inserts or overwrites a station by StationID.
func (s *StationStore) Upsert(_ context.Context, st *domain.Station) (storage.UpsertResult, error) {
	if st == nil || st.StationID <= 0 {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[st.StationID]
	if ok && existing.SameAs(st) {
		return storage.Unchanged, nil
	}

	stCopy := *st
	stCopy.UpdatedAt = s.now().UTC()
	s.data[st.StationID] = &stCopy

	if ok {
		return storage.Updated, nil
	}
	return storage.Inserted, nil
}

// Get retrieves a station by registry ID. Returns ErrNotFound if not exists.
func (s *StationStore) Get(_ context.Context, stationID int64) (*domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[stationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	stCopy := *st
	return &stCopy, nil
}

// Exists reports whether a station is registered.
func (s *StationStore) Exists(_ context.Context, stationID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[stationID]
	return ok, nil
}

// ListIDs returns all registered station IDs, ascending.
func (s *StationStore) ListIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var _ storage.StationStore = (*StationStore)(nil)
