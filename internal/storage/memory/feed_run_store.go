package memory

import (
	"context"
	"sync"

	"fuel-price-watch/internal/storage"
)

// FeedRunStore is an in-memory implementation of storage.FeedRunStore.
type FeedRunStore struct {
	mu   sync.RWMutex
	runs map[string]*storage.FeedRun
}

// NewFeedRunStore creates a new in-memory feed run store.
func NewFeedRunStore() *FeedRunStore {
	return &FeedRunStore{
		runs: make(map[string]*storage.FeedRun),
	}
}

// GetLast returns the last recorded run for feed.
func (s *FeedRunStore) GetLast(_ context.Context, feed string) (*storage.FeedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[feed]
	if !ok {
		return nil, storage.ErrNotFound
	}
	runCopy := *run
	return &runCopy, nil
}

// Record saves run as the last run for its feed.
func (s *FeedRunStore) Record(_ context.Context, run *storage.FeedRun) error {
	if run == nil || run.Feed == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runCopy := *run
	s.runs[run.Feed] = &runCopy
	return nil
}

var _ storage.FeedRunStore = (*FeedRunStore)(nil)
