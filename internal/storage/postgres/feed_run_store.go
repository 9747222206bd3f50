package postgres

import (
	"context"
	"fmt"
	"time"

	"fuel-price-watch/internal/storage"
)

// FeedRunStore implements storage.FeedRunStore using PostgreSQL.
// Uses the feed_runs table, one row per feed.
type FeedRunStore struct {
	pool *Pool
}

// NewFeedRunStore creates a new PostgreSQL feed run store.
func NewFeedRunStore(pool *Pool) *FeedRunStore {
	return &FeedRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedRunStore = (*FeedRunStore)(nil)

// GetLast returns the last recorded run for feed.
func (s *FeedRunStore) GetLast(ctx context.Context, feed string) (*storage.FeedRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT feed, checksum, rows_read, latest_day, finished_at
		FROM feed_runs
		WHERE feed = $1
	`, feed)

	var (
		run    storage.FeedRun
		latest *time.Time
	)
	err := row.Scan(&run.Feed, &run.Checksum, &run.Rows, &latest, &run.FinishedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get feed run: %w", err)
	}
	if latest != nil {
		run.LatestDay = day(*latest)
	}
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}

// Record saves run as the last run for its feed.
// Uses upsert to handle initial insert and subsequent updates.
func (s *FeedRunStore) Record(ctx context.Context, run *storage.FeedRun) error {
	if run == nil || run.Feed == "" {
		return storage.ErrInvalidInput
	}

	var latest *time.Time
	if !run.LatestDay.IsZero() {
		d := day(run.LatestDay)
		latest = &d
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_runs (feed, checksum, rows_read, latest_day, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (feed) DO UPDATE
		SET checksum = EXCLUDED.checksum,
		    rows_read = EXCLUDED.rows_read,
		    latest_day = EXCLUDED.latest_day,
		    finished_at = EXCLUDED.finished_at
	`, run.Feed, run.Checksum, run.Rows, latest, run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("record feed run: %w", err)
	}
	return nil
}
