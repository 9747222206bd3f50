package storage

import (
	"context"
	"time"
)

// FeedRun records the last successful import of a bulk feed.
// It lets a scheduler skip re-importing an unchanged document.
type FeedRun struct {
	Feed       string    // "registry" or "prices"
	Checksum   string    // sha256 of the decoded document
	Rows       int       // data rows read
	LatestDay  time.Time // latest communication day seen (zero for registry)
	FinishedAt time.Time
}

// FeedRunStore provides persistence for feed import progress.
type FeedRunStore interface {
	// GetLast returns the last recorded run for feed.
	// Returns ErrNotFound if the feed was never imported.
	GetLast(ctx context.Context, feed string) (*FeedRun, error)

	// Record saves run as the last run for its feed, replacing any previous one.
	Record(ctx context.Context, run *FeedRun) error
}
