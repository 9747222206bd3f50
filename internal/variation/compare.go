package variation

import (
	"context"
	"fmt"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/storage"
)

// CompareDays is the stored bulk-vs-bulk strategy: every point of day is
// compared with the point of the same key on the latest prior stored day.
// It is read-only. Keys missing on either day produce nothing. A non-nil
// only restricts the comparison to those keys; an empty one yields nothing.
func CompareDays(ctx context.Context, store storage.PriceStore, day time.Time, only map[domain.PriceKey]bool, epsilon float64, now time.Time) ([]domain.PriceVariation, error) {
	if only != nil && len(only) == 0 {
		return nil, nil
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	prior, err := store.GetLatestPriorDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("get latest prior day: %w", err)
	}
	if prior == nil {
		return nil, nil
	}

	current, err := store.ListByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list points of %s: %w", day.Format("2006-01-02"), err)
	}
	previous, err := store.ListByDay(ctx, *prior)
	if err != nil {
		return nil, fmt.Errorf("list points of %s: %w", prior.Format("2006-01-02"), err)
	}

	baseline := make(map[domain.PriceKey]*domain.PricePoint, len(previous))
	for _, p := range previous {
		baseline[p.Key()] = p
	}

	var out []domain.PriceVariation
	for _, p := range current {
		if only != nil && !only[p.Key()] {
			continue
		}
		old, ok := baseline[p.Key()]
		if !ok || !changed(old.Price, p.Price, epsilon) {
			continue
		}
		out = append(out, *NewVariation(old.Price, p.Price, day, p.Key(), domain.SourceDayCompare, now))
	}
	return out, nil
}
