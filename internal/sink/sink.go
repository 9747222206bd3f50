// Package sink delivers each run's ordered variations to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/storage"
)

// Sink consumes the ordered variation sequence of one batch run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, vs []domain.PriceVariation) error
}

// NamedStore is a VariationStore with a label for logs and metrics.
type NamedStore struct {
	Name  string
	Store storage.VariationStore
}

// StoreSink persists variations to one or more VariationStores.
// Duplicates (same variation ID) are skipped by the stores.
type StoreSink struct {
	stores []NamedStore
}

// NewStoreSink creates a StoreSink writing to every store in order.
func NewStoreSink(stores ...NamedStore) *StoreSink {
	return &StoreSink{stores: stores}
}

// Name implements Sink.
func (s *StoreSink) Name() string {
	return "store"
}

// Publish writes vs to every store. A failing store does not prevent the
// others from being written; all errors are joined.
func (s *StoreSink) Publish(ctx context.Context, vs []domain.PriceVariation) error {
	if len(vs) == 0 {
		return nil
	}
	ptrs := make([]*domain.PriceVariation, len(vs))
	for i := range vs {
		ptrs[i] = &vs[i]
	}

	var errs []error
	for _, ns := range s.stores {
		n, err := ns.Store.InsertBulk(ctx, ptrs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ns.Name, err))
			continue
		}
		observability.RecordVariationsStored(ns.Name, n)
	}
	return errors.Join(errs...)
}

var _ Sink = (*StoreSink)(nil)
