// Package variation detects day-over-day price changes and merges the
// variations produced by different detection strategies.
package variation

import (
	"context"
	"fmt"
	"math"
	"time"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/idhash"
	"fuel-price-watch/internal/storage"
)

// DefaultEpsilon absorbs rounding noise at the 3-decimal precision of fuel
// prices. Changes with |delta| <= DefaultEpsilon are not variations.
const DefaultEpsilon = 0.001

// OutcomeKind classifies what Observe did with an observation.
type OutcomeKind int

const (
	// ColdStart means no baseline existed; the observation was stored.
	ColdStart OutcomeKind = iota + 1
	// NoChange means the price is within epsilon of the baseline.
	NoChange
	// Changed means a variation was emitted.
	Changed
	// Ignored means a later observation for the same day is already stored.
	Ignored
)

// String returns a lowercase label for logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case ColdStart:
		return "cold_start"
	case NoChange:
		return "no_change"
	case Changed:
		return "changed"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Outcome is the result of observing one price.
type Outcome struct {
	Kind      OutcomeKind
	Upsert    storage.UpsertResult // zero when nothing was written
	Baseline  *domain.PricePoint   // nil on cold start
	Variation *domain.PriceVariation
}

// Detector compares observations against stored state. It keeps no state of
// its own and does not know which ingestor produced an observation.
type Detector struct {
	store   storage.PriceStore
	epsilon float64
	now     func() time.Time
}

// Options configures a Detector.
type Options struct {
	Store   storage.PriceStore
	Epsilon float64          // Default: DefaultEpsilon
	Now     func() time.Time // Default: time.Now
}

// NewDetector creates a Detector.
func NewDetector(opts Options) *Detector {
	epsilon := opts.Epsilon
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Detector{
		store:   opts.Store,
		epsilon: epsilon,
		now:     now,
	}
}

// Epsilon returns the tolerance in use.
func (d *Detector) Epsilon() float64 {
	return d.epsilon
}

// Observe runs the detect-and-store sequence for one observation:
//  1. baseline = same-day stored point, else latest point of an earlier day
//  2. no baseline: store, cold start
//  3. |new - old| <= epsilon: store, no change
//  4. otherwise build the variation
//  5. store; a Stale upsert suppresses the variation
//
// Returns storage.ErrUnknownStation for unregistered stations.
func (d *Detector) Observe(ctx context.Context, obs domain.PriceObservation) (Outcome, error) {
	if obs.StationID <= 0 || obs.FuelType == "" || obs.Day.IsZero() || !(obs.Price > 0) {
		return Outcome{}, fmt.Errorf("%w: observation %+v", storage.ErrInvalidInput, obs)
	}
	obs.Price = domain.RoundPrice(obs.Price)

	baseline, err := d.store.GetPrice(ctx, obs.StationID, obs.FuelType, obs.Day, obs.IsSelf)
	if err != nil {
		return Outcome{}, fmt.Errorf("get same-day baseline: %w", err)
	}
	if baseline != nil && baseline.CommunicatedAt.After(obs.CommunicatedAt) {
		return Outcome{Kind: Ignored, Baseline: baseline}, nil
	}
	if baseline == nil {
		baseline, err = d.store.GetLatestBefore(ctx, obs.Key(), obs.Day)
		if err != nil {
			return Outcome{}, fmt.Errorf("get prior-day baseline: %w", err)
		}
	}

	var v *domain.PriceVariation
	kind := ColdStart
	if baseline != nil {
		kind = NoChange
		if changed(baseline.Price, obs.Price, d.epsilon) {
			kind = Changed
			v = d.build(baseline.Price, obs.Price, obs.Day, obs.Key(), obs.Source)
		}
	}

	res, err := d.store.UpsertPrice(ctx, obs.Point())
	if err != nil {
		return Outcome{}, err
	}
	if res == storage.Stale {
		// A concurrent writer stored a later observation between read and write.
		return Outcome{Kind: Ignored, Upsert: res, Baseline: baseline}, nil
	}

	return Outcome{Kind: kind, Upsert: res, Baseline: baseline, Variation: v}, nil
}

func (d *Detector) build(oldPrice, newPrice float64, day time.Time, key domain.PriceKey, source domain.DetectionSource) *domain.PriceVariation {
	return NewVariation(oldPrice, newPrice, day, key, source, d.now())
}

// NewVariation builds a variation record. Delta is rounded to the price
// precision; percent is 0 when oldPrice is 0.
func NewVariation(oldPrice, newPrice float64, day time.Time, key domain.PriceKey, source domain.DetectionSource, detectedAt time.Time) *domain.PriceVariation {
	delta := domain.RoundPrice(newPrice - oldPrice)

	percent := 0.0
	if oldPrice != 0 {
		percent = math.Round(delta/oldPrice*100*10000) / 10000
	}

	direction := domain.DirectionUp
	if delta < 0 {
		direction = domain.DirectionDown
	}

	return &domain.PriceVariation{
		ID:         idhash.ComputeVariationID(key.StationID, key.FuelType, key.IsSelf, day, source, oldPrice, newPrice),
		StationID:  key.StationID,
		FuelType:   key.FuelType,
		IsSelf:     key.IsSelf,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		Delta:      delta,
		Percent:    percent,
		Direction:  direction,
		Day:        day,
		Source:     source,
		DetectedAt: detectedAt.UTC(),
	}
}

// changed reports whether |newPrice - oldPrice| exceeds epsilon. The raw
// difference is rounded to 6 decimals first so that 1.900-1.899 compares
// as exactly 0.001.
func changed(oldPrice, newPrice, epsilon float64) bool {
	delta := math.Round((newPrice-oldPrice)*1e6) / 1e6
	return math.Abs(delta) > epsilon
}
