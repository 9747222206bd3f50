package importer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/feed"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/storage"
	"fuel-price-watch/internal/variation"
)

// Feed labels used in logs and metrics.
const (
	FeedPrices = "prices"
	FeedLive   = "live"
)

// PriceImporter runs price observations through the detector.
type PriceImporter struct {
	detector   *variation.Detector
	normalizer *fuelname.Normalizer
	feed       string
	log        logrus.FieldLogger
}

// PriceOptions configures a PriceImporter.
type PriceOptions struct {
	Detector   *variation.Detector
	Normalizer *fuelname.Normalizer
	Feed       string             // metrics/log label; Default: FeedPrices
	Logger     logrus.FieldLogger // Default: logrus.StandardLogger()
}

// NewPriceImporter creates a new PriceImporter.
func NewPriceImporter(opts PriceOptions) *PriceImporter {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	feedName := opts.Feed
	if feedName == "" {
		feedName = FeedPrices
	}
	norm := opts.Normalizer
	if norm == nil {
		norm = fuelname.NewNormalizer(fuelname.Options{Logger: log})
	}
	return &PriceImporter{
		detector:   opts.Detector,
		normalizer: norm,
		feed:       feedName,
		log:        log.WithField("feed", feedName),
	}
}

// Import converts every row of a bulk price table and applies the resulting
// observations. Record failures are skipped and counted.
func (i *PriceImporter) Import(ctx context.Context, table *feed.Table) (domain.ImportSummary, []domain.PriceVariation, error) {
	var sum domain.ImportSummary
	sum.Total = len(table.Rows) + table.Malformed
	sum.SkippedMalformedRow = table.Malformed
	observability.RecordRowsRead(i.feed, sum.Total)

	obs := make([]domain.PriceObservation, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec, err := feed.BulkPriceRecordFromRow(row)
		if err == nil {
			var o domain.PriceObservation
			o, err = rec.ToObservation(i.normalizer)
			if err == nil {
				obs = append(obs, o)
				continue
			}
		}
		i.skip(&sum, feed.SkipReasonOf(err))
		i.log.WithError(err).Debug("price record skipped")
	}

	vs, err := i.apply(ctx, obs, &sum)
	i.logSummary(&sum)
	return sum, vs, err
}

// ImportObservations applies already converted observations, e.g. from the
// live API. Total counts the observations given.
func (i *PriceImporter) ImportObservations(ctx context.Context, obs []domain.PriceObservation) (domain.ImportSummary, []domain.PriceVariation, error) {
	var sum domain.ImportSummary
	sum.Total = len(obs)

	vs, err := i.apply(ctx, obs, &sum)
	i.logSummary(&sum)
	return sum, vs, err
}

// Skip counts an observation rejected before it reached the detector.
func (i *PriceImporter) Skip(sum *domain.ImportSummary, reason domain.SkipReason) {
	i.skip(sum, reason)
}

// apply groups observations by day, processes days ascending and, within a
// day, observations in input order.
func (i *PriceImporter) apply(ctx context.Context, obs []domain.PriceObservation, sum *domain.ImportSummary) ([]domain.PriceVariation, error) {
	byDay := make(map[time.Time][]domain.PriceObservation)
	var days []time.Time
	for _, o := range obs {
		d := o.Day.UTC()
		if _, ok := byDay[d]; !ok {
			days = append(days, d)
		}
		byDay[d] = append(byDay[d], o)
	}
	sort.Slice(days, func(a, b int) bool { return days[a].Before(days[b]) })

	var out []domain.PriceVariation
	for _, d := range days {
		sum.AddDay(d)
		for _, o := range byDay[d] {
			if err := ctx.Err(); err != nil {
				return out, err
			}

			outcome, err := i.detector.Observe(ctx, o)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return out, err
				}
				i.skip(sum, reasonOf(err))
				i.log.WithError(err).WithFields(logrus.Fields{
					"station_id": o.StationID,
					"fuel":       o.FuelType,
				}).Debug("observation skipped")
				continue
			}

			i.count(sum, outcome)
			if wrote(outcome) {
				sum.Written = append(sum.Written, domain.DayKey{Key: o.Key(), Day: d})
			}
			if outcome.Variation != nil {
				out = append(out, *outcome.Variation)
				observability.RecordVariation(string(outcome.Variation.Source), string(outcome.Variation.Direction))
			}
		}
	}
	return out, nil
}

// wrote reports whether outcome stored a new point or a new price for an
// existing one.
func wrote(o variation.Outcome) bool {
	switch o.Upsert {
	case storage.Inserted:
		return true
	case storage.Updated:
		return o.Kind == variation.Changed
	}
	return false
}

func (i *PriceImporter) count(sum *domain.ImportSummary, o variation.Outcome) {
	switch o.Upsert {
	case storage.Inserted:
		sum.Inserted++
	case storage.Updated:
		sum.Updated++
	case storage.Unchanged:
		sum.Unchanged++
	}
	if o.Upsert != 0 {
		observability.RecordUpsert(i.feed, o.Upsert.String())
	}

	switch o.Kind {
	case variation.ColdStart:
		sum.ColdStarts++
	case variation.NoChange:
		sum.NoChange++
	case variation.Changed:
		sum.Variations++
	case variation.Ignored:
		sum.Stale++
		observability.RecordUpsert(i.feed, storage.Stale.String())
	}
}

func (i *PriceImporter) skip(sum *domain.ImportSummary, reason domain.SkipReason) {
	sum.Skip(reason)
	observability.RecordSkip(i.feed, string(reason))
}

func (i *PriceImporter) logSummary(sum *domain.ImportSummary) {
	fields := logrus.Fields{
		"total":       sum.Total,
		"inserted":    sum.Inserted,
		"updated":     sum.Updated,
		"unchanged":   sum.Unchanged,
		"stale":       sum.Stale,
		"cold_starts": sum.ColdStarts,
		"no_change":   sum.NoChange,
		"variations":  sum.Variations,
		"days":        len(sum.Days),
	}
	for _, r := range domain.AllSkipReasons {
		fields["skipped_"+string(r)] = sum.SkippedBy(r)
	}
	i.log.WithFields(fields).Info("price import complete")
}

// reasonOf maps detector and store errors onto skip reasons.
func reasonOf(err error) domain.SkipReason {
	switch {
	case errors.Is(err, storage.ErrUnknownStation):
		return domain.SkipUnknownDistributor
	case errors.Is(err, storage.ErrInvalidInput):
		return domain.SkipMalformedRow
	}
	return domain.SkipStoreError
}
