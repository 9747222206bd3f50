// Package importer applies parsed bulk feeds to the stores: the registry
// importer upserts stations, the price importer runs every observation
// through the variation detector.
package importer

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/feed"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/storage"
)

// FeedRegistryName labels the registry feed in logs, metrics and feed runs.
const FeedRegistryName = "registry"

// RegistryImporter upserts the station registry.
type RegistryImporter struct {
	stations storage.StationStore
	log      logrus.FieldLogger
}

// RegistryOptions configures a RegistryImporter.
type RegistryOptions struct {
	Stations storage.StationStore
	Logger   logrus.FieldLogger // Default: logrus.StandardLogger()
}

// NewRegistryImporter creates a new RegistryImporter.
func NewRegistryImporter(opts RegistryOptions) *RegistryImporter {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	return &RegistryImporter{
		stations: opts.Stations,
		log:      log.WithField("feed", FeedRegistryName),
	}
}

// Import upserts every row of table. Bad rows are skipped and counted; only
// context cancellation stops the batch early.
func (i *RegistryImporter) Import(ctx context.Context, table *feed.Table) (domain.RegistrySummary, error) {
	var sum domain.RegistrySummary
	sum.Total = len(table.Rows) + table.Malformed
	sum.SkippedMalformedRow = table.Malformed
	observability.RecordRowsRead(FeedRegistryName, sum.Total)

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := feed.RegistryRecordFromRow(row)
		if err != nil {
			i.skip(&sum, err)
			continue
		}
		st, err := rec.ToStation()
		if err != nil {
			i.skip(&sum, err)
			continue
		}

		res, err := i.stations.Upsert(ctx, &st)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			i.log.WithError(err).WithField("station_id", st.StationID).Warn("station upsert failed")
			i.skip(&sum, err)
			continue
		}

		switch res {
		case storage.Inserted:
			sum.Inserted++
		case storage.Updated:
			sum.Updated++
		default:
			sum.Unchanged++
		}
		observability.RecordUpsert(FeedRegistryName, res.String())
	}

	i.log.WithFields(logrus.Fields{
		"total":             sum.Total,
		"inserted":          sum.Inserted,
		"updated":           sum.Updated,
		"unchanged":         sum.Unchanged,
		"skipped_bad_id":    sum.SkippedBadStationID,
		"skipped_malformed": sum.SkippedMalformedRow,
		"skipped_store":     sum.SkippedStoreError,
	}).Info("registry import complete")

	return sum, nil
}

func (i *RegistryImporter) skip(sum *domain.RegistrySummary, err error) {
	reason := feed.SkipReasonOf(err)
	switch reason {
	case domain.SkipBadStationID:
		sum.SkippedBadStationID++
	case domain.SkipMalformedRow:
		sum.SkippedMalformedRow++
	default:
		reason = domain.SkipStoreError
		sum.SkippedStoreError++
	}
	observability.RecordSkip(FeedRegistryName, string(reason))
}
