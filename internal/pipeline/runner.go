// Package pipeline runs one ingestion batch end to end: registry, bulk
// prices, live verification, aggregation and sink dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/feed"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/idhash"
	"fuel-price-watch/internal/importer"
	"fuel-price-watch/internal/live"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/sink"
	"fuel-price-watch/internal/storage"
	"fuel-price-watch/internal/variation"
)

// ErrRunInProgress is returned when a run is requested while another run
// of the same Runner is still going.
var ErrRunInProgress = errors.New("run already in progress")

// TextFetcher downloads a bulk feed document.
type TextFetcher interface {
	FetchText(ctx context.Context, url, marker string) (string, error)
}

// LiveFetcher queries the live API for many stations.
type LiveFetcher interface {
	Fetch(ctx context.Context, stationIDs []int64) live.FetchResult
}

// Options configures a Runner.
type Options struct {
	Feeds       TextFetcher
	RegistryURL string
	PricesURL   string

	Stations storage.StationStore
	Prices   storage.PriceStore
	FeedRuns storage.FeedRunStore // optional; enables SkipUnchanged

	Detector   *variation.Detector
	Normalizer *fuelname.Normalizer // Default: fuelname.NewNormalizer
	Live       LiveFetcher          // optional
	Sinks      []sink.Sink

	SkipUnchanged    bool // skip a feed whose checksum matches the last recorded run
	VerifyVariations bool // live-check every station with a bulk variation
	CompareDays      bool // also compare each imported day with the prior stored day

	Logger logrus.FieldLogger // Default: logrus.StandardLogger()
	Now    func() time.Time   // Default: time.Now
}

// RunOptions selects what one run does.
type RunOptions struct {
	SkipRegistry bool
	LiveStations []int64
	OnlyDown     bool
}

// LiveSummary reports the live verification step.
type LiveSummary struct {
	Requested int
	Fetched   int
	NoData    int
	Failed    int
	Summary   domain.ImportSummary
}

// RunResult contains results from one run.
type RunResult struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Registry       *domain.RegistrySummary // nil when skipped
	Prices         *domain.ImportSummary   // nil when skipped
	Live           *LiveSummary            // nil when no station was checked
	SkippedFeeds   []string                // feeds skipped because unchanged
	DayCompare     int                     // variations found by day comparison
	Variations     []domain.PriceVariation // merged, in dispatch order
	SinkErrors     map[string]string
	BulkVariations int
	LiveVariations int
}

// Runner executes batch runs. Runs of one Runner never overlap; concurrent
// processes are safe because every write is an atomic upsert.
type Runner struct {
	feeds       TextFetcher
	registryURL string
	pricesURL   string

	stations storage.StationStore
	prices   storage.PriceStore
	feedRuns storage.FeedRunStore

	detector   *variation.Detector
	normalizer *fuelname.Normalizer
	live       LiveFetcher
	sinks      []sink.Sink

	registryImporter *importer.RegistryImporter
	priceImporter    *importer.PriceImporter
	liveImporter     *importer.PriceImporter

	skipUnchanged    bool
	verifyVariations bool
	compareDays      bool

	log logrus.FieldLogger
	now func() time.Time

	running sync.Mutex
	active  atomic.Bool

	mu   sync.RWMutex
	last *RunResult
}

// New creates a new Runner.
func New(opts Options) *Runner {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	norm := opts.Normalizer
	if norm == nil {
		norm = fuelname.NewNormalizer(fuelname.Options{
			Logger: log,
			OnMiss: func(string) { observability.RecordNormalizerMiss() },
		})
	}

	return &Runner{
		feeds:       opts.Feeds,
		registryURL: opts.RegistryURL,
		pricesURL:   opts.PricesURL,
		stations:    opts.Stations,
		prices:      opts.Prices,
		feedRuns:    opts.FeedRuns,
		detector:    opts.Detector,
		normalizer:  norm,
		live:        opts.Live,
		sinks:       opts.Sinks,
		registryImporter: importer.NewRegistryImporter(importer.RegistryOptions{
			Stations: opts.Stations,
			Logger:   log,
		}),
		priceImporter: importer.NewPriceImporter(importer.PriceOptions{
			Detector:   opts.Detector,
			Normalizer: norm,
			Feed:       importer.FeedPrices,
			Logger:     log,
		}),
		liveImporter: importer.NewPriceImporter(importer.PriceOptions{
			Detector:   opts.Detector,
			Normalizer: norm,
			Feed:       importer.FeedLive,
			Logger:     log,
		}),
		skipUnchanged:    opts.SkipUnchanged,
		verifyVariations: opts.VerifyVariations,
		compareDays:      opts.CompareDays,
		log:              log,
		now:              now,
	}
}

// LastResult returns the result of the last completed run, or nil.
func (r *Runner) LastResult() *RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.active.Load()
}

// Run executes one batch run.
// Phases:
//  1. Registry feed (unless SkipRegistry)
//  2. Bulk price feed
//  3. Live check of requested stations, plus stations with bulk variations
//     when VerifyVariations is set
//  4. Optional day comparison of the imported days
//  5. Merge, order and publish to every sink
//
// Only a feed that cannot be fetched or parsed fails the run.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()
	r.active.Store(true)
	defer r.active.Store(false)

	start := r.now()
	result := &RunResult{StartedAt: start.UTC(), SinkErrors: map[string]string{}}

	// Phase 1: Registry
	if !opts.SkipRegistry {
		r.log.Info("Phase 1: importing station registry")
		sum, err := r.importRegistry(ctx, result)
		if err != nil {
			return r.fail("registry", start, fmt.Errorf("phase 1 (registry) failed: %w", err))
		}
		result.Registry = sum
	} else {
		r.log.Info("Phase 1: skipping station registry")
	}

	// Phase 2: Bulk prices
	r.log.Info("Phase 2: importing bulk prices")
	sum, bulkVs, err := r.importPrices(ctx, result)
	if err != nil {
		return r.fail("prices", start, fmt.Errorf("phase 2 (prices) failed: %w", err))
	}
	result.Prices = sum
	result.BulkVariations = len(bulkVs)

	// Phase 3: Live verification
	ids := opts.LiveStations
	if r.verifyVariations {
		ids = appendStationIDs(ids, bulkVs)
	}
	liveVs, err := r.checkLive(ctx, ids, result)
	if err != nil {
		return r.fail("live", start, fmt.Errorf("phase 3 (live) failed: %w", err))
	}

	// Phase 4: Day comparison
	var dayVs []domain.PriceVariation
	if r.compareDays && sum != nil {
		r.log.Info("Phase 4: comparing imported days")
		// Only points written by this run are compared, so a repeated feed
		// publishes nothing again.
		for _, d := range sum.Days {
			written := sum.WrittenOn(d)
			if written == nil {
				continue
			}
			vs, err := variation.CompareDays(ctx, r.prices, d, written, r.detector.Epsilon(), r.now())
			if err != nil {
				r.log.WithError(err).WithField("day", d.Format("2006-01-02")).Warn("day comparison failed")
				continue
			}
			dayVs = append(dayVs, vs...)
		}
		result.DayCompare = len(dayVs)
	}

	// Phase 5: Dispatch
	r.dispatch(ctx, result, opts.OnlyDown, bulkVs, liveVs, dayVs)

	return r.finish(start, result), nil
}

// Refresh live-checks stationIDs outside the scheduled batch and publishes
// any variation found.
func (r *Runner) Refresh(ctx context.Context, stationIDs []int64) (*RunResult, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()
	r.active.Store(true)
	defer r.active.Store(false)

	start := r.now()
	result := &RunResult{StartedAt: start.UTC(), SinkErrors: map[string]string{}}

	liveVs, err := r.checkLive(ctx, stationIDs, result)
	if err != nil {
		return r.fail("refresh", start, err)
	}
	r.dispatch(ctx, result, false, liveVs)

	observability.RecordPipelineRun("refresh", "success", r.now().Sub(start).Seconds())
	result.FinishedAt = r.now().UTC()
	return result, nil
}

func (r *Runner) importRegistry(ctx context.Context, result *RunResult) (*domain.RegistrySummary, error) {
	text, skipped, err := r.fetch(ctx, importer.FeedRegistryName, r.registryURL, feed.RegistryMarker)
	if err != nil || skipped {
		if skipped {
			result.SkippedFeeds = append(result.SkippedFeeds, importer.FeedRegistryName)
		}
		return nil, err
	}

	table, err := feed.ReadTable(text, feed.RegistryMarker)
	if err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	sum, err := r.registryImporter.Import(ctx, table)
	if err != nil {
		return nil, err
	}
	r.recordRun(ctx, importer.FeedRegistryName, text, sum.Total, time.Time{})
	return &sum, nil
}

func (r *Runner) importPrices(ctx context.Context, result *RunResult) (*domain.ImportSummary, []domain.PriceVariation, error) {
	text, skipped, err := r.fetch(ctx, importer.FeedPrices, r.pricesURL, feed.PriceMarker)
	if err != nil || skipped {
		if skipped {
			result.SkippedFeeds = append(result.SkippedFeeds, importer.FeedPrices)
		}
		return nil, nil, err
	}

	table, err := feed.ReadTable(text, feed.PriceMarker)
	if err != nil {
		return nil, nil, fmt.Errorf("parse prices: %w", err)
	}
	sum, vs, err := r.priceImporter.Import(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	var latest time.Time
	if n := len(sum.Days); n > 0 {
		latest = sum.Days[n-1]
	}
	r.recordRun(ctx, importer.FeedPrices, text, sum.Total, latest)
	return &sum, vs, nil
}

// fetch downloads a feed. skipped is true when the document is identical to
// the last recorded run and SkipUnchanged is set.
func (r *Runner) fetch(ctx context.Context, name, url, marker string) (string, bool, error) {
	start := time.Now()
	text, err := r.feeds.FetchText(ctx, url, marker)
	observability.RecordFeedFetch(name, time.Since(start).Seconds(), err)
	if err != nil {
		return "", false, err
	}

	if r.skipUnchanged && r.feedRuns != nil {
		last, err := r.feedRuns.GetLast(ctx, name)
		switch {
		case err == nil && last.Checksum == idhash.ComputeFeedChecksum(text):
			r.log.WithField("feed", name).Info("feed unchanged since last run, skipping")
			return "", true, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			r.log.WithError(err).WithField("feed", name).Warn("cannot read last feed run")
		}
	}
	return text, false, nil
}

func (r *Runner) recordRun(ctx context.Context, name, text string, rows int, latest time.Time) {
	if r.feedRuns == nil {
		return
	}
	err := r.feedRuns.Record(ctx, &storage.FeedRun{
		Feed:       name,
		Checksum:   idhash.ComputeFeedChecksum(text),
		Rows:       rows,
		LatestDay:  latest,
		FinishedAt: r.now().UTC(),
	})
	if err != nil {
		r.log.WithError(err).WithField("feed", name).Warn("cannot record feed run")
	}
}

// checkLive fetches ids from the live API and runs their observations
// through the detector. Per-station failures are counted, never returned.
func (r *Runner) checkLive(ctx context.Context, ids []int64, result *RunResult) ([]domain.PriceVariation, error) {
	if r.live == nil || len(ids) == 0 {
		return nil, nil
	}
	r.log.WithField("stations", len(ids)).Info("Phase 3: checking live prices")

	fetched := r.live.Fetch(ctx, ids)
	ls := &LiveSummary{
		Requested: fetched.Requested,
		Fetched:   fetched.Fetched,
		NoData:    fetched.NoData,
		Failed:    fetched.Failed,
	}

	var (
		obs      []domain.PriceObservation
		rejected []live.Rejected
	)
	for _, res := range fetched.Records() {
		o, rej := live.ToObservations(res.StationID, res.Record, r.normalizer)
		obs = append(obs, o...)
		rejected = append(rejected, rej...)
	}

	sum, vs, err := r.liveImporter.ImportObservations(ctx, obs)
	sum.Total += len(rejected)
	for _, rej := range rejected {
		r.liveImporter.Skip(&sum, rej.Reason)
	}
	ls.Summary = sum
	result.Live = ls
	result.LiveVariations = len(vs)
	return vs, err
}

func (r *Runner) dispatch(ctx context.Context, result *RunResult, onlyDown bool, sets ...[]domain.PriceVariation) {
	result.Variations = variation.Order(variation.Merge(sets...), onlyDown)

	for _, s := range r.sinks {
		if err := s.Publish(ctx, result.Variations); err != nil {
			observability.RecordSinkError(s.Name())
			result.SinkErrors[s.Name()] = err.Error()
			r.log.WithError(err).WithField("sink", s.Name()).Warn("sink publish failed")
		}
	}
}

func (r *Runner) fail(phase string, start time.Time, err error) (*RunResult, error) {
	observability.RecordPipelineRun(phase, "error", r.now().Sub(start).Seconds())
	r.log.WithError(err).Error("batch run failed")
	return nil, err
}

func (r *Runner) finish(start time.Time, result *RunResult) *RunResult {
	end := r.now()
	result.FinishedAt = end.UTC()
	observability.RecordPipelineRun("batch", "success", end.Sub(start).Seconds())
	observability.RecordBatchSuccess(end.Unix())

	fields := logrus.Fields{
		"variations":      len(result.Variations),
		"bulk_variations": result.BulkVariations,
		"live_variations": result.LiveVariations,
		"day_compare":     result.DayCompare,
		"sink_errors":     len(result.SinkErrors),
		"elapsed":         end.Sub(start).Round(time.Millisecond),
	}
	if result.Prices != nil {
		fields["prices_total"] = result.Prices.Total
		fields["prices_skipped"] = result.Prices.Skipped()
	}
	r.log.WithFields(fields).Info("batch run complete")

	r.mu.Lock()
	r.last = result
	r.mu.Unlock()
	return result
}

// appendStationIDs adds the stations of vs to ids, keeping first-seen order
// and dropping duplicates.
func appendStationIDs(ids []int64, vs []domain.PriceVariation) []int64 {
	seen := make(map[int64]bool, len(ids)+len(vs))
	out := make([]int64, 0, len(ids)+len(vs))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, v := range vs {
		if !seen[v.StationID] {
			seen[v.StationID] = true
			out = append(out, v.StationID)
		}
	}
	return out
}
