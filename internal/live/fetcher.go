package live

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Default fetcher configuration.
const (
	DefaultConcurrency = 4
	DefaultPause       = 250 * time.Millisecond
)

// StationGetter fetches one station's live record.
type StationGetter interface {
	GetStation(ctx context.Context, stationID int64) (*StationRecord, error)
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Client      StationGetter
	Concurrency int                // stations per window; Default: DefaultConcurrency
	Pause       time.Duration      // pause between windows; 0 disables
	Limiter     *rate.Limiter      // optional request pacing across windows
	Logger      logrus.FieldLogger // Default: logrus.StandardLogger()
}

// StationResult is the outcome for one requested station.
type StationResult struct {
	StationID int64
	Record    *StationRecord // nil when there is no data
	Err       error          // set when the fetch failed
}

// FetchResult collects the outcome of a Fetch call.
type FetchResult struct {
	Results   []StationResult // one per requested station, request order
	Requested int
	Fetched   int // stations with a record
	NoData    int // stations without a record, including failures
	Failed    int // stations whose fetch returned an error other than ErrNoData
}

// Records returns the successful records in request order.
func (r *FetchResult) Records() []StationResult {
	out := make([]StationResult, 0, r.Fetched)
	for _, res := range r.Results {
		if res.Record != nil {
			out = append(out, res)
		}
	}
	return out
}

// Fetcher queries many stations with bounded concurrency. Stations are
// processed in windows of Concurrency requests with a pause in between.
type Fetcher struct {
	client      StationGetter
	concurrency int
	pause       time.Duration
	limiter     *rate.Limiter
	log         logrus.FieldLogger
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	return &Fetcher{
		client:      opts.Client,
		concurrency: concurrency,
		pause:       opts.Pause,
		limiter:     opts.Limiter,
		log:         log,
	}
}

// Concurrency returns the window size.
func (f *Fetcher) Concurrency() int {
	return f.concurrency
}

// Fetch queries every station in stationIDs. A failed station is reported
// as having no data and never fails the call. Cancelling ctx stops before
// the next window; stations not attempted count as failed.
func (f *Fetcher) Fetch(ctx context.Context, stationIDs []int64) FetchResult {
	res := FetchResult{
		Results:   make([]StationResult, len(stationIDs)),
		Requested: len(stationIDs),
	}
	for i, id := range stationIDs {
		res.Results[i].StationID = id
	}

	for start := 0; start < len(stationIDs); start += f.concurrency {
		if start > 0 && f.pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(f.pause):
			}
		}
		if err := ctx.Err(); err != nil {
			for i := start; i < len(stationIDs); i++ {
				res.Results[i].Err = err
			}
			break
		}

		end := start + f.concurrency
		if end > len(stationIDs) {
			end = len(stationIDs)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			slot := &res.Results[i]
			g.Go(func() error {
				slot.Record, slot.Err = f.fetchOne(ctx, slot.StationID)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range res.Results {
		switch {
		case r.Record != nil:
			res.Fetched++
		case r.Err != nil && !errors.Is(r.Err, ErrNoData):
			res.NoData++
			res.Failed++
			f.log.WithError(r.Err).WithField("station_id", r.StationID).Debug("live fetch failed")
		default:
			res.NoData++
		}
	}

	f.log.WithFields(logrus.Fields{
		"requested": res.Requested,
		"fetched":   res.Fetched,
		"no_data":   res.NoData,
		"failed":    res.Failed,
	}).Info("live fetch complete")

	return res
}

func (f *Fetcher) fetchOne(ctx context.Context, stationID int64) (*StationRecord, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	rec, err := f.client.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if rec == nil || len(rec.Fuels) == 0 {
		return nil, ErrNoData
	}
	return rec, nil
}
