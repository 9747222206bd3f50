// Package app wires configuration into stores and a pipeline runner for the
// commands.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fuel-price-watch/internal/config"
	"fuel-price-watch/internal/feed"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/live"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/pipeline"
	"fuel-price-watch/internal/sink"
	"fuel-price-watch/internal/storage"
	chstore "fuel-price-watch/internal/storage/clickhouse"
	"fuel-price-watch/internal/storage/memory"
	pgstore "fuel-price-watch/internal/storage/postgres"
	"fuel-price-watch/internal/variation"
)

// Stores holds all storage implementations.
type Stores struct {
	Stations   storage.StationStore
	Prices     storage.PriceStore
	Variations storage.VariationStore
	FeedRuns   storage.FeedRunStore
	History    storage.VariationStore // ClickHouse history; nil when not configured
}

// VariationSink persists each run's variations to the primary store and,
// when configured, to the history store.
func (s *Stores) VariationSink() *sink.StoreSink {
	stores := []sink.NamedStore{{Name: "primary", Store: s.Variations}}
	if s.History != nil {
		stores = append(stores, sink.NamedStore{Name: "history", Store: s.History})
	}
	return sink.NewStoreSink(stores...)
}

// OpenStores creates the stores selected by cfg. The returned cleanup closes
// any connection opened.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*Stores, func(), error) {
	if cfg.UseMemory {
		log.Info("using in-memory storage")
		stations := memory.NewStationStore()
		return &Stores{
			Stations:   stations,
			Prices:     memory.NewPriceStore(stations),
			Variations: memory.NewVariationStore(),
			FeedRuns:   memory.NewFeedRunStore(),
		}, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	stores := &Stores{
		Stations:   pgstore.NewStationStore(pool),
		Prices:     pgstore.NewPriceStore(pool),
		Variations: pgstore.NewVariationStore(pool),
		FeedRuns:   pgstore.NewFeedRunStore(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse (optional)
	if cfg.ClickhouseDSN != "" {
		chConn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.History = chstore.NewVariationStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// NewLiveClient builds the live API client from cfg.
func NewLiveClient(cfg config.LiveConfig, log logrus.FieldLogger) *live.Client {
	return live.NewClient(cfg.BaseURL,
		live.WithTimeout(cfg.Timeout),
		live.WithMaxRetries(cfg.MaxRetries),
		live.WithBreaker(cfg.BreakerFailures, cfg.BreakerTimeout),
		live.WithLogger(log),
	)
}

// NewLiveFetcher builds a bounded-concurrency fetcher over client.
func NewLiveFetcher(cfg config.LiveConfig, client live.StationGetter, log logrus.FieldLogger) *live.Fetcher {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency)
	}
	return live.NewFetcher(live.FetcherOptions{
		Client:      client,
		Concurrency: cfg.Concurrency,
		Pause:       cfg.Pause,
		Limiter:     limiter,
		Logger:      log,
	})
}

// RunnerDeps are the parts of a runner that commands build themselves.
type RunnerDeps struct {
	Feeds pipeline.TextFetcher // Default: feed.NewFetcher from cfg.Feeds
	Live  pipeline.LiveFetcher // Default: NewLiveFetcher(NewLiveClient(...))
	Sinks []sink.Sink
}

// NewRunner builds a pipeline runner over stores.
func NewRunner(cfg *config.Config, stores *Stores, deps RunnerDeps, log logrus.FieldLogger) *pipeline.Runner {
	feeds := deps.Feeds
	if feeds == nil {
		feeds = feed.NewFetcher(feed.Options{Timeout: cfg.Feeds.Timeout, Logger: log})
	}
	liveFetcher := deps.Live
	if liveFetcher == nil {
		liveFetcher = NewLiveFetcher(cfg.Live, NewLiveClient(cfg.Live, log), log)
	}

	return pipeline.New(pipeline.Options{
		Feeds:       feeds,
		RegistryURL: cfg.Feeds.RegistryURL,
		PricesURL:   cfg.Feeds.PricesURL,
		Stations:    stores.Stations,
		Prices:      stores.Prices,
		FeedRuns:    stores.FeedRuns,
		Detector: variation.NewDetector(variation.Options{
			Store:   stores.Prices,
			Epsilon: cfg.Detector.Epsilon,
		}),
		Normalizer: fuelname.NewNormalizer(fuelname.Options{
			Logger: log,
			OnMiss: func(string) { observability.RecordNormalizerMiss() },
		}),
		Live:             liveFetcher,
		Sinks:            deps.Sinks,
		SkipUnchanged:    cfg.Feeds.SkipUnchanged,
		VerifyVariations: cfg.Live.VerifyVariations,
		CompareDays:      cfg.Detector.CompareDays,
		Logger:           log,
	})
}
