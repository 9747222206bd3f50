// Command ingest runs one batch: station registry, bulk prices and an
// optional live check. It prints a summary and writes the variation report.
// The exit status is non-zero only when a feed cannot be fetched or parsed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"fuel-price-watch/internal/app"
	"fuel-price-watch/internal/config"
	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/logging"
	"fuel-price-watch/internal/pipeline"
	"fuel-price-watch/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: $CONFIG_PATH or ./config.yaml)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	onlyDown := flag.Bool("only-down", false, "Report price decreases only")
	stations := flag.String("stations", "", "Comma-separated station IDs to check against the live API")
	skipRegistry := flag.Bool("skip-registry", false, "Do not import the station registry")
	output := flag.String("output", "", "Variation CSV path, - for stdout (default: <output.dir>/variations_<time>.csv)")

	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *useMemory {
			c.Database.UseMemory = true
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	log := logger.WithField("cmd", "ingest")

	ids, err := parseStationIDs(*stations)
	if err != nil {
		log.WithError(err).Fatal("invalid --stations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	sinks := []sink.Sink{stores.VariationSink()}
	if *output == "" {
		sinks = append(sinks, sink.NewCSVSink(cfg.Output.Dir))
	}

	runner := app.NewRunner(cfg, stores, app.RunnerDeps{Sinks: sinks}, log)
	res, err := runner.Run(ctx, pipeline.RunOptions{
		SkipRegistry: *skipRegistry,
		LiveStations: ids,
		OnlyDown:     *onlyDown || cfg.Server.OnlyDown,
	})
	if err != nil {
		log.WithError(err).Error("batch failed")
		cleanup()
		os.Exit(1)
	}

	printSummary(os.Stdout, res)

	if *output != "" {
		if err := writeReport(*output, res.Variations); err != nil {
			log.WithError(err).Error("cannot write variation report")
		}
	}
}

// parseStationIDs parses a comma-separated list of positive station IDs.
func parseStationIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad station id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeReport(path string, vs []domain.PriceVariation) error {
	if path == "-" {
		return sink.WriteCSV(os.Stdout, vs)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sink.WriteCSV(f, vs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printSummary writes a human-readable run summary.
func printSummary(w io.Writer, res *pipeline.RunResult) {
	fmt.Fprintf(w, "Run %s -> %s\n", res.StartedAt.Format("2006-01-02 15:04:05"), res.FinishedAt.Format("15:04:05"))

	if len(res.SkippedFeeds) > 0 {
		fmt.Fprintf(w, "Unchanged feeds skipped: %s\n", strings.Join(res.SkippedFeeds, ", "))
	}

	if r := res.Registry; r != nil {
		fmt.Fprintf(w, "Registry: %d rows, %d inserted, %d updated, %d unchanged, %d skipped\n",
			r.Total, r.Inserted, r.Updated, r.Unchanged, r.Skipped())
	}
	if p := res.Prices; p != nil {
		printImport(w, "Prices", p)
	}
	if l := res.Live; l != nil {
		fmt.Fprintf(w, "Live: %d requested, %d fetched, %d no data, %d failed\n",
			l.Requested, l.Fetched, l.NoData, l.Failed)
		printImport(w, "Live prices", &l.Summary)
	}

	fmt.Fprintf(w, "Variations: %d (bulk %d, live %d, day compare %d)\n",
		len(res.Variations), res.BulkVariations, res.LiveVariations, res.DayCompare)
	for _, v := range res.Variations {
		fmt.Fprintf(w, "  %-8d %-16s %-6s %.3f -> %.3f (%+.3f, %+.2f%%) %s\n",
			v.StationID, v.FuelType, domain.ServiceLabel(v.IsSelf),
			v.OldPrice, v.NewPrice, v.Delta, v.Percent, v.Source)
	}

	for name, msg := range res.SinkErrors {
		fmt.Fprintf(w, "Sink %s failed: %s\n", name, msg)
	}
}

func printImport(w io.Writer, label string, s *domain.ImportSummary) {
	fmt.Fprintf(w, "%s: %d rows, %d inserted, %d updated, %d unchanged, %d stale, %d cold starts, %d no change\n",
		label, s.Total, s.Inserted, s.Updated, s.Unchanged, s.Stale, s.ColdStarts, s.NoChange)
	if s.Skipped() == 0 {
		return
	}
	var parts []string
	for _, r := range domain.AllSkipReasons {
		if n := s.SkippedBy(r); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", r, n))
		}
	}
	fmt.Fprintf(w, "%s skipped: %d (%s)\n", label, s.Skipped(), strings.Join(parts, ", "))
}
