// Command migrate applies the embedded PostgreSQL schema and, when a
// ClickHouse DSN is configured, the variation history schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fuel-price-watch/internal/config"
	"fuel-price-watch/internal/logging"
	"fuel-price-watch/internal/storage/migrations"
	pgstore "fuel-price-watch/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: $CONFIG_PATH or ./config.yaml)")
	skipClickhouse := flag.Bool("skip-clickhouse", false, "Do not migrate ClickHouse even if configured")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	log := logger.WithField("cmd", "migrate")

	if cfg.Database.UseMemory {
		log.Info("in-memory storage configured, nothing to migrate")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		log.WithError(err).Error("postgres migrations failed")
		pool.Close()
		os.Exit(1)
	}

	if cfg.Database.ClickhouseDSN != "" && !*skipClickhouse {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Database.ClickhouseDSN, log)
		if err != nil {
			log.WithError(err).Error("clickhouse migrations failed")
			pool.Close()
			os.Exit(1)
		}
		conn.Close()
	}

	log.Info("migrations applied")
}
