// Package main provides the long-running service: scheduled batch runs,
// an admin HTTP API, a websocket variation feed and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/app"
	"fuel-price-watch/internal/config"
	"fuel-price-watch/internal/logging"
	"fuel-price-watch/internal/observability"
	"fuel-price-watch/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: $CONFIG_PATH or ./config.yaml)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")

	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *useMemory {
			c.Database.UseMemory = true
		}
		if *addr != "" {
			c.Server.Addr = *addr
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
	log := logger.WithField("cmd", "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	hub := sink.NewHub(log)
	client := app.NewLiveClient(cfg.Live, log)
	runner := app.NewRunner(cfg, stores, app.RunnerDeps{
		Live:  app.NewLiveFetcher(cfg.Live, client, log),
		Sinks: []sink.Sink{stores.VariationSink(), hub},
	}, log)

	server := &Server{
		interval: cfg.Server.ScheduleInterval,
		onlyDown: cfg.Server.OnlyDown,
		stores:   stores,
		runner:   runner,
		hub:      hub,
		breaker:  client.BreakerState,
		log:      log,
		started:  time.Now(),
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
			log.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           server.routes(cfg.Server.MetricsAddr == ""),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	for _, srv := range servers {
		go serve(srv, log)
	}

	err = server.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown")
		}
	}
	hub.Close()
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server error")
		cleanup()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func serve(srv *http.Server, log logrus.FieldLogger) {
	log.WithField("addr", srv.Addr).Info("starting http server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).WithField("addr", srv.Addr).Error("http server error")
	}
}
