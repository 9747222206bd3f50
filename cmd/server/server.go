package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-price-watch/internal/app"
	"fuel-price-watch/internal/pipeline"
	"fuel-price-watch/internal/sink"
)

// Server holds all components of the long-running service.
type Server struct {
	// Configuration
	interval time.Duration
	onlyDown bool

	// Components
	stores  *app.Stores
	runner  *pipeline.Runner
	hub     *sink.Hub
	breaker func() string // live API circuit breaker state; optional
	log     logrus.FieldLogger

	// State
	mu        sync.Mutex
	started   time.Time
	runs      int
	failures  int
	lastError string
	lastRunAt time.Time
}

// Run runs a batch immediately, then every interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval).Info("starting batch scheduler")

	s.runBatch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runBatch(ctx)
		}
	}
}

// runBatch executes one scheduled batch. A batch still running from the
// previous tick or a manual refresh makes this tick a no-op.
func (s *Server) runBatch(ctx context.Context) {
	_, err := s.runner.Run(ctx, pipeline.RunOptions{OnlyDown: s.onlyDown})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.log.Info("batch already running, skipping tick")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastRunAt = time.Now()
	if err != nil {
		s.failures++
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
}
