// Package jobs runs the background sweeps: flipping stale sent requests to
// expired and clearing lapsed movement windows.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"nearhand/internal/metrics"
	"nearhand/internal/repo"
)

// Scheduler owns the cron loop driving the sweeps.
type Scheduler struct {
	cron    *cron.Cron
	store   repo.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	spec    string
}

// New builds a Scheduler sweeping on the given cron spec.
func New(store repo.Repository, m *metrics.Metrics, logger *slog.Logger, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		store:   store,
		metrics: m,
		logger:  logger.With("component", "jobs"),
		spec:    spec,
	}
}

// Start registers and launches the sweeps. Sweeps advance read-side filters
// only; every correctness-bearing expiry is also checked inline at operation
// time, so a late sweep can never admit a stale transition.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "spec", s.spec)
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now().UTC()

	requests, err := s.store.ExpireStaleRequests(ctx, now)
	if err != nil {
		s.logger.Error("request sweep failed", "error", err)
		s.metrics.Errors.WithLabelValues("jobs").Inc()
	} else if requests > 0 {
		s.logger.Info("expired stale requests", "count", requests)
		s.metrics.SweptRows.WithLabelValues("requests").Add(float64(requests))
	}

	movements, err := s.store.ExpireMovement(ctx, now)
	if err != nil {
		s.logger.Error("movement sweep failed", "error", err)
		s.metrics.Errors.WithLabelValues("jobs").Inc()
	} else if movements > 0 {
		s.logger.Info("cleared lapsed movement windows", "count", movements)
		s.metrics.SweptRows.WithLabelValues("movement").Add(float64(movements))
	}
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sweep scheduler stopped")
}
