package scheduler

import (
	"context"
	"log/slog"
	"time"

	"media_bridge/internal/domain"
)

// Reconciler defines the interface for reconciliation passes.
type Reconciler interface {
	Reconcile(ctx context.Context) (*domain.ReconcileStats, error)
}

// Readiness reports whether the inbound transport is operational. Passes are
// skipped while it is not.
type Readiness interface {
	Ready() bool
}

type Scheduler struct {
	reconciler Reconciler
	ready      Readiness
	interval   time.Duration
	logger     *slog.Logger
}

func NewScheduler(reconciler Reconciler, ready Readiness, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		ready:      ready,
		interval:   interval,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if !s.ready.Ready() {
				s.logger.Debug("transport not ready, skipping reconciliation pass")
				continue
			}
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) waitReady(ctx context.Context) error {
	if s.ready.Ready() {
		return nil
	}
	s.logger.Info("waiting for transport to become ready")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.ready.Ready() {
				return nil
			}
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.reconciler.Reconcile(passCtx); err != nil {
		s.logger.Error("reconciliation failed", "error", err)
	}
}
