package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"media_bridge/internal/domain"
)

type countingReconciler struct {
	passes atomic.Int32
}

func (c *countingReconciler) Reconcile(context.Context) (*domain.ReconcileStats, error) {
	c.passes.Add(1)
	return &domain.ReconcileStats{}, nil
}

type readyFlag struct {
	ready atomic.Bool
}

func (r *readyFlag) Ready() bool { return r.ready.Load() }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsInitialPassWhenReady(t *testing.T) {
	rec := &countingReconciler{}
	flag := &readyFlag{}
	flag.ready.Store(true)

	s := NewScheduler(rec, flag, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return rec.passes.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_WaitsForReadiness(t *testing.T) {
	rec := &countingReconciler{}
	flag := &readyFlag{}

	s := NewScheduler(rec, flag, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx) //nolint:errcheck

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, rec.passes.Load())

	flag.ready.Store(true)
	require.Eventually(t, func() bool {
		return rec.passes.Load() == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_TickerSkipsWhileNotReady(t *testing.T) {
	rec := &countingReconciler{}
	flag := &readyFlag{}
	flag.ready.Store(true)

	s := NewScheduler(rec, flag, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx) //nolint:errcheck

	require.Eventually(t, func() bool {
		return rec.passes.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	flag.ready.Store(false)
	time.Sleep(30 * time.Millisecond)
	after := rec.passes.Load()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, after, rec.passes.Load())
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	rec := &countingReconciler{}
	flag := &readyFlag{}
	flag.ready.Store(true)

	s := NewScheduler(rec, flag, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Start(ctx), context.Canceled)
}
