package sched

import (
	"context"
	"errors"
	"time"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"
	red "launchkit-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

const (
	lockKey         = "lk:maintenance:lock"
	defaultStuckAge = 5 * time.Minute
	stuckBatch      = 100
)

// JobSweeper repairs job records that drifted from their queue task: QUEUED
// jobs without a task are re-enqueued, PROCESSING jobs whose task was parked
// or lost are marked FAILED.
type JobSweeper interface {
	RequeueStuck(ctx context.Context, age time.Duration, limit int) (int, error)
	FailOrphaned(ctx context.Context, age time.Duration, limit int) (int, error)
}

// MaintenanceWorker periodically returns expired leases to their lanes,
// repairs orphaned job records and refreshes queue gauges. Recovery runs only
// on the instance holding the Redis lock; gauges refresh everywhere.
type MaintenanceWorker struct {
	interval time.Duration
	stuckAge time.Duration
	queue    adapter.WorkQueue
	jobs     JobSweeper
	locker   red.Locker
	hooks    []func()
	log      *zerolog.Logger
}

type MaintenanceOption func(*MaintenanceWorker)

// WithStuckAge sets how old a QUEUED or PROCESSING job must be before it is repaired.
func WithStuckAge(d time.Duration) MaintenanceOption {
	return func(w *MaintenanceWorker) {
		if d > 0 {
			w.stuckAge = d
		}
	}
}

// WithHook runs fn on every tick, e.g. to publish DB pool stats.
func WithHook(fn func()) MaintenanceOption {
	return func(w *MaintenanceWorker) { w.hooks = append(w.hooks, fn) }
}

// NewMaintenanceWorker builds the loop. A nil locker runs recovery unconditionally.
func NewMaintenanceWorker(interval time.Duration, q adapter.WorkQueue, jobs JobSweeper, locker red.Locker, logger *zerolog.Logger, opts ...MaintenanceOption) *MaintenanceWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	w := &MaintenanceWorker{
		interval: interval,
		stuckAge: defaultStuckAge,
		queue:    q,
		jobs:     jobs,
		locker:   locker,
		log:      logging.Component(logger, "MaintenanceWorker"),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *MaintenanceWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting maintenance worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping maintenance worker")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one maintenance pass.
func (w *MaintenanceWorker) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	if release, ok := w.acquire(ctx); ok {
		w.reclaim(ctx)
		release()
	}

	for _, lane := range adapter.Lanes {
		m, err := w.queue.Metrics(ctx, lane)
		if err != nil {
			w.log.Warn().Err(err).Str("lane", string(lane)).Msg("queue metrics failed")
			continue
		}
		metrics.SetQueueDepth(string(lane), m.Waiting, m.Active, m.Delayed, m.Completed, m.Failed)
	}
	for _, h := range w.hooks {
		h()
	}
}

func (w *MaintenanceWorker) acquire(ctx context.Context) (func(), bool) {
	if w.locker == nil {
		return func() {}, true
	}
	token, err := w.locker.TryLock(ctx, lockKey, w.interval)
	if errors.Is(err, red.ErrLockHeld) {
		w.log.Debug().Msg("maintenance lock held elsewhere")
		return nil, false
	}
	if err != nil {
		w.log.Warn().Err(err).Msg("maintenance lock unavailable")
		return nil, false
	}
	return func() {
		// the tick context may already be spent
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.locker.Unlock(uctx, lockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("maintenance unlock failed")
		}
	}, true
}

func (w *MaintenanceWorker) reclaim(ctx context.Context) {
	for _, lane := range adapter.Lanes {
		n, err := w.queue.RequeueStale(ctx, lane)
		if err != nil {
			w.log.Error().Err(err).Str("lane", string(lane)).Msg("requeue stale failed")
			continue
		}
		if n > 0 {
			metrics.AddStaleRequeued(string(lane), n)
			w.log.Warn().Int("count", n).Str("lane", string(lane)).Msg("expired leases returned to waiting")
		}
	}

	if w.jobs == nil {
		return
	}
	if _, err := w.jobs.RequeueStuck(ctx, w.stuckAge, stuckBatch); err != nil {
		w.log.Error().Err(err).Msg("requeue stuck jobs failed")
	}
	if _, err := w.jobs.FailOrphaned(ctx, w.stuckAge, stuckBatch); err != nil {
		w.log.Error().Err(err).Msg("fail orphaned jobs failed")
	}
}
