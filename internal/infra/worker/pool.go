// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handler processes one claimed task. Returning nil completes the task,
// Permanent(err) parks it, any other error schedules a retry.
type Handler func(ctx context.Context, task *adapter.Task) error

const settleTimeout = 5 * time.Second

// LanePool runs a fixed number of workers against one lane. Each worker
// claims a task, runs it to completion and reports exactly one outcome.
type LanePool struct {
	q           adapter.WorkQueue
	lane        adapter.Lane
	handler     Handler
	concurrency int
	poll        time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
	observer    Observer
	log         *zerolog.Logger

	wg sync.WaitGroup
}

type PoolOption func(*LanePool)

func WithConcurrency(n int) PoolOption {
	return func(p *LanePool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithPollInterval(d time.Duration) PoolOption {
	return func(p *LanePool) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithHandlerTimeout bounds each handler run; zero leaves it unbounded.
func WithHandlerTimeout(d time.Duration) PoolOption {
	return func(p *LanePool) { p.timeout = d }
}

// WithRateLimit caps claims per second across the pool's workers.
func WithRateLimit(perSec float64, burst int) PoolOption {
	return func(p *LanePool) {
		if perSec <= 0 {
			p.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func WithObserver(o Observer) PoolOption {
	return func(p *LanePool) { p.observer = o }
}

func NewLanePool(q adapter.WorkQueue, lane adapter.Lane, h Handler, logger *zerolog.Logger, opts ...PoolOption) *LanePool {
	l := logger.With().Str("component", "LanePool").Str("lane", string(lane)).Logger()
	p := &LanePool{
		q:           q,
		lane:        lane,
		handler:     h,
		concurrency: 1,
		poll:        500 * time.Millisecond,
		log:         &l,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.observer == nil {
		p.observer = Observers{NewLogObserver(p.log), MetricsObserver{}}
	}
	return p
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight task has been settled.
func (p *LanePool) Run(ctx context.Context) {
	p.log.Info().Int("concurrency", p.concurrency).Msg("lane pool started")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	p.wg.Wait()
	p.log.Info().Msg("lane pool stopped")
}

func (p *LanePool) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}
		task, err := p.q.Claim(ctx, p.lane)
		if err != nil {
			if !errors.Is(err, domain.ErrNoTask) && ctx.Err() == nil {
				p.log.Error().Err(err).Int("worker", id).Msg("claim failed")
			}
			if !sleep(ctx, p.poll) {
				return
			}
			continue
		}
		p.process(ctx, task)
	}
}

// process runs the handler on a context detached from ctx so shutdown lets
// in-flight tasks finish instead of failing them.
func (p *LanePool) process(ctx context.Context, task *adapter.Task) {
	p.observer.OnActive(task)
	start := time.Now()

	hctx := withProgress(context.WithoutCancel(ctx), p.progressReporter(task))
	var cancel context.CancelFunc = func() {}
	if p.timeout > 0 {
		hctx, cancel = context.WithTimeout(hctx, p.timeout)
	}
	err := p.run(hctx, task)
	cancel()

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer scancel()

	switch {
	case err == nil:
		if serr := p.q.Complete(sctx, task); serr != nil {
			p.settleFailed(task, "complete", serr)
			return
		}
		p.observer.OnCompleted(task, time.Since(start))
	case IsPermanent(err):
		if serr := p.q.Fail(sctx, task, err.Error()); serr != nil {
			p.settleFailed(task, "fail", serr)
			return
		}
		p.observer.OnFailed(task, err, true)
	default:
		parked, serr := p.q.Retry(sctx, task, err.Error())
		if serr != nil {
			p.settleFailed(task, "retry", serr)
			return
		}
		p.observer.OnFailed(task, err, parked)
	}
}

func (p *LanePool) run(ctx context.Context, task *adapter.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("task_id", task.ID).Str("stack", string(debug.Stack())).Msg("handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, task)
}

func (p *LanePool) settleFailed(task *adapter.Task, op string, err error) {
	if errors.Is(err, domain.ErrLeaseLost) {
		metrics.IncQueueTask(string(p.lane), "lease_lost")
		p.log.Warn().Str("task_id", task.ID).Str("op", op).Msg("task lease lost before settle")
		return
	}
	p.log.Error().Err(err).Str("task_id", task.ID).Str("op", op).Msg("failed to settle task")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
