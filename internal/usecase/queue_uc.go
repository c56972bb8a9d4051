package usecase

import (
	"context"
	"fmt"
	"time"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const (
	defaultCleanGrace = time.Hour
	cleanBatch        = 100
	failedGraceFactor = 24
)

// Compile-time check
var _ QueueUseCase = (*queueUC)(nil)

type QueueUseCase interface {
	GetMetrics(ctx context.Context, lane string) (adapter.LaneMetrics, error)
	GetAllMetrics(ctx context.Context) ([]adapter.LaneMetrics, error)
	PauseQueue(ctx context.Context, lane string) error
	ResumeQueue(ctx context.Context, lane string) error
	// CleanQueue evicts completed tasks older than grace and failed tasks older
	// than grace*24, up to 100 of each. Zero grace means one hour.
	CleanQueue(ctx context.Context, lane string, grace time.Duration) (CleanResult, error)
}

type CleanResult struct {
	Queue     adapter.Lane `json:"queue"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
}

type queueUC struct {
	q   adapter.WorkQueue
	log *zerolog.Logger
}

func NewQueueUseCase(q adapter.WorkQueue, logger *zerolog.Logger) *queueUC {
	l := logger.With().Str("component", "QueueUseCase").Logger()
	return &queueUC{q: q, log: &l}
}

func (uc *queueUC) GetMetrics(ctx context.Context, lane string) (adapter.LaneMetrics, error) {
	l, err := adapter.ParseLane(lane)
	if err != nil {
		return adapter.LaneMetrics{}, fmt.Errorf("%w: %q", err, lane)
	}
	return uc.q.Metrics(ctx, l)
}

func (uc *queueUC) GetAllMetrics(ctx context.Context) ([]adapter.LaneMetrics, error) {
	out := make([]adapter.LaneMetrics, 0, len(adapter.Lanes))
	for _, l := range adapter.Lanes {
		m, err := uc.q.Metrics(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (uc *queueUC) PauseQueue(ctx context.Context, lane string) error {
	return uc.toggle(ctx, lane, "pause", uc.q.Pause)
}

func (uc *queueUC) ResumeQueue(ctx context.Context, lane string) error {
	return uc.toggle(ctx, lane, "resume", uc.q.Resume)
}

func (uc *queueUC) toggle(ctx context.Context, lane, action string, fn func(context.Context, adapter.Lane) error) error {
	l, err := adapter.ParseLane(lane)
	if err != nil {
		return fmt.Errorf("%w: %q", err, lane)
	}
	if err := fn(ctx, l); err != nil {
		metrics.IncAdminAction("queue_"+action, "error")
		return err
	}
	metrics.IncAdminAction("queue_"+action, "ok")
	uc.log.Info().Str("lane", lane).Str("action", action).Msg("queue state changed")
	return nil
}

func (uc *queueUC) CleanQueue(ctx context.Context, lane string, grace time.Duration) (CleanResult, error) {
	l, err := adapter.ParseLane(lane)
	if err != nil {
		return CleanResult{}, fmt.Errorf("%w: %q", err, lane)
	}
	if grace <= 0 {
		grace = defaultCleanGrace
	}
	res := CleanResult{Queue: l}
	if res.Completed, err = uc.q.Clean(ctx, l, grace, cleanBatch, adapter.TaskCompleted); err != nil {
		metrics.IncAdminAction("queue_clean", "error")
		return res, err
	}
	if res.Failed, err = uc.q.Clean(ctx, l, grace*failedGraceFactor, cleanBatch, adapter.TaskFailed); err != nil {
		metrics.IncAdminAction("queue_clean", "error")
		return res, err
	}
	metrics.IncAdminAction("queue_clean", "ok")
	uc.log.Info().Str("lane", lane).Int("completed", res.Completed).Int("failed", res.Failed).Msg("queue cleaned")
	return res, nil
}
