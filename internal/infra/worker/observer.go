package worker

import (
	"time"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Observer receives lifecycle callbacks from a lane pool. Callbacks are for
// telemetry only; durable records are the source of truth.
type Observer interface {
	OnActive(task *adapter.Task)
	OnProgress(task *adapter.Task, pct int)
	OnCompleted(task *adapter.Task, took time.Duration)
	OnFailed(task *adapter.Task, err error, parked bool)
}

// Observers fans callbacks out in order.
type Observers []Observer

func (o Observers) OnActive(t *adapter.Task) {
	for _, x := range o {
		x.OnActive(t)
	}
}

func (o Observers) OnProgress(t *adapter.Task, pct int) {
	for _, x := range o {
		x.OnProgress(t, pct)
	}
}

func (o Observers) OnCompleted(t *adapter.Task, took time.Duration) {
	for _, x := range o {
		x.OnCompleted(t, took)
	}
}

func (o Observers) OnFailed(t *adapter.Task, err error, parked bool) {
	for _, x := range o {
		x.OnFailed(t, err, parked)
	}
}

type LogObserver struct {
	log *zerolog.Logger
}

func NewLogObserver(log *zerolog.Logger) *LogObserver { return &LogObserver{log: log} }

func (l *LogObserver) OnActive(t *adapter.Task) {
	l.log.Debug().Str("lane", string(t.Lane)).Str("task_id", t.ID).Int("attempt", t.Attempt()).Msg("task active")
}

func (l *LogObserver) OnProgress(t *adapter.Task, pct int) {
	l.log.Trace().Str("lane", string(t.Lane)).Str("task_id", t.ID).Int("progress", pct).Msg("task progress")
}

func (l *LogObserver) OnCompleted(t *adapter.Task, took time.Duration) {
	l.log.Info().Str("lane", string(t.Lane)).Str("task_id", t.ID).Dur("took", took).Msg("task completed")
}

func (l *LogObserver) OnFailed(t *adapter.Task, err error, parked bool) {
	ev := l.log.Warn()
	if parked {
		ev = l.log.Error()
	}
	ev.Err(err).Str("lane", string(t.Lane)).Str("task_id", t.ID).
		Int("attempt", t.Attempt()).Int("max_attempts", t.MaxAttempts).Bool("parked", parked).
		Msg("task failed")
}

// MetricsObserver counts outcomes per lane.
type MetricsObserver struct{}

func (MetricsObserver) OnActive(*adapter.Task)        {}
func (MetricsObserver) OnProgress(*adapter.Task, int) {}
func (MetricsObserver) OnCompleted(t *adapter.Task, _ time.Duration) {
	metrics.IncQueueTask(string(t.Lane), "completed")
}
func (MetricsObserver) OnFailed(t *adapter.Task, _ error, parked bool) {
	outcome := "retried"
	if parked {
		outcome = "failed"
	}
	metrics.IncQueueTask(string(t.Lane), outcome)
}
