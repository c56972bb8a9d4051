package worker

import (
	"context"

	"launchkit-core/internal/domain/ports/adapter"
)

type progressKey struct{}

type progressFunc func(ctx context.Context, pct int)

func withProgress(ctx context.Context, fn progressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress records pct on the task being processed under ctx. It is a
// no-op outside a lane pool.
func ReportProgress(ctx context.Context, pct int) {
	if fn, ok := ctx.Value(progressKey{}).(progressFunc); ok {
		fn(ctx, pct)
	}
}

func (p *LanePool) progressReporter(task *adapter.Task) progressFunc {
	return func(ctx context.Context, pct int) {
		if err := p.q.UpdateProgress(ctx, task.Lane, task.ID, pct); err != nil {
			p.log.Debug().Err(err).Str("task_id", task.ID).Msg("progress update failed")
			return
		}
		p.observer.OnProgress(task, pct)
	}
}
