package usecase

import (
	"context"
	"testing"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueUseCase_RejectsUnknownLane(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	uc := NewQueueUseCase(newTestQueue(), &testLogger)

	_, err := uc.GetMetrics(ctx, "emails")
	assert.ErrorIs(t, err, domain.ErrUnknownLane)
	assert.ErrorIs(t, uc.PauseQueue(ctx, "emails"), domain.ErrUnknownLane)
	assert.ErrorIs(t, uc.ResumeQueue(ctx, ""), domain.ErrUnknownLane)
	_, err = uc.CleanQueue(ctx, "x", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownLane)
}

func TestQueueUseCase_PauseResumeAndMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	uc := NewQueueUseCase(q, &testLogger)

	_, err := q.Enqueue(ctx, adapter.LaneAIJobs, "t1", "SUMMARIZE", map[string]string{}, adapter.EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, uc.PauseQueue(ctx, "ai-jobs"))

	m, err := uc.GetMetrics(ctx, "ai-jobs")
	require.NoError(t, err)
	assert.True(t, m.Paused)
	assert.Equal(t, int64(1), m.Waiting)

	_, err = q.Claim(ctx, adapter.LaneAIJobs)
	assert.ErrorIs(t, err, domain.ErrNoTask, "paused lane hands out nothing")

	require.NoError(t, uc.ResumeQueue(ctx, "ai-jobs"))
	all, err := uc.GetAllMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, adapter.LaneAIJobs, all[0].Queue)
	assert.False(t, all[0].Paused)
	assert.Equal(t, adapter.LaneWebhooks, all[1].Queue)
}

func TestQueueUseCase_CleanUsesLongerGraceForFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	q := queue.NewMemoryQueue(func() time.Time { return *clock })
	q.RegisterLane(adapter.LaneWebhooks, queue.LaneSettings{MaxAttempts: 1, Lease: time.Hour})
	uc := NewQueueUseCase(q, &testLogger)

	for _, id := range []string{"ok", "bad"} {
		_, err := q.Enqueue(ctx, adapter.LaneWebhooks, id, "webhook-delivery", map[string]string{}, adapter.EnqueueOptions{})
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		task, err := q.Claim(ctx, adapter.LaneWebhooks)
		require.NoError(t, err)
		if task.ID == "ok" {
			require.NoError(t, q.Complete(ctx, task))
		} else {
			require.NoError(t, q.Fail(ctx, task, "nope"))
		}
	}

	*clock = now.Add(2 * time.Hour)
	res, err := uc.CleanQueue(ctx, "webhooks", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, res.Failed, "failed tasks use grace*24")

	*clock = now.Add(25 * time.Hour)
	res, err = uc.CleanQueue(ctx, "webhooks", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}
