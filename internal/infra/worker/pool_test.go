package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/queue"

	"github.com/rs/zerolog"
)

func newTestQueue() *queue.MemoryQueue {
	q := queue.NewMemoryQueue(nil)
	q.RegisterLane(adapter.LaneAIJobs, queue.LaneSettings{
		MaxAttempts: 3,
		// zero backoff keeps retried tasks immediately claimable
		Backoff: adapter.Backoff{},
		Lease:   time.Minute,
	})
	return q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func runPool(t *testing.T, q adapter.WorkQueue, h Handler, opts ...PoolOption) context.CancelFunc {
	t.Helper()
	logger := zerolog.Nop()
	opts = append([]PoolOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	pool := NewLanePool(q, adapter.LaneAIJobs, h, &logger, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("pool did not stop")
		}
	}
}

func TestLanePool_CompletesTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := q.Enqueue(ctx, adapter.LaneAIJobs, id, "SUMMARIZE", map[string]string{"id": id}, adapter.EnqueueOptions{}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	var handled atomic.Int32
	stop := runPool(t, q, func(ctx context.Context, task *adapter.Task) error {
		ReportProgress(ctx, 50)
		handled.Add(1)
		return nil
	}, WithConcurrency(2))
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		m, _ := q.Metrics(ctx, adapter.LaneAIJobs)
		return m.Completed == 4
	})
	if handled.Load() != 4 {
		t.Fatalf("expected 4 handled tasks got %d", handled.Load())
	}
	task, err := q.GetTask(ctx, adapter.LaneAIJobs, "a")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Progress != 100 || task.AttemptsMade != 1 {
		t.Fatalf("unexpected completed task %+v", task)
	}
}

func TestLanePool_RetriesThenParks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	if _, err := q.Enqueue(ctx, adapter.LaneAIJobs, "flaky", "CLASSIFY", map[string]string{}, adapter.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var calls atomic.Int32
	stop := runPool(t, q, func(context.Context, *adapter.Task) error {
		calls.Add(1)
		return errBoom
	})
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		m, _ := q.Metrics(ctx, adapter.LaneAIJobs)
		return m.Failed == 1
	})
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts got %d", calls.Load())
	}
	task, _ := q.GetTask(ctx, adapter.LaneAIJobs, "flaky")
	if task.FailedReason != errBoom.Error() {
		t.Fatalf("unexpected failed reason %q", task.FailedReason)
	}
}

func TestLanePool_PermanentErrorParksImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	if _, err := q.Enqueue(ctx, adapter.LaneAIJobs, "bad", "CLASSIFY", map[string]string{}, adapter.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var calls atomic.Int32
	stop := runPool(t, q, func(context.Context, *adapter.Task) error {
		calls.Add(1)
		return Permanent(errBoom)
	})
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		m, _ := q.Metrics(ctx, adapter.LaneAIJobs)
		return m.Failed == 1
	})
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt got %d", calls.Load())
	}
}

func TestLanePool_RecoversFromPanic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	if _, err := q.Enqueue(ctx, adapter.LaneAIJobs, "p", "CLASSIFY", map[string]string{}, adapter.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stop := runPool(t, q, func(context.Context, *adapter.Task) error {
		panic("kaboom")
	})
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		m, _ := q.Metrics(ctx, adapter.LaneAIJobs)
		return m.Failed == 1
	})
}

func TestLanePool_ShutdownDrainsInFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestQueue()
	if _, err := q.Enqueue(ctx, adapter.LaneAIJobs, "slow", "SUMMARIZE", map[string]string{}, adapter.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	started := make(chan struct{})
	stop := runPool(t, q, func(hctx context.Context, _ *adapter.Task) error {
		close(started)
		select {
		case <-hctx.Done():
			return hctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	})
	<-started
	stop()

	m, _ := q.Metrics(ctx, adapter.LaneAIJobs)
	if m.Completed != 1 {
		t.Fatalf("expected the in-flight task to complete on shutdown, metrics %+v", m)
	}
}
