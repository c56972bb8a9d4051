package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/ports/adapter"
)

var _ adapter.WorkQueue = (*MemoryQueue)(nil)

// MemoryQueue keeps lanes in process memory. It is a test double sharing the
// claim and retry semantics of RedisQueue; cmd/app always runs on Redis.
type MemoryQueue struct {
	mu        sync.Mutex
	lanes     map[adapter.Lane]*memLane
	retention Retention
	now       func() time.Time
}

type memLane struct {
	settings LaneSettings
	paused   bool
	seq      int64
	tasks    map[string]*memTask
}

type memTask struct {
	task    adapter.Task
	seq     int64
	runAt   time.Time // delayed
	leaseAt time.Time // active
}

func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		lanes:     make(map[adapter.Lane]*memLane),
		retention: DefaultRetention(),
		now:       now,
	}
}

func (q *MemoryQueue) RegisterLane(lane adapter.Lane, s LaneSettings) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[lane] = &memLane{settings: s, tasks: make(map[string]*memTask)}
}

func (q *MemoryQueue) lane(lane adapter.Lane) (*memLane, error) {
	l, ok := q.lanes[lane]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownLane, lane)
	}
	return l, nil
}

func (q *MemoryQueue) Enqueue(_ context.Context, lane adapter.Lane, taskID, name string, payload any, opts adapter.EnqueueOptions) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return false, err
	}
	if taskID == "" {
		return false, domain.ErrInvalidArgument
	}
	if _, exists := l.tasks[taskID]; exists {
		return false, nil
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return false, err
	}
	attempts, backoff := resolve(l.settings, opts)
	now := q.now()
	l.seq++
	mt := &memTask{
		seq: l.seq,
		task: adapter.Task{
			ID:          taskID,
			Lane:        lane,
			Name:        name,
			Payload:     append(json.RawMessage(nil), raw...),
			Priority:    clampPriority(opts.Priority),
			MaxAttempts: attempts,
			Backoff:     backoff,
			State:       adapter.TaskWaiting,
			CreatedAt:   now.UTC(),
		},
	}
	if opts.Delay > 0 {
		mt.task.State = adapter.TaskDelayed
		mt.runAt = now.Add(opts.Delay)
	}
	l.tasks[taskID] = mt
	return true, nil
}

func (q *MemoryQueue) Claim(_ context.Context, lane adapter.Lane) (*adapter.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return nil, err
	}
	now := q.now()
	var best *memTask
	for _, mt := range l.tasks {
		if mt.task.State == adapter.TaskDelayed && !mt.runAt.After(now) {
			mt.task.State = adapter.TaskWaiting
		}
		if mt.task.State != adapter.TaskWaiting {
			continue
		}
		if best == nil || mt.task.Priority < best.task.Priority ||
			(mt.task.Priority == best.task.Priority && mt.seq < best.seq) {
			best = mt
		}
	}
	if l.paused || best == nil {
		return nil, domain.ErrNoTask
	}
	best.task.State = adapter.TaskActive
	best.leaseAt = now.Add(l.settings.Lease)
	at := now.UTC()
	best.task.ProcessedAt = &at
	out := best.task
	return &out, nil
}

func (q *MemoryQueue) active(task *adapter.Task) (*memLane, *memTask, error) {
	l, err := q.lane(task.Lane)
	if err != nil {
		return nil, nil, err
	}
	mt, ok := l.tasks[task.ID]
	if !ok || mt.task.State != adapter.TaskActive {
		return nil, nil, fmt.Errorf("queue: %s/%s: %w", task.Lane, task.ID, domain.ErrLeaseLost)
	}
	return l, mt, nil
}

func (q *MemoryQueue) Complete(_ context.Context, task *adapter.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, mt, err := q.active(task)
	if err != nil {
		return err
	}
	now := q.now()
	at := now.UTC()
	mt.task.AttemptsMade++
	mt.task.State = adapter.TaskCompleted
	mt.task.Progress = 100
	mt.task.FinishedAt = &at
	q.trimCompleted(l, now)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, task *adapter.Task, reason string) (bool, error) {
	if task.IsFinalAttempt() {
		return true, q.Fail(ctx, task, reason)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, mt, err := q.active(task)
	if err != nil {
		return false, err
	}
	mt.task.State = adapter.TaskDelayed
	mt.task.FailedReason = reason
	mt.runAt = q.now().Add(mt.task.Backoff.Delay(mt.task.AttemptsMade + 1))
	mt.task.AttemptsMade++
	return false, nil
}

func (q *MemoryQueue) Fail(_ context.Context, task *adapter.Task, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, mt, err := q.active(task)
	if err != nil {
		return err
	}
	now := q.now()
	at := now.UTC()
	mt.task.AttemptsMade++
	mt.task.State = adapter.TaskFailed
	mt.task.FailedReason = reason
	mt.task.FinishedAt = &at
	for id, t := range l.tasks {
		if t.task.State == adapter.TaskFailed && t.task.FinishedAt.Before(now.Add(-q.retention.FailedAge)) {
			delete(l.tasks, id)
		}
	}
	return nil
}

func (q *MemoryQueue) trimCompleted(l *memLane, now time.Time) {
	var done []*memTask
	for id, t := range l.tasks {
		if t.task.State != adapter.TaskCompleted {
			continue
		}
		if t.task.FinishedAt.Before(now.Add(-q.retention.CompletedAge)) {
			delete(l.tasks, id)
			continue
		}
		done = append(done, t)
	}
	if len(done) <= q.retention.CompletedCount {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].task.FinishedAt.Before(*done[j].task.FinishedAt) })
	for _, t := range done[:len(done)-q.retention.CompletedCount] {
		delete(l.tasks, t.task.ID)
	}
}

func (q *MemoryQueue) UpdateProgress(_ context.Context, lane adapter.Lane, taskID string, pct int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return err
	}
	mt, ok := l.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	mt.task.Progress = min(max(pct, 0), 100)
	return nil
}

func (q *MemoryQueue) GetTask(_ context.Context, lane adapter.Lane, taskID string) (*adapter.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return nil, err
	}
	mt, ok := l.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	out := mt.task
	return &out, nil
}

func (q *MemoryQueue) Metrics(_ context.Context, lane adapter.Lane) (adapter.LaneMetrics, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return adapter.LaneMetrics{}, err
	}
	m := adapter.LaneMetrics{Queue: lane, Paused: l.paused}
	for _, mt := range l.tasks {
		switch mt.task.State {
		case adapter.TaskWaiting:
			m.Waiting++
		case adapter.TaskActive:
			m.Active++
		case adapter.TaskDelayed:
			m.Delayed++
		case adapter.TaskCompleted:
			m.Completed++
		case adapter.TaskFailed:
			m.Failed++
		}
	}
	m.Total = m.Waiting + m.Active + m.Delayed + m.Completed + m.Failed
	return m, nil
}

func (q *MemoryQueue) Pause(_ context.Context, lane adapter.Lane) error {
	return q.setPaused(lane, true)
}

func (q *MemoryQueue) Resume(_ context.Context, lane adapter.Lane) error {
	return q.setPaused(lane, false)
}

func (q *MemoryQueue) setPaused(lane adapter.Lane, v bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return err
	}
	l.paused = v
	return nil
}

func (q *MemoryQueue) Clean(_ context.Context, lane adapter.Lane, grace time.Duration, limit int, state adapter.TaskState) (int, error) {
	if state != adapter.TaskCompleted && state != adapter.TaskFailed {
		return 0, fmt.Errorf("%w: clean supports completed|failed, got %q", domain.ErrInvalidArgument, state)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := q.now().Add(-grace)
	var old []*memTask
	for _, mt := range l.tasks {
		if mt.task.State == state && !mt.task.FinishedAt.After(cutoff) {
			old = append(old, mt)
		}
	}
	sort.Slice(old, func(i, j int) bool { return old[i].task.FinishedAt.Before(*old[j].task.FinishedAt) })
	if len(old) > limit {
		old = old[:limit]
	}
	for _, mt := range old {
		delete(l.tasks, mt.task.ID)
	}
	return len(old), nil
}

func (q *MemoryQueue) RequeueStale(_ context.Context, lane adapter.Lane) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, err := q.lane(lane)
	if err != nil {
		return 0, err
	}
	now := q.now()
	n := 0
	for _, mt := range l.tasks {
		if mt.task.State != adapter.TaskActive || mt.leaseAt.After(now) {
			continue
		}
		n++
		mt.task.AttemptsMade++
		mt.task.FailedReason = "task lease expired"
		if mt.task.AttemptsMade >= mt.task.MaxAttempts {
			at := now.UTC()
			mt.task.State = adapter.TaskFailed
			mt.task.FinishedAt = &at
			continue
		}
		mt.task.State = adapter.TaskWaiting
	}
	return n, nil
}
