// Package queue implements the WorkQueue port on Redis. MemoryQueue is an
// in-memory double with the same semantics for unit tests.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// LaneSettings are the per-lane defaults applied when EnqueueOptions leave a field zero.
type LaneSettings struct {
	MaxAttempts int
	Backoff     adapter.Backoff
	Lease       time.Duration
}

// Retention bounds how long finished tasks stay inspectable.
type Retention struct {
	CompletedCount int
	CompletedAge   time.Duration
	FailedAge      time.Duration
}

func DefaultRetention() Retention {
	return Retention{CompletedCount: 100, CompletedAge: time.Hour, FailedAge: 7 * 24 * time.Hour}
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

func WithPrefix(p string) Option { return func(q *RedisQueue) { q.prefix = p } }

func WithRetention(r Retention) Option { return func(q *RedisQueue) { q.retention = r } }

func WithClock(now func() time.Time) Option { return func(q *RedisQueue) { q.now = now } }

func WithLane(lane adapter.Lane, s LaneSettings) Option {
	return func(q *RedisQueue) { q.lanes[lane] = s }
}

var _ adapter.WorkQueue = (*RedisQueue)(nil)

type RedisQueue struct {
	cli       *redis.Client
	prefix    string
	lanes     map[adapter.Lane]LaneSettings
	retention Retention
	now       func() time.Time
	log       *zerolog.Logger
}

func NewRedisQueue(cli *redis.Client, logger *zerolog.Logger, opts ...Option) *RedisQueue {
	l := logger.With().Str("component", "RedisQueue").Logger()
	q := &RedisQueue{
		cli:       cli,
		prefix:    "lk:q",
		lanes:     make(map[adapter.Lane]LaneSettings),
		retention: DefaultRetention(),
		now:       time.Now,
		log:       &l,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterLane adds or replaces a lane's defaults. Call before workers start.
func (q *RedisQueue) RegisterLane(lane adapter.Lane, s LaneSettings) {
	q.lanes[lane] = s
}

func (q *RedisQueue) lane(lane adapter.Lane) (LaneSettings, laneKeys, error) {
	s, ok := q.lanes[lane]
	if !ok {
		return LaneSettings{}, laneKeys{}, fmt.Errorf("%w: %s", domain.ErrUnknownLane, lane)
	}
	return s, keysFor(q.prefix, lane), nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, lane adapter.Lane, taskID, name string, payload any, opts adapter.EnqueueOptions) (bool, error) {
	s, k, err := q.lane(lane)
	if err != nil {
		return false, err
	}
	if taskID == "" {
		return false, domain.ErrInvalidArgument
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return false, err
	}
	attempts, backoff := resolve(s, opts)
	res, err := enqueueScript.Run(ctx, q.cli,
		[]string{k.task(taskID), k.wait, k.delayed, k.seq},
		taskID, name, string(raw), clampPriority(opts.Priority), attempts,
		backoff.Base.Milliseconds(), backoff.Max.Milliseconds(),
		q.now().UnixMilli(), opts.Delay.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("queue: enqueue %s/%s: %w", lane, taskID, err)
	}
	return res == 1, nil
}

func (q *RedisQueue) Claim(ctx context.Context, lane adapter.Lane) (*adapter.Task, error) {
	s, k, err := q.lane(lane)
	if err != nil {
		return nil, err
	}
	res, err := claimScript.Run(ctx, q.cli,
		[]string{k.wait, k.active, k.delayed, k.paused},
		q.now().UnixMilli(), s.Lease.Milliseconds(), k.taskPrefix,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim %s: %w", lane, err)
	}
	fields, err := flatToMap(res)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		// hash evicted underneath a waiting id
		return nil, domain.ErrNoTask
	}
	return decodeTask(lane, fields)
}

func (q *RedisQueue) Complete(ctx context.Context, task *adapter.Task) error {
	_, k, err := q.lane(task.Lane)
	if err != nil {
		return err
	}
	res, err := completeScript.Run(ctx, q.cli,
		[]string{k.active, k.completed, k.task(task.ID)},
		task.ID, q.now().UnixMilli(), q.retention.CompletedCount,
		q.retention.CompletedAge.Milliseconds(), k.taskPrefix,
	).Int()
	return settleResult("complete", task, res, err)
}

func (q *RedisQueue) Retry(ctx context.Context, task *adapter.Task, reason string) (bool, error) {
	if task.IsFinalAttempt() {
		return true, q.Fail(ctx, task, reason)
	}
	_, k, err := q.lane(task.Lane)
	if err != nil {
		return false, err
	}
	runAt := q.now().Add(task.Backoff.Delay(task.Attempt()))
	res, err := retryScript.Run(ctx, q.cli,
		[]string{k.active, k.delayed, k.task(task.ID)},
		task.ID, runAt.UnixMilli(), reason,
	).Int()
	return false, settleResult("retry", task, res, err)
}

func (q *RedisQueue) Fail(ctx context.Context, task *adapter.Task, reason string) error {
	_, k, err := q.lane(task.Lane)
	if err != nil {
		return err
	}
	res, err := failScript.Run(ctx, q.cli,
		[]string{k.active, k.failed, k.task(task.ID)},
		task.ID, q.now().UnixMilli(), reason,
		q.retention.FailedAge.Milliseconds(), k.taskPrefix,
	).Int()
	return settleResult("fail", task, res, err)
}

func settleResult(op string, task *adapter.Task, res int, err error) error {
	if err != nil {
		return fmt.Errorf("queue: %s %s/%s: %w", op, task.Lane, task.ID, err)
	}
	if res < 0 {
		return fmt.Errorf("queue: %s %s/%s: %w", op, task.Lane, task.ID, domain.ErrLeaseLost)
	}
	return nil
}

func (q *RedisQueue) UpdateProgress(ctx context.Context, lane adapter.Lane, taskID string, pct int) error {
	_, k, err := q.lane(lane)
	if err != nil {
		return err
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	res, err := progressScript.Run(ctx, q.cli, []string{k.task(taskID)}, pct).Int()
	if err != nil {
		return fmt.Errorf("queue: progress %s/%s: %w", lane, taskID, err)
	}
	if res == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (q *RedisQueue) GetTask(ctx context.Context, lane adapter.Lane, taskID string) (*adapter.Task, error) {
	_, k, err := q.lane(lane)
	if err != nil {
		return nil, err
	}
	fields, err := q.cli.HGetAll(ctx, k.task(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: get %s/%s: %w", lane, taskID, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	return decodeTask(lane, fields)
}

func (q *RedisQueue) Metrics(ctx context.Context, lane adapter.Lane) (adapter.LaneMetrics, error) {
	_, k, err := q.lane(lane)
	if err != nil {
		return adapter.LaneMetrics{}, err
	}
	pipe := q.cli.Pipeline()
	waiting := pipe.ZCard(ctx, k.wait)
	active := pipe.ZCard(ctx, k.active)
	delayed := pipe.ZCard(ctx, k.delayed)
	completed := pipe.ZCard(ctx, k.completed)
	failed := pipe.ZCard(ctx, k.failed)
	paused := pipe.Exists(ctx, k.paused)
	if _, err := pipe.Exec(ctx); err != nil {
		return adapter.LaneMetrics{}, fmt.Errorf("queue: metrics %s: %w", lane, err)
	}
	m := adapter.LaneMetrics{
		Queue:     lane,
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Paused:    paused.Val() == 1,
	}
	m.Total = m.Waiting + m.Active + m.Delayed + m.Completed + m.Failed
	return m, nil
}

func (q *RedisQueue) Pause(ctx context.Context, lane adapter.Lane) error {
	_, k, err := q.lane(lane)
	if err != nil {
		return err
	}
	return q.cli.Set(ctx, k.paused, "1", 0).Err()
}

func (q *RedisQueue) Resume(ctx context.Context, lane adapter.Lane) error {
	_, k, err := q.lane(lane)
	if err != nil {
		return err
	}
	return q.cli.Del(ctx, k.paused).Err()
}

func (q *RedisQueue) Clean(ctx context.Context, lane adapter.Lane, grace time.Duration, limit int, state adapter.TaskState) (int, error) {
	_, k, err := q.lane(lane)
	if err != nil {
		return 0, err
	}
	var set string
	switch state {
	case adapter.TaskCompleted:
		set = k.completed
	case adapter.TaskFailed:
		set = k.failed
	default:
		return 0, fmt.Errorf("%w: clean supports completed|failed, got %q", domain.ErrInvalidArgument, state)
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := q.now().Add(-grace).UnixMilli()
	n, err := cleanScript.Run(ctx, q.cli, []string{set}, cutoff, limit, k.taskPrefix).Int()
	if err != nil {
		return 0, fmt.Errorf("queue: clean %s/%s: %w", lane, state, err)
	}
	return n, nil
}

func (q *RedisQueue) RequeueStale(ctx context.Context, lane adapter.Lane) (int, error) {
	_, k, err := q.lane(lane)
	if err != nil {
		return 0, err
	}
	n, err := requeueStaleScript.Run(ctx, q.cli,
		[]string{k.active, k.wait, k.failed},
		q.now().UnixMilli(), k.taskPrefix,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("queue: requeue stale %s: %w", lane, err)
	}
	if n > 0 {
		q.log.Warn().Str("lane", string(lane)).Int("count", n).Msg("requeued tasks with expired leases")
	}
	return n, nil
}

func resolve(s LaneSettings, opts adapter.EnqueueOptions) (int, adapter.Backoff) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = s.MaxAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	backoff := s.Backoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	return attempts, backoff
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("queue: encode payload: %w", err)
		}
		return b, nil
	}
}

func flatToMap(res interface{}) (map[string]string, error) {
	arr, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("queue: unexpected claim reply %T", res)
	}
	out := make(map[string]string, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		k, _ := arr[i].(string)
		v, _ := arr[i+1].(string)
		out[k] = v
	}
	return out, nil
}

func decodeTask(lane adapter.Lane, f map[string]string) (*adapter.Task, error) {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(f[k])
		return n
	}
	ms := func(k string) *time.Time {
		v, ok := f[k]
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		t := time.UnixMilli(n).UTC()
		return &t
	}
	t := &adapter.Task{
		ID:           f["id"],
		Lane:         lane,
		Name:         f["name"],
		Payload:      json.RawMessage(f["payload"]),
		Priority:     atoi("priority"),
		AttemptsMade: atoi("attempts_made"),
		MaxAttempts:  atoi("max_attempts"),
		Backoff: adapter.Backoff{
			Base: time.Duration(atoi("backoff_base")) * time.Millisecond,
			Max:  time.Duration(atoi("backoff_max")) * time.Millisecond,
		},
		State:        adapter.TaskState(f["state"]),
		Progress:     atoi("progress"),
		FailedReason: f["failed_reason"],
		ProcessedAt:  ms("processed_at"),
		FinishedAt:   ms("finished_at"),
	}
	if c := ms("created_at"); c != nil {
		t.CreatedAt = *c
	}
	if t.ID == "" {
		return nil, domain.ErrTaskNotFound
	}
	return t, nil
}
