package adapter

import (
	"context"
	"encoding/json"
	"time"

	"launchkit-core/internal/domain"
)

// Lane is an independently configured queue partition.
type Lane string

const (
	LaneAIJobs   Lane = "ai-jobs"
	LaneWebhooks Lane = "webhooks"
)

// Lanes lists every registered lane.
var Lanes = []Lane{LaneAIJobs, LaneWebhooks}

// ParseLane validates a lane name.
func ParseLane(s string) (Lane, error) {
	for _, l := range Lanes {
		if string(l) == s {
			return l, nil
		}
	}
	return "", domain.ErrUnknownLane
}

type TaskState string

const (
	TaskWaiting   TaskState = "waiting"
	TaskActive    TaskState = "active"
	TaskDelayed   TaskState = "delayed"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Backoff is an exponential retry schedule capped at Max.
type Backoff struct {
	Base time.Duration `json:"base"`
	Max  time.Duration `json:"max"`
}

// Delay returns min(Base * 2^(attempt-1), Max) for a 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		if d <= 0 { // overflow
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// EnqueueOptions overrides lane defaults for one task.
type EnqueueOptions struct {
	// Priority: lower runs first; 0 is the default.
	Priority    int
	MaxAttempts int
	Backoff     *Backoff
	Delay       time.Duration
}

// Task is the transient unit owned by the queue and borrowed by a worker while claimed.
type Task struct {
	ID           string          `json:"id"`
	Lane         Lane            `json:"lane"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Backoff      Backoff         `json:"backoff"`
	State        TaskState       `json:"state"`
	Progress     int             `json:"progress"`
	FailedReason string          `json:"failedReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

// Attempt is the 1-based number of the attempt currently running.
func (t *Task) Attempt() int { return t.AttemptsMade + 1 }

// IsFinalAttempt reports whether a failure of the running attempt exhausts the task.
func (t *Task) IsFinalAttempt() bool { return t.Attempt() >= t.MaxAttempts }

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error { return json.Unmarshal(t.Payload, v) }

// LaneMetrics are per-lane counts.
type LaneMetrics struct {
	Queue     Lane  `json:"queue"`
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
	Paused    bool  `json:"paused"`
}

// WorkQueue is a durable, at-least-once task queue partitioned into lanes.
// Exactly one of Complete, Retry or Fail must be reported per claimed task.
type WorkQueue interface {
	// Enqueue is idempotent on taskID: an existing id returns created=false.
	Enqueue(ctx context.Context, lane Lane, taskID, name string, payload any, opts EnqueueOptions) (created bool, err error)
	// Claim leases the next eligible task or returns domain.ErrNoTask.
	Claim(ctx context.Context, lane Lane) (*Task, error)
	Complete(ctx context.Context, task *Task) error
	// Retry schedules the task per its backoff, or parks it as failed once attempts are exhausted.
	// It reports whether the task was parked.
	Retry(ctx context.Context, task *Task, reason string) (parked bool, err error)
	Fail(ctx context.Context, task *Task, reason string) error
	UpdateProgress(ctx context.Context, lane Lane, taskID string, pct int) error
	GetTask(ctx context.Context, lane Lane, taskID string) (*Task, error)

	Metrics(ctx context.Context, lane Lane) (LaneMetrics, error)
	Pause(ctx context.Context, lane Lane) error
	Resume(ctx context.Context, lane Lane) error
	// Clean evicts up to limit tasks in state finished before now-grace.
	Clean(ctx context.Context, lane Lane, grace time.Duration, limit int, state TaskState) (int, error)
	// RequeueStale returns active tasks whose lease expired to waiting.
	RequeueStale(ctx context.Context, lane Lane) (int, error)
}
