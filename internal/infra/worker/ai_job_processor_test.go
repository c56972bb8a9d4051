package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

func newQueuedJob(t *testing.T, jobType model.JobType, text string) *model.Job {
	t.Helper()
	input, _ := json.Marshal(map[string]string{"text": text})
	job, err := model.NewJob("org-1", jobType, input)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func taskFor(t *testing.T, job *model.Job, attemptsMade, maxAttempts int) *adapter.Task {
	t.Helper()
	payload, _ := json.Marshal(model.AIJobTask{JobID: job.ID, OrgID: job.OrgID, Type: job.Type, Input: job.Input})
	return &adapter.Task{
		ID:           job.ID,
		Lane:         adapter.LaneAIJobs,
		Name:         string(job.Type),
		Payload:      payload,
		AttemptsMade: attemptsMade,
		MaxAttempts:  maxAttempts,
		Backoff:      adapter.Backoff{Base: 2 * time.Second, Max: time.Hour},
		State:        adapter.TaskActive,
	}
}

type processorFixture struct {
	jobs       *memJobRepo
	ledger     *fakeLedger
	dispatcher *fakeDispatcher
	proc       *AIJobProcessor
}

func newProcessorFixture(registry *Registry, jobs ...*model.Job) *processorFixture {
	plans := model.DefaultPlans()
	f := &processorFixture{
		jobs:       newMemJobRepo(jobs...),
		ledger:     &fakeLedger{plan: plans[1]}, // PRO
		dispatcher: &fakeDispatcher{},
	}
	logger := zerolog.Nop()
	f.proc = NewAIJobProcessor(f.jobs, f.ledger, f.dispatcher, registry, passTM{}, &logger)
	return f
}

func TestAIJobProcessor_SummarizeSucceeds(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 50)
	job := newQueuedJob(t, model.JobTypeSummarize, text)
	f := newProcessorFixture(MockRegistry(0, 1), job)

	if err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3)); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	got := f.jobs.get(job.ID)
	if got.Status != model.JobStatusSucceeded {
		t.Fatalf("expected SUCCEEDED got %s", got.Status)
	}
	// 50 chars of input plus a 50 char summary
	if got.TokenUsed != 25 {
		t.Fatalf("expected 25 tokens got %d", got.TokenUsed)
	}
	if got.CostCents != 1 {
		t.Fatalf("expected cost 1 cent at PRO rate got %d", got.CostCents)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("expected startedAt and completedAt to be set: %+v", got)
	}
	var out map[string]any
	if err := json.Unmarshal(got.Output, &out); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if out["summary"] != text || out["summaryLength"] != float64(50) {
		t.Fatalf("unexpected output %v", out)
	}

	deltas := f.ledger.recorded()
	if len(deltas) != 1 || deltas[0].Tokens != 25 || deltas[0].CostCents != 1 || deltas[0].Jobs != 0 {
		t.Fatalf("unexpected usage deltas %+v", deltas)
	}

	events := f.dispatcher.all()
	if len(events) != 1 || events[0].event != model.EventJobCompleted {
		t.Fatalf("expected one job.completed event got %+v", events)
	}
	ev := events[0].data.(model.JobCompletedEvent)
	if ev.JobID != job.ID || ev.TokensUsed != 25 || ev.Status != model.JobStatusSucceeded {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAIJobProcessor_TerminalJobIsSkipped(t *testing.T) {
	t.Parallel()
	job := newQueuedJob(t, model.JobTypeSummarize, "hello")
	job.Status = model.JobStatusSucceeded
	f := newProcessorFixture(MockRegistry(0, 1), job)

	if err := f.proc.Handle(context.Background(), taskFor(t, job, 1, 3)); err != nil {
		t.Fatalf("expected redelivery to be a no-op, got %v", err)
	}
	if len(f.dispatcher.all()) != 0 || len(f.ledger.recorded()) != 0 {
		t.Fatalf("expected no side effects on a terminal job")
	}
}

func TestAIJobProcessor_RetryableFailureKeepsProcessing(t *testing.T) {
	t.Parallel()
	job := newQueuedJob(t, model.JobTypeClassify, "hello")
	reg := NewRegistry().Register(model.JobTypeClassify, JobHandlerFunc(func(context.Context, JobInput) (*HandlerResult, error) {
		return nil, errBoom
	}))
	f := newProcessorFixture(reg, job)

	err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3))
	if !errors.Is(err, errBoom) || IsPermanent(err) {
		t.Fatalf("expected retryable boom, got %v", err)
	}
	if got := f.jobs.get(job.ID); got.Status != model.JobStatusProcessing {
		t.Fatalf("expected PROCESSING between attempts got %s", got.Status)
	}
	if len(f.dispatcher.all()) != 0 {
		t.Fatalf("no event expected before the final attempt")
	}
}

func TestAIJobProcessor_FinalAttemptFails(t *testing.T) {
	t.Parallel()
	job := newQueuedJob(t, model.JobTypeClassify, "hello")
	reg := NewRegistry().Register(model.JobTypeClassify, JobHandlerFunc(func(context.Context, JobInput) (*HandlerResult, error) {
		return nil, errBoom
	}))
	f := newProcessorFixture(reg, job)

	err := f.proc.Handle(context.Background(), taskFor(t, job, 2, 3))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error on the final attempt, got %v", err)
	}
	got := f.jobs.get(job.ID)
	if got.Status != model.JobStatusFailed || got.Error == nil || *got.Error != errBoom.Error() {
		t.Fatalf("unexpected job after final failure %+v", got)
	}
	events := f.dispatcher.all()
	if len(events) != 1 || events[0].event != model.EventJobFailed {
		t.Fatalf("expected one job.failed event got %+v", events)
	}
	if ev := events[0].data.(model.JobFailedEvent); ev.Attempts != 3 || ev.Error != errBoom.Error() {
		t.Fatalf("unexpected failed event %+v", ev)
	}
	if len(f.ledger.recorded()) != 0 {
		t.Fatalf("failed jobs must not meter tokens")
	}
}

func TestAIJobProcessor_PermanentErrors(t *testing.T) {
	t.Parallel()

	t.Run("no handler for type", func(t *testing.T) {
		job := newQueuedJob(t, model.JobTypeExtract, "hello")
		f := newProcessorFixture(NewRegistry(), job)
		err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3))
		if !IsPermanent(err) || !errors.Is(err, domain.ErrInvalidJobType) {
			t.Fatalf("expected permanent invalid job type, got %v", err)
		}
		if got := f.jobs.get(job.ID); got.Status != model.JobStatusFailed {
			t.Fatalf("expected FAILED got %s", got.Status)
		}
	})

	t.Run("org without plan", func(t *testing.T) {
		job := newQueuedJob(t, model.JobTypeSummarize, "hello")
		f := newProcessorFixture(MockRegistry(0, 1), job)
		f.ledger.planErr = domain.ErrOrgNotFound
		err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3))
		if !IsPermanent(err) || !errors.Is(err, domain.ErrOrgNotFound) {
			t.Fatalf("expected permanent org not found, got %v", err)
		}
	})

	t.Run("missing job record", func(t *testing.T) {
		job := newQueuedJob(t, model.JobTypeSummarize, "hello")
		f := newProcessorFixture(MockRegistry(0, 1))
		err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3))
		if !IsPermanent(err) || !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected permanent not found, got %v", err)
		}
	})
}

func TestAIJobProcessor_DispatchFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()
	job := newQueuedJob(t, model.JobTypeTranslate, "hola")
	f := newProcessorFixture(MockRegistry(0, 1), job)
	f.dispatcher.err = errBoom

	if err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3)); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if got := f.jobs.get(job.ID); got.Status != model.JobStatusSucceeded {
		t.Fatalf("expected SUCCEEDED got %s", got.Status)
	}
}

func TestAIJobProcessor_FailureNotRecordedKeepsTaskAlive(t *testing.T) {
	t.Parallel()
	job := newQueuedJob(t, model.JobTypeExtract, "hello")
	f := newProcessorFixture(NewRegistry(), job)
	f.jobs.failErr = errors.New("db down")

	err := f.proc.Handle(context.Background(), taskFor(t, job, 0, 3))
	if err == nil || IsPermanent(err) {
		t.Fatalf("expected retryable error while the failure is unrecorded, got %v", err)
	}
	if got := f.jobs.get(job.ID); got.Status != model.JobStatusProcessing {
		t.Fatalf("expected PROCESSING got %s", got.Status)
	}
	if len(f.dispatcher.all()) != 0 {
		t.Fatalf("no job.failed before the record is closed")
	}

	err = f.proc.Handle(context.Background(), taskFor(t, job, 2, 3))
	if !IsPermanent(err) || !errors.Is(err, domain.ErrInvalidJobType) {
		t.Fatalf("expected the task to park on the final attempt, got %v", err)
	}

	f.jobs.failErr = nil
	if err := f.proc.Handle(context.Background(), taskFor(t, job, 1, 3)); !IsPermanent(err) {
		t.Fatalf("expected permanent error once recorded, got %v", err)
	}
	if got := f.jobs.get(job.ID); got.Status != model.JobStatusFailed {
		t.Fatalf("expected FAILED got %s", got.Status)
	}
}
