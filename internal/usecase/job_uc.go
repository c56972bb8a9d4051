package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/domain/ports/usecase"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

type JobUseCase interface {
	CreateJob(ctx context.Context, orgID string, jobType model.JobType, input json.RawMessage) (*model.JobCreated, error)
	GetJob(ctx context.Context, jobID, orgID string) (*model.JobView, error)
	ListJobs(ctx context.Context, orgID string, limit, offset int) (*model.JobPage, error)
	RequeueJob(ctx context.Context, jobID string) (bool, error)
	// RequeueStuck enqueues QUEUED jobs older than age whose task may never have been created.
	RequeueStuck(ctx context.Context, age time.Duration, limit int) (int, error)
	// FailOrphaned closes PROCESSING jobs started more than age ago whose
	// task was parked as failed or no longer exists.
	FailOrphaned(ctx context.Context, age time.Duration, limit int) (int, error)
}

type jobUC struct {
	jobs       repository.JobRepository
	ledger     usecase.UsageLedger
	queue      adapter.WorkQueue
	dispatcher usecase.WebhookDispatcher

	now func() time.Time
	log *zerolog.Logger
}

type JobOption func(*jobUC)

// WithJobEvents fans out job.failed for records closed by FailOrphaned.
func WithJobEvents(d usecase.WebhookDispatcher) JobOption {
	return func(uc *jobUC) { uc.dispatcher = d }
}

func NewJobUseCase(jobs repository.JobRepository, ledger usecase.UsageLedger, queue adapter.WorkQueue, logger *zerolog.Logger, opts ...JobOption) *jobUC {
	l := logger.With().Str("component", "JobUseCase").Logger()
	uc := &jobUC{jobs: jobs, ledger: ledger, queue: queue, now: time.Now, log: &l}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

// CreateJob admits a job: plan check, QUEUED record, job counted, task enqueued.
func (uc *jobUC) CreateJob(ctx context.Context, orgID string, jobType model.JobType, input json.RawMessage) (*model.JobCreated, error) {
	jobType, err := model.ParseJobType(string(jobType))
	if err != nil {
		metrics.IncJobAdmission(string(jobType), "invalid")
		return nil, err
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	job, err := model.NewJob(orgID, jobType, input)
	if err != nil {
		metrics.IncJobAdmission(string(jobType), "invalid")
		return nil, err
	}

	check, err := uc.ledger.CheckLimit(ctx, orgID)
	if err != nil {
		metrics.IncJobAdmission(string(jobType), "error")
		return nil, err
	}
	if !check.Allowed {
		metrics.IncJobAdmission(string(jobType), "rejected")
		return nil, fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, check.Reason)
	}

	if err := uc.jobs.Save(ctx, repository.NoTX, job); err != nil {
		metrics.IncJobAdmission(string(jobType), "error")
		return nil, fmt.Errorf("save job: %w", err)
	}
	uc.ledger.RecordUsage(ctx, orgID, model.UsageDelta{Jobs: 1})

	log := logging.With(logging.WithJobID(logging.WithOrgID(ctx, orgID), job.ID), uc.log)
	if _, err := uc.enqueue(ctx, job); err != nil {
		// the record stays QUEUED and RequeueStuck picks it up
		log.Error().Err(err).Msg("failed to enqueue job task")
	}
	metrics.IncJobAdmission(string(jobType), "accepted")
	log.Info().Str("type", string(jobType)).Msg("job admitted")

	return &model.JobCreated{ID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt}, nil
}

func (uc *jobUC) enqueue(ctx context.Context, job *model.Job) (bool, error) {
	payload := model.AIJobTask{JobID: job.ID, OrgID: job.OrgID, Type: job.Type, Input: job.Input}
	return uc.queue.Enqueue(ctx, adapter.LaneAIJobs, job.ID, string(job.Type), payload, adapter.EnqueueOptions{})
}

// GetJob returns the record, enriched with live queue state while not terminal.
// A non-empty orgID scopes the lookup; another org's job is reported as not found.
func (uc *jobUC) GetJob(ctx context.Context, jobID, orgID string) (*model.JobView, error) {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && job.OrgID != orgID {
		return nil, domain.ErrNotFound
	}
	view := &model.JobView{Job: job}
	if job.Status.IsTerminal() {
		return view, nil
	}

	task, err := uc.queue.GetTask(ctx, adapter.LaneAIJobs, job.ID)
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
	case err != nil:
		uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("queue lookup failed")
	default:
		progress, attempts := task.Progress, task.AttemptsMade
		view.QueueState = string(task.State)
		view.QueueProgress = &progress
		view.QueueAttempts = &attempts
		view.QueueFailedReason = task.FailedReason
	}
	return view, nil
}

func (uc *jobUC) ListJobs(ctx context.Context, orgID string, limit, offset int) (*model.JobPage, error) {
	limit, offset = clampPage(limit, offset)
	jobs, total, err := uc.jobs.ListByOrg(ctx, repository.NoTX, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return &model.JobPage{Jobs: jobs, Total: total, Limit: limit, Offset: offset}, nil
}

// RequeueJob re-enqueues a QUEUED job. The task id is the job id, so a task
// that still exists is left alone.
func (uc *jobUC) RequeueJob(ctx context.Context, jobID string) (bool, error) {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobStatusQueued {
		return false, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, job.ID, job.Status)
	}
	return uc.enqueue(ctx, job)
}

func (uc *jobUC) RequeueStuck(ctx context.Context, age time.Duration, limit int) (int, error) {
	jobs, err := uc.jobs.ListQueued(ctx, repository.NoTX, uc.now().Add(-age), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		created, err := uc.enqueue(ctx, job)
		if err != nil {
			return n, fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
		if created {
			n++
		}
	}
	if n > 0 {
		uc.log.Warn().Int("count", n).Msg("re-enqueued queued jobs without a task")
	}
	return n, nil
}

const orphanReason = "job task was lost"

func (uc *jobUC) FailOrphaned(ctx context.Context, age time.Duration, limit int) (int, error) {
	jobs, err := uc.jobs.ListProcessing(ctx, repository.NoTX, uc.now().Add(-age), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		reason, attempts := orphanReason, 0
		task, err := uc.queue.GetTask(ctx, adapter.LaneAIJobs, job.ID)
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
		case err != nil:
			return n, fmt.Errorf("task of job %s: %w", job.ID, err)
		case task.State == adapter.TaskFailed:
			attempts = task.AttemptsMade
			if task.FailedReason != "" {
				reason = task.FailedReason
			}
		default:
			// still waiting, delayed or running
			continue
		}

		failedAt := uc.now().UTC()
		if err := uc.jobs.MarkFailed(ctx, repository.NoTX, job.ID, reason, failedAt); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return n, fmt.Errorf("fail orphaned job %s: %w", job.ID, err)
		}
		n++
		metrics.IncAIJob(string(job.Type), "failed")
		log := logging.With(logging.WithJobID(logging.WithOrgID(ctx, job.OrgID), job.ID), uc.log)
		log.Warn().Str("reason", reason).Msg("closed job whose task was parked or lost")

		if uc.dispatcher == nil {
			continue
		}
		_, err = uc.dispatcher.Dispatch(ctx, job.OrgID, model.EventJobFailed, model.JobFailedEvent{
			JobID:    job.ID,
			Type:     job.Type,
			Status:   model.JobStatusFailed,
			Error:    reason,
			FailedAt: model.ISOMillis(failedAt),
			Attempts: attempts,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to fan out job.failed")
		}
	}
	return n, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
