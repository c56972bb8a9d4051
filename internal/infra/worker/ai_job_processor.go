package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/domain/ports/usecase"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "launchkit-core/worker"

// AIJobProcessor executes ai-jobs tasks: it drives the job record through
// PROCESSING to a terminal state, meters usage and fans out the outcome.
type AIJobProcessor struct {
	jobs       repository.JobRepository
	ledger     usecase.UsageLedger
	dispatcher usecase.WebhookDispatcher
	registry   *Registry
	tm         repository.TransactionManager
	tracer     trace.Tracer
	now        func() time.Time
	log        *zerolog.Logger
}

func NewAIJobProcessor(
	jobs repository.JobRepository,
	ledger usecase.UsageLedger,
	dispatcher usecase.WebhookDispatcher,
	registry *Registry,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *AIJobProcessor {
	l := logger.With().Str("component", "AIJobProcessor").Logger()
	return &AIJobProcessor{
		jobs:       jobs,
		ledger:     ledger,
		dispatcher: dispatcher,
		registry:   registry,
		tm:         tm,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		log:        &l,
	}
}

// Handle is the ai-jobs lane handler.
func (p *AIJobProcessor) Handle(ctx context.Context, task *adapter.Task) error {
	var payload model.AIJobTask
	if err := task.Decode(&payload); err != nil {
		return Permanent(fmt.Errorf("decode ai job task: %w", err))
	}
	if payload.JobID == "" {
		payload.JobID = task.ID
	}

	ctx, span := p.tracer.Start(ctx, "job."+strings.ToLower(string(payload.Type)), trace.WithAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("org.id", payload.OrgID),
		attribute.Int("task.attempt", task.Attempt()),
	))
	defer span.End()

	ctx = logging.WithJobID(logging.WithOrgID(ctx, payload.OrgID), payload.JobID)
	log := logging.With(ctx, p.log)
	start := p.now()

	job, err := p.jobs.MarkProcessing(ctx, nil, payload.JobID, start.UTC())
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		// already terminal: a redelivery after the final write
		log.Info().Msg("job already terminal, skipping")
		metrics.IncAIJob(string(payload.Type), "skipped")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return Permanent(fmt.Errorf("job %s: %w", payload.JobID, err))
	case err != nil:
		span.RecordError(err)
		return fmt.Errorf("mark processing: %w", err)
	}
	ReportProgress(ctx, 10)

	res, err := p.execute(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return p.fail(ctx, log, task, job, err, start)
	}
	if res == nil {
		log.Info().Msg("job reached a terminal state concurrently, skipping")
		metrics.IncAIJob(string(job.Type), "skipped")
		return nil
	}

	metrics.IncAIJob(string(job.Type), "succeeded")
	metrics.ObserveAIJob(string(job.Type), p.now().Sub(start), res.TokenUsed, res.CostCents)
	span.SetAttributes(attribute.Int64("job.tokens", res.TokenUsed), attribute.Int64("job.cost_cents", res.CostCents))
	log.Info().Int64("tokens", res.TokenUsed).Int64("cost_cents", res.CostCents).Msg("job succeeded")

	p.notify(ctx, log, job.OrgID, model.EventJobCompleted, model.JobCompletedEvent{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      model.JobStatusSucceeded,
		Result:      res.Output,
		TokensUsed:  res.TokenUsed,
		CostCents:   res.CostCents,
		CompletedAt: model.ISOMillis(res.CompletedAt),
	})
	return nil
}

// execute runs the handler and commits the success transition together with
// the usage increment. A nil result with nil error means another writer won.
func (p *AIJobProcessor) execute(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	handler, ok := p.registry.Get(job.Type)
	if !ok {
		return nil, Permanent(fmt.Errorf("%w: %s", domain.ErrInvalidJobType, job.Type))
	}
	in, err := DecodeJobInput(job.Input)
	if err != nil {
		return nil, Permanent(err)
	}
	plan, err := p.ledger.PlanForOrg(ctx, job.OrgID)
	if err != nil {
		if errors.Is(err, domain.ErrOrgNotFound) {
			return nil, Permanent(err)
		}
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	ReportProgress(ctx, 30)

	out, err := handler.Handle(ctx, in)
	if err != nil {
		return nil, err
	}
	ReportProgress(ctx, 90)

	output, err := json.Marshal(out.Output)
	if err != nil {
		return nil, Permanent(fmt.Errorf("encode output: %w", err))
	}
	tokens := model.EstimateTokens(out.CountedText)
	res := &model.JobResult{
		Output:      output,
		TokenUsed:   tokens,
		CostCents:   plan.CostCents(tokens),
		CompletedAt: p.now().UTC(),
	}

	err = p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := p.jobs.MarkSucceeded(ctx, tx, job.ID, *res); err != nil {
			return err
		}
		p.ledger.RecordUsageTx(ctx, tx, job.OrgID, model.UsageDelta{Tokens: res.TokenUsed, CostCents: res.CostCents})
		return nil
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark succeeded: %w", err)
	}
	return res, nil
}

// fail decides between a retry, which leaves the record PROCESSING, and the
// terminal FAILED transition on a permanent error or the final attempt.
func (p *AIJobProcessor) fail(ctx context.Context, log *zerolog.Logger, task *adapter.Task, job *model.Job, cause error, start time.Time) error {
	metrics.ObserveAIJob(string(job.Type), p.now().Sub(start), 0, 0)
	if !IsPermanent(cause) && !task.IsFinalAttempt() {
		metrics.IncAIJob(string(job.Type), "retrying")
		log.Warn().Err(cause).Int("attempt", task.Attempt()).Int("max_attempts", task.MaxAttempts).Msg("job attempt failed, will retry")
		return cause
	}

	failedAt := p.now().UTC()
	msg := cause.Error()
	if err := p.jobs.MarkFailed(ctx, nil, job.ID, msg, failedAt); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info().Msg("job already terminal, not overwriting with failure")
			return Permanent(cause)
		}
		log.Error().Err(err).Int("attempt", task.Attempt()).Msg("could not record job failure")
		if !task.IsFinalAttempt() {
			// keep the task alive so a later attempt can close the record
			return fmt.Errorf("record job failure: %w", err)
		}
		// parked; the maintenance sweep closes the record from the task
		return Permanent(cause)
	}
	metrics.IncAIJob(string(job.Type), "failed")
	log.Error().Err(cause).Int("attempts", task.Attempt()).Msg("job failed")

	p.notify(ctx, log, job.OrgID, model.EventJobFailed, model.JobFailedEvent{
		JobID:    job.ID,
		Type:     job.Type,
		Status:   model.JobStatusFailed,
		Error:    msg,
		FailedAt: model.ISOMillis(failedAt),
		Attempts: task.Attempt(),
	})
	return Permanent(cause)
}

// notify is best-effort: a fan-out failure never changes the job outcome.
func (p *AIJobProcessor) notify(ctx context.Context, log *zerolog.Logger, orgID, event string, data any) {
	if p.dispatcher == nil {
		return
	}
	if _, err := p.dispatcher.Dispatch(ctx, orgID, event, data); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to fan out webhook event")
	}
}
