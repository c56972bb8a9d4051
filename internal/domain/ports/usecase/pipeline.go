package usecase

import (
	"context"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
)

// UsageLedger is what the job pipeline needs from usage metering.
type UsageLedger interface {
	// RecordUsage is best-effort: implementations log and swallow failures.
	RecordUsage(ctx context.Context, orgID string, delta model.UsageDelta)
	// RecordUsageTx joins tx; a failure is logged and swallowed without aborting tx.
	RecordUsageTx(ctx context.Context, tx repository.Tx, orgID string, delta model.UsageDelta)
	CheckLimit(ctx context.Context, orgID string) (*model.LimitCheck, error)
	PlanForOrg(ctx context.Context, orgID string) (*model.Plan, error)
}

// WebhookDispatcher fans a domain event out to an org's enabled endpoints.
type WebhookDispatcher interface {
	// Dispatch enqueues one delivery task per enabled endpoint.
	Dispatch(ctx context.Context, orgID, event string, data any) (*model.DispatchResult, error)
}
