package repository

import (
	"context"
	"time"

	"launchkit-core/internal/domain/model"
)

// JobRepository persists job records. Status writes are compare-and-set:
// a write whose precondition no longer holds returns domain.ErrInvalidTransition.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListByOrg(ctx context.Context, tx Tx, orgID string, limit, offset int) ([]*model.Job, int, error)
	// ListQueued returns QUEUED jobs older than olderThan, oldest first.
	ListQueued(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Job, error)
	// ListProcessing returns PROCESSING jobs started before startedBefore, oldest first.
	ListProcessing(ctx context.Context, tx Tx, startedBefore time.Time, limit int) ([]*model.Job, error)

	// MarkProcessing moves QUEUED or PROCESSING to PROCESSING. startedAt is
	// only set on the first transition.
	MarkProcessing(ctx context.Context, tx Tx, id string, startedAt time.Time) (*model.Job, error)
	MarkSucceeded(ctx context.Context, tx Tx, id string, res model.JobResult) error
	MarkFailed(ctx context.Context, tx Tx, id string, errText string, completedAt time.Time) error
}
