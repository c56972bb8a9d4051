package repository

import (
	"context"

	"launchkit-core/internal/domain/model"
)

// PlanRepository is the port for the authoritative plan table.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByCode(ctx context.Context, tx Tx, code model.PlanTier) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
