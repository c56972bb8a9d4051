package repository

import (
	"context"

	"launchkit-core/internal/domain/model"
)

type OrgRepository interface {
	Save(ctx context.Context, tx Tx, org *model.Org) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Org, error)
	List(ctx context.Context, tx Tx) ([]*model.Org, error)
}
