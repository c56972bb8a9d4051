package repository

import (
	"context"
	"time"

	"launchkit-core/internal/domain/model"
)

type APIKeyRepository interface {
	Save(ctx context.Context, tx Tx, key *model.APIKey) error
	// FindActiveByPrefix returns non-revoked keys sharing prefix.
	FindActiveByPrefix(ctx context.Context, tx Tx, prefix string) ([]*model.APIKey, error)
	ListByOrg(ctx context.Context, tx Tx, orgID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, tx Tx, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, tx Tx, id string, at time.Time) error
}
