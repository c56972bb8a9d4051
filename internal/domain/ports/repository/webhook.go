package repository

import (
	"context"
	"time"

	"launchkit-core/internal/domain/model"
)

// WebhookEndpointRepository stores endpoints. Secrets are handed in and out in
// plaintext; encryption at rest is the implementation's concern.
type WebhookEndpointRepository interface {
	Save(ctx context.Context, tx Tx, ep *model.WebhookEndpoint) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.WebhookEndpoint, error)
	ListByOrg(ctx context.Context, tx Tx, orgID string) ([]*model.WebhookEndpoint, error)
	ListEnabledByOrg(ctx context.Context, tx Tx, orgID string) ([]*model.WebhookEndpoint, error)
	Update(ctx context.Context, tx Tx, ep *model.WebhookEndpoint) error
	TouchDelivered(ctx context.Context, tx Tx, id string, at time.Time) error
	Delete(ctx context.Context, tx Tx, id string) error
}

// WebhookDeliveryRepository is append-only: one row per attempt.
type WebhookDeliveryRepository interface {
	Save(ctx context.Context, tx Tx, d *model.WebhookDelivery) error
	ListByEndpoint(ctx context.Context, tx Tx, endpointID string, limit, offset int) ([]*model.WebhookDelivery, int, error)
}
