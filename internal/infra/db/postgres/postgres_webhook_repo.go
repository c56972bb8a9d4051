package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/infra/security"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	_ repository.WebhookEndpointRepository = (*webhookEndpointRepo)(nil)
	_ repository.WebhookDeliveryRepository = (*webhookDeliveryRepo)(nil)
)

const endpointColumns = `id, org_id, url, secret_enc, enabled, last_delivery_at, created_at`

// webhookEndpointRepo keeps signing secrets AES-GCM encrypted at rest.
type webhookEndpointRepo struct {
	pool *pgxpool.Pool
	enc  *security.EncryptionService
}

func NewWebhookEndpointRepo(pool *pgxpool.Pool, enc *security.EncryptionService) *webhookEndpointRepo {
	return &webhookEndpointRepo{pool: pool, enc: enc}
}

func (r *webhookEndpointRepo) Save(ctx context.Context, tx repository.Tx, ep *model.WebhookEndpoint) error {
	secret, err := r.enc.Encrypt(ep.Secret)
	if err != nil {
		return fmt.Errorf("encrypt webhook secret: %w", err)
	}
	const q = `INSERT INTO webhook_endpoints (` + endpointColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7);`
	if _, err := execSQL(ctx, r.pool, tx, q, ep.ID, ep.OrgID, ep.URL, secret, ep.Enabled, ep.LastDeliveryAt, ep.CreatedAt); err != nil {
		return fmt.Errorf("save webhook endpoint: %w", err)
	}
	return nil
}

func (r *webhookEndpointRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEndpoint, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	ep, err := r.scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find webhook endpoint: %w", err)
	}
	return ep, nil
}

func (r *webhookEndpointRepo) ListByOrg(ctx context.Context, tx repository.Tx, orgID string) ([]*model.WebhookEndpoint, error) {
	return r.list(ctx, tx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE org_id = $1 ORDER BY created_at DESC;`, orgID)
}

func (r *webhookEndpointRepo) ListEnabledByOrg(ctx context.Context, tx repository.Tx, orgID string) ([]*model.WebhookEndpoint, error) {
	return r.list(ctx, tx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE org_id = $1 AND enabled ORDER BY created_at;`, orgID)
}

func (r *webhookEndpointRepo) Update(ctx context.Context, tx repository.Tx, ep *model.WebhookEndpoint) error {
	const q = `UPDATE webhook_endpoints SET url = $2, enabled = $3 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, ep.ID, ep.URL, ep.Enabled)
	if err != nil {
		return fmt.Errorf("update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *webhookEndpointRepo) TouchDelivered(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE webhook_endpoints SET last_delivery_at = $2 WHERE id = $1;`, id, at)
	return err
}

// Delete removes the endpoint; its delivery history cascades.
func (r *webhookEndpointRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM webhook_endpoints WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *webhookEndpointRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.WebhookEndpoint, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()
	var out []*model.WebhookEndpoint
	for rows.Next() {
		ep, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (r *webhookEndpointRepo) scan(row pgx.Row) (*model.WebhookEndpoint, error) {
	var ep model.WebhookEndpoint
	var secretEnc string
	if err := row.Scan(&ep.ID, &ep.OrgID, &ep.URL, &secretEnc, &ep.Enabled, &ep.LastDeliveryAt, &ep.CreatedAt); err != nil {
		return nil, err
	}
	secret, err := r.enc.Decrypt(secretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt webhook secret %s: %w", ep.ID, err)
	}
	ep.Secret = secret
	return &ep, nil
}

const deliveryColumns = `id, endpoint_id, event_type, payload, signature, status, attempt, max_attempts,
       response_status, response_body, error, duration_ms, last_attempt_at, next_attempt_at, created_at`

type webhookDeliveryRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookDeliveryRepo(pool *pgxpool.Pool) *webhookDeliveryRepo {
	return &webhookDeliveryRepo{pool: pool}
}

func (r *webhookDeliveryRepo) Save(ctx context.Context, tx repository.Tx, d *model.WebhookDelivery) error {
	const q = `
INSERT INTO webhook_deliveries (` + deliveryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`
	_, err := execSQL(ctx, r.pool, tx, q,
		d.ID, d.EndpointID, d.EventType, []byte(d.Payload), d.Signature, string(d.Status), d.Attempt, d.MaxAttempts,
		d.ResponseStatus, d.ResponseBody, d.Error, d.DurationMs, d.LastAttemptAt, d.NextAttemptAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookDeliveryRepo) ListByEndpoint(ctx context.Context, tx repository.Tx, endpointID string, limit, offset int) ([]*model.WebhookDelivery, int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM webhook_deliveries WHERE endpoint_id = $1;`, endpointID)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhook deliveries: %w", err)
	}

	const q = `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE endpoint_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, endpointID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()
	var out []*model.WebhookDelivery
	for rows.Next() {
		var (
			d      model.WebhookDelivery
			status string
			body   []byte
		)
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventType, &body, &d.Signature, &status, &d.Attempt, &d.MaxAttempts,
			&d.ResponseStatus, &d.ResponseBody, &d.Error, &d.DurationMs, &d.LastAttemptAt, &d.NextAttemptAt, &d.CreatedAt); err != nil {
			return nil, 0, domain.ErrReadDatabaseRow
		}
		d.Status = model.DeliveryStatus(status)
		d.Payload = body
		out = append(out, &d)
	}
	return out, total, rows.Err()
}
