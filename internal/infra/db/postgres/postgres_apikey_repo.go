package postgres

import (
	"context"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.APIKeyRepository = (*apiKeyRepo)(nil)

const apiKeyColumns = `id, org_id, name, prefix, key_hash, last_used_at, revoked_at, created_at`

type apiKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepo(pool *pgxpool.Pool) *apiKeyRepo {
	return &apiKeyRepo{pool: pool}
}

func (r *apiKeyRepo) Save(ctx context.Context, tx repository.Tx, k *model.APIKey) error {
	const q = `INSERT INTO api_keys (` + apiKeyColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	if _, err := execSQL(ctx, r.pool, tx, q, k.ID, k.OrgID, k.Name, k.Prefix, k.KeyHash, k.LastUsedAt, k.RevokedAt, k.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save api key: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) FindActiveByPrefix(ctx context.Context, tx repository.Tx, prefix string) ([]*model.APIKey, error) {
	return r.list(ctx, tx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE prefix = $1 AND revoked_at IS NULL;`, prefix)
}

func (r *apiKeyRepo) ListByOrg(ctx context.Context, tx repository.Tx, orgID string) ([]*model.APIKey, error) {
	return r.list(ctx, tx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC;`, orgID)
}

func (r *apiKeyRepo) Revoke(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL;`, id, at)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) TouchLastUsed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1;`, id, at)
	return err
}

func (r *apiKeyRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.APIKey, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	var out []*model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.Name, &k.Prefix, &k.KeyHash, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}
