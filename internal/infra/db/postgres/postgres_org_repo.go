package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
)

var _ repository.OrgRepository = (*PostgresOrgRepo)(nil)

type PostgresOrgRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOrgRepo(pool *pgxpool.Pool) *PostgresOrgRepo {
	return &PostgresOrgRepo{pool: pool}
}

func (r *PostgresOrgRepo) Save(ctx context.Context, tx repository.Tx, org *model.Org) error {
	const q = `
INSERT INTO orgs (id, name, plan_tier, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
  SET name      = EXCLUDED.name,
      plan_tier = EXCLUDED.plan_tier;
`
	if _, err := execSQL(ctx, r.pool, tx, q, org.ID, org.Name, string(org.PlanTier), org.CreatedAt); err != nil {
		return fmt.Errorf("save org: %w", err)
	}
	return nil
}

func (r *PostgresOrgRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Org, error) {
	const q = `SELECT id, name, plan_tier, created_at FROM orgs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var o model.Org
	var tier string
	if err := row.Scan(&o.ID, &o.Name, &tier, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find org: %w", err)
	}
	o.PlanTier = model.PlanTier(tier)
	return &o, nil
}

func (r *PostgresOrgRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Org, error) {
	const q = `SELECT id, name, plan_tier, created_at FROM orgs ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	defer rows.Close()
	var out []*model.Org
	for rows.Next() {
		var o model.Org
		var tier string
		if err := rows.Scan(&o.ID, &o.Name, &tier, &o.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		o.PlanTier = model.PlanTier(tier)
		out = append(out, &o)
	}
	return out, rows.Err()
}
