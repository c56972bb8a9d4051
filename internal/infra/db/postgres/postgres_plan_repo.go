package postgres

import (
	"context"
	"errors"
	"fmt"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const sql = `
INSERT INTO plans (code, name, monthly_job_limit, monthly_token_limit, rate_per_1k_tokens_cents, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (code) DO UPDATE
  SET name                     = EXCLUDED.name,
      monthly_job_limit        = EXCLUDED.monthly_job_limit,
      monthly_token_limit      = EXCLUDED.monthly_token_limit,
      rate_per_1k_tokens_cents = EXCLUDED.rate_per_1k_tokens_cents;
`
	_, err := execSQL(ctx, r.pool, tx, sql,
		string(plan.Code), plan.Name, plan.MonthlyJobLimit, plan.MonthlyTokenLimit, plan.RatePer1kTokensCents, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Save plan: %w", err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
	const sql = `
SELECT code, name, monthly_job_limit, monthly_token_limit, rate_per_1k_tokens_cents, created_at
  FROM plans
 WHERE code = $1;
`
	row, err := pickRow(ctx, r.pool, tx, sql, string(code))
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("FindByCode plan: %w", err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	const sql = `
SELECT code, name, monthly_job_limit, monthly_token_limit, rate_per_1k_tokens_cents, created_at
  FROM plans
 ORDER BY monthly_job_limit = -1, monthly_job_limit;
`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("ListAll plans: %w", err)
	}
	defer rows.Close()
	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	var code string
	if err := row.Scan(&code, &p.Name, &p.MonthlyJobLimit, &p.MonthlyTokenLimit, &p.RatePer1kTokensCents, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Code = model.PlanTier(code)
	return &p, nil
}
