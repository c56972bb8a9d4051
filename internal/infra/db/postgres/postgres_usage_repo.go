package postgres

import (
	"context"
	"fmt"
	"time"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

const incrementUsageSQL = `
INSERT INTO usage_records (org_id, window_start, window_end, jobs, tokens, cost_cents)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (org_id, window_start) DO UPDATE
  SET jobs       = usage_records.jobs + EXCLUDED.jobs,
      tokens     = usage_records.tokens + EXCLUDED.tokens,
      cost_cents = usage_records.cost_cents + EXCLUDED.cost_cents;`

// Increment upserts the hour bucket containing at. Inside a caller's
// transaction the write runs under a savepoint so a failed increment leaves
// the surrounding transaction usable.
func (r *usageRepo) Increment(ctx context.Context, tx repository.Tx, orgID string, at time.Time, delta model.UsageDelta) error {
	start, end := model.HourWindow(at)
	args := []interface{}{orgID, start, end, delta.Jobs, delta.Tokens, delta.CostCents}

	outer, ok := tx.(pgx.Tx)
	if !ok {
		if _, err := execSQL(ctx, r.pool, tx, incrementUsageSQL, args...); err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		return nil
	}

	sp, err := outer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("usage savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, incrementUsageSQL, args...); err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("increment usage: %w", err)
	}
	return sp.Commit(ctx)
}

func (r *usageRepo) ListRange(ctx context.Context, tx repository.Tx, orgID string, from, to time.Time) ([]*model.UsageRecord, error) {
	const q = `
SELECT org_id, window_start, window_end, jobs, tokens, cost_cents
  FROM usage_records
 WHERE org_id = $1 AND window_start >= $2 AND window_start < $3
 ORDER BY window_start;`
	rows, err := queryRows(ctx, r.pool, tx, q, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()
	var out []*model.UsageRecord
	for rows.Next() {
		var u model.UsageRecord
		if err := rows.Scan(&u.OrgID, &u.WindowStart, &u.WindowEnd, &u.Jobs, &u.Tokens, &u.CostCents); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.WindowStart = u.WindowStart.UTC()
		u.WindowEnd = u.WindowEnd.UTC()
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *usageRepo) Sum(ctx context.Context, tx repository.Tx, orgID string, from, to time.Time) (model.UsageTotals, error) {
	const q = `
SELECT COALESCE(SUM(jobs), 0)::BIGINT, COALESCE(SUM(tokens), 0)::BIGINT, COALESCE(SUM(cost_cents), 0)::BIGINT
  FROM usage_records
 WHERE org_id = $1 AND window_start >= $2 AND window_start < $3;`
	var t model.UsageTotals
	row, err := pickRow(ctx, r.pool, tx, q, orgID, from, to)
	if err != nil {
		return t, err
	}
	if err := row.Scan(&t.Jobs, &t.Tokens, &t.CostCents); err != nil {
		return t, fmt.Errorf("sum usage: %w", err)
	}
	return t, nil
}
