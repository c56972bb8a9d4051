package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*jobRepo)(nil)

const jobColumns = `id, org_id, type, status, input, output, error, token_used, cost_cents, created_at, started_at, completed_at`

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.OrgID, string(job.Type), string(job.Status), []byte(job.Input), nullableJSON(job.Output), job.Error,
		job.TokenUsed, job.CostCents, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func (r *jobRepo) ListByOrg(ctx context.Context, tx repository.Tx, orgID string, limit, offset int) ([]*model.Job, int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs WHERE org_id = $1;`, orgID)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE org_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3;`
	jobs, err := r.list(ctx, tx, q, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *jobRepo) ListQueued(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'QUEUED' AND created_at < $1 ORDER BY created_at LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *jobRepo) ListProcessing(ctx context.Context, tx repository.Tx, startedBefore time.Time, limit int) ([]*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'PROCESSING' AND started_at < $1 ORDER BY started_at LIMIT $2;`
	return r.list(ctx, tx, q, startedBefore, limit)
}

func (r *jobRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkProcessing is the claim-side CAS: QUEUED or PROCESSING rows move to
// PROCESSING and keep the first started_at.
func (r *jobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string, startedAt time.Time) (*model.Job, error) {
	const q = `
UPDATE jobs
   SET status = 'PROCESSING',
       started_at = COALESCE(started_at, $2)
 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING')
RETURNING ` + jobColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, startedAt)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, tx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	return job, nil
}

func (r *jobRepo) MarkSucceeded(ctx context.Context, tx repository.Tx, id string, res model.JobResult) error {
	const q = `
UPDATE jobs
   SET status = 'SUCCEEDED', output = $2, error = NULL, token_used = $3, cost_cents = $4, completed_at = $5
 WHERE id = $1 AND status = 'PROCESSING';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, []byte(res.Output), res.TokenUsed, res.CostCents, res.CompletedAt)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errText string, completedAt time.Time) error {
	const q = `
UPDATE jobs
   SET status = 'FAILED', error = $2, output = NULL, completed_at = $3
 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING');`
	tag, err := execSQL(ctx, r.pool, tx, q, id, errText, completedAt)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) missOrConflict(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrInvalidTransition
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j             model.Job
		typ, status   string
		input, output []byte
	)
	if err := row.Scan(&j.ID, &j.OrgID, &typ, &status, &input, &output, &j.Error,
		&j.TokenUsed, &j.CostCents, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	j.Input = input
	if len(output) > 0 {
		j.Output = output
	}
	return &j, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
