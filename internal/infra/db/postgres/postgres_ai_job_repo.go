package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/repository"
)

var _ repository.AIJobRepository = (*aiJobRepo)(nil)

type aiJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewAIJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *aiJobRepo {
	return &aiJobRepo{
		pool: pool,
		tm:   tm,
	}
}

func (r *aiJobRepo) CreateJob(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO ai_jobs (id, user_id, type, status, cache_key, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.UserID, string(job.Type), string(job.Status), job.CacheKey, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *aiJobRepo) GetJob(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT id, user_id, type, status, result, error, cache_key, attempts, created_at, updated_at
FROM ai_jobs
WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// UpdateJob locks the row, checks the transition and writes it in one transaction.
func (r *aiJobRepo) UpdateJob(ctx context.Context, id string, upd model.JobUpdate) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		row, err := pickRow(ctx, r.pool, tx, `SELECT status FROM ai_jobs WHERE id = $1 FOR UPDATE;`, id)
		if err != nil {
			return err
		}
		var cur string
		if err := row.Scan(&cur); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return domain.ErrReadDatabaseRow
		}

		current := model.JobStatus(cur)
		if current == upd.Status && current.IsTerminal() {
			return nil
		}
		if !current.CanTransitionTo(upd.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, upd.Status)
		}

		const q = `
UPDATE ai_jobs SET
  status = $2,
  result = $3::jsonb,
  error = $4,
  attempts = GREATEST(attempts, $5),
  updated_at = now()
WHERE id = $1;`
		_, err = execSQL(ctx, r.pool, tx, q, id, string(upd.Status), nullableJSON(upd.Result), nullableString(upd.Error), upd.Attempt)
		return err
	})
}

func (r *aiJobRepo) ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	const q = `
SELECT id, user_id, type, status, result, error, cache_key, attempts, created_at, updated_at
FROM ai_jobs
WHERE status IN ('queued', 'active') AND updated_at < $1
ORDER BY updated_at
LIMIT $2;`

	rows, err := r.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j        model.Job
		typ, st  string
		result   []byte
		errorMsg *string
	)
	err := row.Scan(&j.ID, &j.UserID, &typ, &st, &result, &errorMsg, &j.CacheKey, &j.Attempts, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(st)
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	if errorMsg != nil {
		j.Error = *errorMsg
	}
	return &j, nil
}

func nullableJSON(b json.RawMessage) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
