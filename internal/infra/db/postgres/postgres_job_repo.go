package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*PostgresJobRepo)(nil)

type PostgresJobRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresJobRepo(pool *pgxpool.Pool) *PostgresJobRepo {
	return &PostgresJobRepo{pool: pool}
}

func (r *PostgresJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	input, err := encodeJSON(job.Input)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (id, type, status, input, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6);`
	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.Type, string(job.Status), input, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT id, type, status, input, output, error_message, created_at, updated_at, started_at, completed_at
  FROM jobs
 WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var (
		j       model.Job
		status  string
		input   []byte
		output  []byte
		errText *string
	)
	if err := row.Scan(&j.ID, &j.Type, &status, &input, &output, &errText,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	if errText != nil {
		j.ErrorMessage = *errText
	}
	if j.Input, err = decodeJSON(input); err != nil {
		return nil, err
	}
	if j.Output, err = decodeJSON(output); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *PostgresJobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE jobs
   SET status = 'processing', started_at = $2, updated_at = $2, error_message = NULL
 WHERE id = $1;`
	return r.update(ctx, tx, "mark processing", q, id, time.Now().UTC())
}

func (r *PostgresJobRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, output map[string]any) error {
	out, err := encodeJSON(output)
	if err != nil {
		return err
	}
	const q = `
UPDATE jobs
   SET status = 'completed', output = $2, completed_at = $3, updated_at = $3
 WHERE id = $1;`
	return r.update(ctx, tx, "mark completed", q, id, out, time.Now().UTC())
}

func (r *PostgresJobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string, output map[string]any) error {
	out, err := encodeJSON(output)
	if err != nil {
		return err
	}
	const q = `
UPDATE jobs
   SET status = 'failed', error_message = $2, output = $3, completed_at = $4, updated_at = $4
 WHERE id = $1;`
	return r.update(ctx, tx, "mark failed", q, id, errMsg, out, time.Now().UTC())
}

func (r *PostgresJobRepo) FailStale(ctx context.Context, tx repository.Tx, startedBefore time.Time, errMsg string) (int64, error) {
	out, err := encodeJSON(map[string]any{"error": errMsg})
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE jobs
   SET status = 'failed', error_message = $2, output = $3, completed_at = $4, updated_at = $4
 WHERE status = 'processing' AND started_at < $1;`
	ct, err := execSQL(ctx, r.pool, tx, q, startedBefore.UTC(), errMsg, out, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *PostgresJobRepo) update(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) error {
	ct, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// encodeJSON returns nil for a nil map so the column stays NULL.
func encodeJSON(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decodeJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return m, nil
}
