package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseflow/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, job_type, job_key, status, user_id, case_id, error, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Type, &j.Key, &j.Status, &j.UserID, &j.CaseID, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a queued job row. Returns false when a job with the same
// idempotency key already exists.
func (r *Repository) Create(ctx context.Context, j *models.Job) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, job_type, job_key, status, user_id, case_id)
		VALUES ($1, $2, $3, 'queued', $4, $5)
		ON CONFLICT (job_key) DO NOTHING
	`, j.ID, j.Type, j.Key, j.UserID, j.CaseID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetByKey returns the job for an idempotency key, or nil if none exists.
func (r *Repository) GetByKey(ctx context.Context, key string) (*models.Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *Repository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'processing', updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'complete', error = NULL, updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', error = $1, updated_at = now() WHERE id = $2
	`, reason, id)
	return err
}

// CancelQueued marks a still-queued job failed with a cancellation note.
// In-flight work is never interrupted; cancellation is advisory only.
func (r *Repository) CancelQueued(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', error = 'cancelled by user', updated_at = now()
		WHERE id = $1 AND status = 'queued'
	`, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RequeueStale flips processing jobs untouched since olderThan back to
// queued. Implements the runner's stale-reclamation store.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'queued', updated_at = now()
		WHERE status = 'processing' AND updated_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
