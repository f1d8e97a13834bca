package ledger

import (
	"context"
	"errors"

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

// ApplyEntry inserts a ledger entry and adjusts the cached balance inside
// one transaction. The insert is conditional on (job_key, reason) being
// absent; when the entry already exists nothing is written and the current
// balance is returned with inserted=false. The balance is floor-clamped at
// zero.
func (r *Repository) ApplyEntry(ctx context.Context, e *models.LedgerEntry) (bool, int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, case_id, job_type, job_key, delta, reason, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_key, reason) DO NOTHING
	`, e.ID, e.UserID, e.CaseID, e.JobType, e.JobKey, e.Delta, e.Reason, e.Error)
	if err != nil {
		return false, 0, err
	}
	if result.RowsAffected() == 0 {
		// Entry already applied by an earlier delivery; report the balance as-is.
		balance, err := r.balanceTx(ctx, tx, e.UserID)
		if err != nil {
			return false, 0, err
		}
		return false, balance, tx.Commit(ctx)
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		INSERT INTO user_balances (user_id, balance, updated_at)
		VALUES ($1, GREATEST($2, 0), now())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = GREATEST(user_balances.balance + $2, 0), updated_at = now()
		RETURNING balance
	`, e.UserID, e.Delta).Scan(&balance)
	if err != nil {
		return false, 0, err
	}
	return true, balance, tx.Commit(ctx)
}

// FindEntry returns the entry for (jobKey, reason), or nil if none exists.
func (r *Repository) FindEntry(ctx context.Context, jobKey, reason string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, case_id, job_type, job_key, delta, reason, error, created_at
		FROM ledger_entries WHERE job_key = $1 AND reason = $2
	`, jobKey, reason).Scan(&e.ID, &e.UserID, &e.CaseID, &e.JobType, &e.JobKey, &e.Delta, &e.Reason, &e.Error, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Balance reads the cached denormalized balance. A user with no balance row
// has zero credits.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT balance FROM user_balances WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (r *Repository) balanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance FROM user_balances WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// ListByUser returns a user's ledger entries, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, case_id, job_type, job_key, delta, reason, error, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.CaseID, &e.JobType, &e.JobKey, &e.Delta, &e.Reason, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
