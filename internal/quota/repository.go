package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseflow/backend/internal/models"
)

// Repository persists usage events. Implements UsageStore.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) SumSince(ctx context.Context, userID uuid.UUID, eventType string, since time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM usage_events
		WHERE user_id = $1 AND event_type = $2 AND created_at >= $3
	`, userID, eventType, since).Scan(&total)
	return total, err
}

func (r *Repository) Insert(ctx context.Context, e *models.UsageEvent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO usage_events (id, user_id, case_id, event_type, quantity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.CaseID, e.EventType, e.Quantity, e.Metadata).Scan(&e.CreatedAt)
}
