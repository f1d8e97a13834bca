package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseflow/backend/internal/models"
)

// Resolver reads resolved subscription state. The payment-processor sync
// that maintains the subscriptions table belongs to an external collaborator.
type Resolver struct {
	pool *pgxpool.Pool
}

func NewResolver(pool *pgxpool.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// Resolve returns the user's plan. Users without a subscription row are on
// the free tier.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (models.Plan, error) {
	var p models.Plan
	err := r.pool.QueryRow(ctx, `
		SELECT tier, status, comped FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&p.Tier, &p.Status, &p.Comped)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Plan{Tier: models.TierFree, Status: models.PlanStatusActive}, nil
	}
	return p, err
}
