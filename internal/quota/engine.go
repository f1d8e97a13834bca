package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/ledger"
	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/telemetry"
)

// Denial and informational codes surfaced to callers.
const (
	CodePlanRequired        = "PLAN_REQUIRED"
	CodeNeedsProcessingPack = "NEEDS_PROCESSING_PACK"
	CodeMonthlyLimit        = "MONTHLY_LIMIT"
	CodeCreditsConsumed     = "CREDITS_CONSUMED"
)

// Decision is the typed outcome of an admission check. Denial is an expected
// frequent outcome and is never an error.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Code      string `json:"code,omitempty"`
	Remaining int64  `json:"remaining,omitempty"`
	Balance   int64  `json:"balance,omitempty"`
}

// CheckRequest asks whether quantity more units of EventType may be
// consumed. JobType and JobKey identify the job attempt on whose behalf a
// prepaid credit may be drawn.
type CheckRequest struct {
	UserID    uuid.UUID
	CaseID    *uuid.UUID
	EventType string
	Quantity  int64
	JobType   string
	JobKey    string
}

// PlanResolver resolves a user's subscription entitlements. The payment
// processor sync behind it belongs to the billing collaborator.
type PlanResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (models.Plan, error)
}

// UsageStore persists and sums raw usage events.
type UsageStore interface {
	SumSince(ctx context.Context, userID uuid.UUID, eventType string, since time.Time) (int64, error)
	Insert(ctx context.Context, e *models.UsageEvent) error
}

// CreditDrawer is the slice of the ledger the engine needs for the credit
// layer.
type CreditDrawer interface {
	Consume(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, jobType, jobKey string, quantity int64) (ledger.ConsumeResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Engine layers three entitlement sources: comped status, prepaid credits,
// and tier day/month caps. Credits are drawn before tier quota so a
// purchased pack is never blocked by a tier cap while it has balance.
type Engine struct {
	plans   PlanResolver
	usage   UsageStore
	credits CreditDrawer
	now     func() time.Time
}

func NewEngine(plans PlanResolver, usage UsageStore, credits CreditDrawer) *Engine {
	return &Engine{plans: plans, usage: usage, credits: credits, now: time.Now}
}

// Check runs the admission test. It does not debit tier usage: the caller
// appends a usage event via Record after the work succeeds, so two
// concurrent checks near the limit can both pass. The only side effect is
// the credit draw on the prepaid path, which is idempotent on JobKey.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (Decision, error) {
	if req.Quantity <= 0 {
		return Decision{}, fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}

	plan, err := e.plans.Resolve(ctx, req.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve plan: %w", err)
	}
	if plan.Comped {
		return Decision{Allowed: true}, nil
	}

	if models.UsageCreditable(req.EventType) && req.JobKey != "" {
		balance, err := e.credits.GetBalance(ctx, req.UserID)
		if err != nil {
			return Decision{}, fmt.Errorf("read balance: %w", err)
		}
		if balance >= req.Quantity {
			res, err := e.credits.Consume(ctx, req.UserID, req.CaseID, req.JobType, req.JobKey, req.Quantity)
			if err != nil {
				return Decision{}, fmt.Errorf("consume credits: %w", err)
			}
			if res.Consumed {
				return Decision{Allowed: true, Code: CodeCreditsConsumed, Balance: res.Balance}, nil
			}
			// Balance moved under us; fall through to tier quota.
		}
	}

	limits, ok := tierLimits(plan, req.EventType)
	if !ok {
		telemetry.QuotaDenials.WithLabelValues(CodePlanRequired).Inc()
		return Decision{Code: CodePlanRequired}, nil
	}

	now := e.now().UTC()
	usedToday, err := e.usage.SumSince(ctx, req.UserID, req.EventType, startOfDay(now))
	if err != nil {
		return Decision{}, fmt.Errorf("sum daily usage: %w", err)
	}
	usedMonth, err := e.usage.SumSince(ctx, req.UserID, req.EventType, startOfMonth(now))
	if err != nil {
		return Decision{}, fmt.Errorf("sum monthly usage: %w", err)
	}

	remaining := min64(limits.Daily-usedToday, limits.Monthly-usedMonth)
	if remaining < 0 {
		remaining = 0
	}
	if req.Quantity > remaining {
		code := CodeMonthlyLimit
		if models.UsageCreditable(req.EventType) {
			code = CodeNeedsProcessingPack
		}
		telemetry.QuotaDenials.WithLabelValues(code).Inc()
		return Decision{Code: code, Remaining: remaining}, nil
	}
	return Decision{Allowed: true, Remaining: remaining - req.Quantity}, nil
}

// Record appends a raw usage event. Called after the gated work succeeds.
func (e *Engine) Record(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, eventType string, quantity int64, metadata map[string]any) error {
	return e.usage.Insert(ctx, &models.UsageEvent{
		ID:        uuid.New(),
		UserID:    userID,
		CaseID:    caseID,
		EventType: eventType,
		Quantity:  quantity,
		Metadata:  metadata,
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
