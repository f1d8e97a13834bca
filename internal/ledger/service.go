package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/telemetry"
)

// ErrInvalidQuantity is returned when a consume or grant is attempted with a
// non-positive amount.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ConsumeResult is the typed outcome of a consume attempt. Insufficient
// balance is an expected outcome, not an error.
type ConsumeResult struct {
	Consumed       bool
	AlreadyApplied bool
	Balance        int64
}

// GrantResult reports whether a pack grant was applied or had already been
// applied by an earlier delivery of the same payment event.
type GrantResult struct {
	Granted bool
	Balance int64
}

// Store is the persistence contract the service needs. Implemented by
// Repository; tests substitute an in-memory version.
type Store interface {
	ApplyEntry(ctx context.Context, e *models.LedgerEntry) (inserted bool, balance int64, err error)
	FindEntry(ctx context.Context, jobKey, reason string) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Service interface {
	// Consume draws quantity credits for one logical job attempt. Calling
	// it again with the same jobKey is a no-op that reports success.
	Consume(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, jobType, jobKey string, quantity int64) (ConsumeResult, error)
	// RefundIfNeeded returns the credits a failed job consumed. Safe to
	// call any number of times; a no-op when nothing was consumed or the
	// refund was already applied.
	RefundIfNeeded(ctx context.Context, jobKey, cause string) error
	// AddPackCredits grants purchased credits, keyed by the payment
	// event's own id so re-delivery cannot double-grant.
	AddPackCredits(ctx context.Context, userID uuid.UUID, credits int64, eventKey string) (GrantResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) Consume(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, jobType, jobKey string, quantity int64) (ConsumeResult, error) {
	if quantity <= 0 {
		return ConsumeResult{}, ErrInvalidQuantity
	}

	existing, err := s.store.FindEntry(ctx, jobKey, models.LedgerReasonConsume)
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("lookup consume entry: %w", err)
	}
	if existing != nil {
		balance, err := s.store.Balance(ctx, userID)
		if err != nil {
			return ConsumeResult{}, err
		}
		return ConsumeResult{Consumed: true, AlreadyApplied: true, Balance: balance}, nil
	}

	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return ConsumeResult{}, err
	}
	if balance < quantity {
		return ConsumeResult{Consumed: false, Balance: balance}, nil
	}

	inserted, newBalance, err := s.store.ApplyEntry(ctx, &models.LedgerEntry{
		ID:      uuid.New(),
		UserID:  userID,
		CaseID:  caseID,
		JobType: jobType,
		JobKey:  jobKey,
		Delta:   -quantity,
		Reason:  models.LedgerReasonConsume,
	})
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("apply consume entry: %w", err)
	}
	if !inserted {
		// A concurrent delivery of the same attempt won the insert.
		return ConsumeResult{Consumed: true, AlreadyApplied: true, Balance: newBalance}, nil
	}
	telemetry.CreditsConsumed.Add(float64(quantity))
	return ConsumeResult{Consumed: true, Balance: newBalance}, nil
}

func (s *service) RefundIfNeeded(ctx context.Context, jobKey, cause string) error {
	consumed, err := s.store.FindEntry(ctx, jobKey, models.LedgerReasonConsume)
	if err != nil {
		return fmt.Errorf("lookup consume entry: %w", err)
	}
	if consumed == nil {
		return nil
	}
	refunded, err := s.store.FindEntry(ctx, jobKey, models.LedgerReasonRefundFailure)
	if err != nil {
		return fmt.Errorf("lookup refund entry: %w", err)
	}
	if refunded != nil {
		return nil
	}

	amount := -consumed.Delta
	if amount <= 0 {
		return nil
	}
	var errText *string
	if cause != "" {
		errText = &cause
	}
	inserted, _, err := s.store.ApplyEntry(ctx, &models.LedgerEntry{
		ID:      uuid.New(),
		UserID:  consumed.UserID,
		CaseID:  consumed.CaseID,
		JobType: consumed.JobType,
		JobKey:  jobKey,
		Delta:   amount,
		Reason:  models.LedgerReasonRefundFailure,
		Error:   errText,
	})
	if err != nil {
		return fmt.Errorf("apply refund entry: %w", err)
	}
	if inserted {
		telemetry.CreditsRefunded.Add(float64(amount))
	}
	return nil
}

func (s *service) AddPackCredits(ctx context.Context, userID uuid.UUID, credits int64, eventKey string) (GrantResult, error) {
	if credits <= 0 {
		return GrantResult{}, ErrInvalidQuantity
	}
	inserted, balance, err := s.store.ApplyEntry(ctx, &models.LedgerEntry{
		ID:      uuid.New(),
		UserID:  userID,
		JobType: "credit_pack",
		JobKey:  eventKey,
		Delta:   credits,
		Reason:  models.LedgerReasonPackPurchase,
	})
	if err != nil {
		return GrantResult{}, fmt.Errorf("apply pack grant: %w", err)
	}
	return GrantResult{Granted: inserted, Balance: balance}, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, userID)
}
