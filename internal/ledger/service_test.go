package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Store. Mirrors the repository's conditional-insert semantics so
// the service logic is tested without a database.
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	entries  []*models.LedgerEntry
	balances map[uuid.UUID]int64
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[uuid.UUID]int64)}
}

func (m *memStore) ApplyEntry(_ context.Context, e *models.LedgerEntry) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.JobKey == e.JobKey && existing.Reason == e.Reason {
			return false, m.balances[e.UserID], nil
		}
	}
	cp := *e
	m.entries = append(m.entries, &cp)
	next := m.balances[e.UserID] + e.Delta
	if next < 0 {
		next = 0
	}
	m.balances[e.UserID] = next
	return true, next, nil
}

func (m *memStore) FindEntry(_ context.Context, jobKey, reason string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.JobKey == jobKey && e.Reason == reason {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *memStore) byReason(reason string) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) seed(userID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

// sumDeltas reconstructs a user's balance from the append-only entries.
func (m *memStore) sumDeltas(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum
}

// ---------------------------------------------------------------------------
// Consume
// ---------------------------------------------------------------------------

func TestConsumeIdempotent(t *testing.T) {
	user := uuid.New()
	store := newMemStore()
	store.seed(user, 10)
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.Consume(ctx, user, nil, models.JobTypeAIAnalyze, "job-1", 2)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !first.Consumed || first.AlreadyApplied {
		t.Errorf("first consume: got %+v, want consumed fresh", first)
	}
	if first.Balance != 8 {
		t.Errorf("balance after first consume: got %d, want 8", first.Balance)
	}

	// Same jobKey again: must report success without a second deduction.
	second, err := svc.Consume(ctx, user, nil, models.JobTypeAIAnalyze, "job-1", 2)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if !second.Consumed || !second.AlreadyApplied {
		t.Errorf("second consume: got %+v, want already-applied success", second)
	}
	if second.Balance != 8 {
		t.Errorf("balance after duplicate consume: got %d, want 8", second.Balance)
	}
	if rows := store.byReason(models.LedgerReasonConsume); len(rows) != 1 {
		t.Errorf("consume rows: got %d, want 1", len(rows))
	}
}

func TestConsumeInsufficientBalance(t *testing.T) {
	user := uuid.New()
	store := newMemStore()
	store.seed(user, 1)
	svc := NewService(store)

	res, err := svc.Consume(context.Background(), user, nil, models.JobTypeOCRExtract, "job-2", 5)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if res.Consumed {
		t.Error("consume should be denied on insufficient balance")
	}
	if res.Balance != 1 {
		t.Errorf("balance: got %d, want 1 (untouched)", res.Balance)
	}
	if len(store.byReason(models.LedgerReasonConsume)) != 0 {
		t.Error("denied consume must leave no ledger entry")
	}
}

func TestConsumeRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newMemStore())
	if _, err := svc.Consume(context.Background(), uuid.New(), nil, models.JobTypeAIAnalyze, "job-3", 0); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// RefundIfNeeded
// ---------------------------------------------------------------------------

func TestRefundAppliedExactlyOnce(t *testing.T) {
	user := uuid.New()
	store := newMemStore()
	store.seed(user, 5)
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Consume(ctx, user, nil, models.JobTypeAIAnalyze, "job-4", 3); err != nil {
		t.Fatalf("consume: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := svc.RefundIfNeeded(ctx, "job-4", "upstream timeout"); err != nil {
			t.Fatalf("refund attempt %d: %v", i, err)
		}
	}

	refunds := store.byReason(models.LedgerReasonRefundFailure)
	if len(refunds) != 1 {
		t.Fatalf("refund rows: got %d, want 1", len(refunds))
	}
	if refunds[0].Delta != 3 {
		t.Errorf("refund delta: got %d, want 3", refunds[0].Delta)
	}
	if refunds[0].Error == nil || *refunds[0].Error != "upstream timeout" {
		t.Error("refund entry should carry the failure cause")
	}
	if bal, _ := store.Balance(ctx, user); bal != 5 {
		t.Errorf("balance after refund: got %d, want 5", bal)
	}
}

func TestRefundWithoutConsumeIsNoOp(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	if err := svc.RefundIfNeeded(context.Background(), "never-consumed", "boom"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(store.entries) != 0 {
		t.Error("refund without prior consume must not write anything")
	}
}

// ---------------------------------------------------------------------------
// AddPackCredits
// ---------------------------------------------------------------------------

func TestAddPackCreditsIdempotentOnEventKey(t *testing.T) {
	user := uuid.New()
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.AddPackCredits(ctx, user, 100, "evt_123")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !first.Granted || first.Balance != 100 {
		t.Errorf("first grant: got %+v, want granted balance 100", first)
	}

	// Re-delivered payment confirmation.
	second, err := svc.AddPackCredits(ctx, user, 100, "evt_123")
	if err != nil {
		t.Fatalf("re-delivered grant: %v", err)
	}
	if second.Granted {
		t.Error("re-delivered grant must not apply again")
	}
	if second.Balance != 100 {
		t.Errorf("balance after re-delivery: got %d, want 100", second.Balance)
	}
}

// ---------------------------------------------------------------------------
// Ledger integrity: cached balance equals the sum of deltas.
// ---------------------------------------------------------------------------

func TestBalanceMatchesSumOfDeltas(t *testing.T) {
	user := uuid.New()
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.AddPackCredits(ctx, user, 50, "evt_a"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, user, nil, models.JobTypeOCRExtract, "job-a", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, user, nil, models.JobTypeAIAnalyze, "job-b", 5); err != nil {
		t.Fatal(err)
	}
	if err := svc.RefundIfNeeded(ctx, "job-b", "model unavailable"); err != nil {
		t.Fatal(err)
	}

	balance, err := svc.GetBalance(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if want := store.sumDeltas(user); balance != want {
		t.Errorf("cached balance %d diverged from entry sum %d", balance, want)
	}
	if balance != 40 {
		t.Errorf("balance: got %d, want 40", balance)
	}
}
