package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/alerts"
	"github.com/caseflow/backend/internal/ledger"
	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/runner"
)

// LedgerReader lists ledger entries for the account view.
type LedgerReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Handler serves the read-only operational endpoints: runner state, credit
// balance, and ledger history.
type Handler struct {
	runner           *runner.Runner
	ledgerSvc        ledger.Service
	entries          LedgerReader
	alerts           *alerts.Dispatcher
	backlogThreshold int
	log              *slog.Logger
}

func NewHandler(r *runner.Runner, ledgerSvc ledger.Service, entries LedgerReader, dispatcher *alerts.Dispatcher, backlogThreshold int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		runner:           r,
		ledgerSvc:        ledgerSvc,
		entries:          entries,
		alerts:           dispatcher,
		backlogThreshold: backlogThreshold,
		log:              log,
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing X-User-ID header")
	}
	return uuid.Parse(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.runner.Stats()
	// Piggyback the backlog threshold check on reads of runner state.
	h.alerts.CheckBacklog(r.Context(), stats.QueueDepth, h.backlogThreshold)
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	balance, err := h.ledgerSvc.GetBalance(r.Context(), userID)
	if err != nil {
		h.log.Error("get balance failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GET /api/v1/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.entries.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list credit ledger failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
