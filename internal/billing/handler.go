package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/ledger"
)

// PackPurchaseRequest is the confirmation the payment collaborator delivers
// after a processing-pack checkout completes. Delivery is at-least-once;
// EventID keys the grant so re-delivery cannot double-credit. Signature
// verification happens upstream of this service.
type PackPurchaseRequest struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
}

type Handler struct {
	ledger ledger.Service
	log    *slog.Logger
}

func NewHandler(ledgerSvc ledger.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: ledgerSvc, log: log}
}

func (h *Handler) ConfirmPackPurchase(w http.ResponseWriter, r *http.Request) {
	var req PackPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.EventID == "" || req.Credits <= 0 {
		http.Error(w, `{"error":"event_id and positive credits are required"}`, http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid user_id"}`, http.StatusBadRequest)
		return
	}

	grant, err := h.ledger.AddPackCredits(r.Context(), userID, req.Credits, req.EventID)
	if err != nil {
		h.log.Error("pack grant failed", "event_id", req.EventID, "error", err)
		http.Error(w, `{"error":"grant failed"}`, http.StatusInternalServerError)
		return
	}
	if !grant.Granted {
		h.log.Info("pack purchase re-delivered, already granted", "event_id", req.EventID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"granted": grant.Granted,
		"balance": grant.Balance,
	})
}
