package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/quota"
)

// Request/response structs use snake_case JSON.

type SubmitJobRequest struct {
	Type     string `json:"type"`
	Key      string `json:"key"`
	CaseID   string `json:"case_id,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

type JobResponse struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Key    string  `json:"key"`
	Status string  `json:"status"`
	CaseID *string `json:"case_id,omitempty"`
	Error  *string `json:"error,omitempty"`
}

type SubmitJobResponse struct {
	Job      *JobResponse   `json:"job,omitempty"`
	Decision quota.Decision `json:"decision"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// userIDFromRequest reads the identity the fronting auth layer injected.
// Authentication itself lives outside this service.
func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, errors.New("missing X-User-ID header")
	}
	return uuid.Parse(raw)
}

func toJobResponse(j *models.Job) *JobResponse {
	resp := &JobResponse{
		ID:     j.ID.String(),
		Type:   j.Type,
		Key:    j.Key,
		Status: j.Status,
		Error:  j.Error,
	}
	if j.CaseID != nil {
		s := j.CaseID.String()
		resp.CaseID = &s
	}
	return resp
}

func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Type == "" || req.Key == "" {
		http.Error(w, `{"error":"type and key are required"}`, http.StatusBadRequest)
		return
	}
	var caseID *uuid.UUID
	if req.CaseID != "" {
		id, err := uuid.Parse(req.CaseID)
		if err != nil {
			http.Error(w, `{"error":"invalid case_id"}`, http.StatusBadRequest)
			return
		}
		caseID = &id
	}

	job, decision, err := h.svc.Submit(r.Context(), SubmitRequest{
		UserID:   userID,
		CaseID:   caseID,
		Type:     req.Type,
		Key:      req.Key,
		Quantity: req.Quantity,
	})
	if errors.Is(err, ErrUnknownJobType) {
		http.Error(w, `{"error":"unknown job type"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("submit job failed", "error", err)
		http.Error(w, `{"error":"submit failed"}`, http.StatusInternalServerError)
		return
	}

	resp := SubmitJobResponse{Decision: decision}
	status := http.StatusAccepted
	if job != nil {
		resp.Job = toJobResponse(job)
	}
	if !decision.Allowed {
		// Denial is an expected outcome; the code tells the client what to do.
		status = http.StatusPaymentRequired
		if decision.Code == quota.CodeMonthlyLimit {
			status = http.StatusTooManyRequests
		}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if _, err := userIDFromRequest(r); err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByOwner(r.Context(), userID)
	if err != nil {
		h.log.Error("list jobs failed", "error", err)
		http.Error(w, `{"error":"list failed"}`, http.StatusInternalServerError)
		return
	}
	out := make([]*JobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if _, err := userIDFromRequest(r); err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	cancelled, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.log.Error("cancel job failed", "job_id", id, "error", err)
		http.Error(w, `{"error":"cancel failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
