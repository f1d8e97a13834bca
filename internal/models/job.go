package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status lifecycle. Terminal states are complete and failed; only the
// runner coordination layer mutates status.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// Job types the platform processes for a case.
const (
	JobTypeOCRExtract = "ocr_extract"
	JobTypeAIAnalyze  = "ai_analyze"
	JobTypeDocDraft   = "doc_draft"
)

type Job struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Key       string     `json:"key"`
	Status    string     `json:"status"`
	UserID    uuid.UUID  `json:"user_id"`
	CaseID    *uuid.UUID `json:"case_id,omitempty"`
	Error     *string    `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
