package models

import (
	"time"

	"github.com/google/uuid"
)

// Metered usage types.
const (
	UsageOCRPage     = "ocr_page"
	UsageAICall      = "ai_call"
	UsageUploadBytes = "upload_bytes"
)

// UsageCreditable reports whether a usage type can be paid for with prepaid
// pack credits instead of tier quota.
func UsageCreditable(eventType string) bool {
	return eventType == UsageOCRPage || eventType == UsageAICall
}

// UsageEvent is a raw append-only usage record. Events are never
// deduplicated; rolling-window totals are summed from them at check time.
type UsageEvent struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	CaseID    *uuid.UUID     `json:"case_id,omitempty"`
	EventType string         `json:"event_type"`
	Quantity  int64          `json:"quantity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
