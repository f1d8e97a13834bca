package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry reasons. The (job_key, reason) pair is unique, which is what
// makes retried consumes and re-delivered purchase confirmations collapse
// into a single entry.
const (
	LedgerReasonConsume       = "consume"
	LedgerReasonRefundFailure = "refund_failure"
	LedgerReasonPackPurchase  = "pack_purchase"
)

// LedgerEntry is an immutable, append-only balance-affecting record.
// A user's balance is reconstructable as the sum of its deltas.
type LedgerEntry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	CaseID    *uuid.UUID `json:"case_id,omitempty"`
	JobType   string     `json:"job_type"`
	JobKey    string     `json:"job_key"`
	Delta     int64      `json:"delta"`
	Reason    string     `json:"reason"`
	Error     *string    `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
