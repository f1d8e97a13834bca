package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations run in order at startup. Each statement is idempotent so a
// restart can re-apply the list safely.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		job_type TEXT NOT NULL,
		job_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'queued',
		user_id UUID NOT NULL,
		case_id UUID,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		case_id UUID,
		job_type TEXT NOT NULL,
		job_key TEXT NOT NULL,
		delta BIGINT NOT NULL,
		reason TEXT NOT NULL,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_key, reason)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id UUID PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		case_id UUID,
		event_type TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_events_window ON usage_events (user_id, event_type, created_at)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id UUID PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'free',
		status TEXT NOT NULL DEFAULT 'active',
		comped BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// RunMigrations applies the schema statements in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %d: %w", i, err)
		}
	}
	return nil
}
