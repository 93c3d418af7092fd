package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
		id             TEXT PRIMARY KEY,
		status         TEXT NOT NULL,
		urls           TEXT[] NOT NULL,
		total_urls     INTEGER NOT NULL,
		processed_urls INTEGER NOT NULL DEFAULT 0,
		failed_urls    INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		started_at     TIMESTAMPTZ,
		completed_at   TIMESTAMPTZ,
		error          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_pending
		ON scrape_jobs (created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS job_listings (
		job_id    TEXT NOT NULL REFERENCES scrape_jobs (id) ON DELETE CASCADE,
		position  INTEGER NOT NULL,
		url       TEXT NOT NULL,
		item_id   TEXT NOT NULL,
		price     TEXT NOT NULL,
		shipping  TEXT NOT NULL,
		inventory TEXT NOT NULL,
		PRIMARY KEY (job_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (next_retry_at) WHERE status IN ('pending', 'failed')`,
}

// Migrate creates the tables used by the job service if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
