package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tempo tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cycles (
		id         TEXT PRIMARY KEY,
		time       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS instances (
		id                TEXT PRIMARY KEY,
		task_id           TEXT NOT NULL,
		cycle_id          TEXT NOT NULL,
		attempt           INTEGER NOT NULL DEFAULT 0,
		state             TEXT NOT NULL DEFAULT 'PENDING',
		queue             TEXT NOT NULL DEFAULT 'default',
		priority          INTEGER NOT NULL DEFAULT 0,
		reason            TEXT NOT NULL DEFAULT '',
		not_before        TEXT,
		kill_requested_at TEXT,
		created_at        TEXT NOT NULL,
		admitted_at       TEXT,
		started_at        TEXT,
		finished_at       TEXT,
		UNIQUE (task_id, cycle_id, attempt)
	)`,

	`CREATE TABLE IF NOT EXISTS trigger_marks (
		task_id  TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		fired_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_instances_state ON instances(state)`,
	`CREATE INDEX IF NOT EXISTS idx_instances_cycle_id ON instances(cycle_id)`,
	`CREATE INDEX IF NOT EXISTS idx_instances_task_cycle ON instances(task_id, cycle_id)`,
	// Compound index for per-queue capacity counting (state + queue)
	`CREATE INDEX IF NOT EXISTS idx_instances_state_queue ON instances(state, queue)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
