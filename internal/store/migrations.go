package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		pipeline    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'running',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		run_id      TEXT NOT NULL,
		stage       TEXT NOT NULL,
		sample_id   TEXT NOT NULL,
		attempt     INTEGER NOT NULL DEFAULT 1,
		status      TEXT NOT NULL DEFAULT 'pending',
		exit_code   INTEGER,
		diagnostic  TEXT NOT NULL DEFAULT '',
		work_dir    TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_run_id ON tasks(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	// Compound index for the per-run summary query
	`CREATE INDEX IF NOT EXISTS idx_tasks_run_sample ON tasks(run_id, sample_id, stage)`,
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
