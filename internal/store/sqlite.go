package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Run operations ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	var finishedAt *string
	if run.FinishedAt != nil {
		v := run.FinishedAt.Format(time.RFC3339Nano)
		finishedAt = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, status, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, string(run.Status),
		run.StartedAt.Format(time.RFC3339Nano), finishedAt,
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run model.Run
	var status, startedAt string
	var finishedAt *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, status, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Pipeline, &status, &startedAt, &finishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*model.Run, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		var status, startedAt string
		var finishedAt *string

		if err := rows.Scan(&run.ID, &run.Pipeline, &status, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.Status = model.RunStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status model.RunStatus, finishedAt time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "status", status)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, finished_at=? WHERE id=?`,
		string(status), finishedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// --- Task operations ---

func (s *SQLiteStore) UpsertTask(ctx context.Context, rec model.TaskRecord) error {
	s.logger.Debug("sql", "op", "upsert", "table", "tasks", "id", rec.ID)

	var finishedAt *string
	if rec.FinishedAt != nil {
		v := rec.FinishedAt.Format(time.RFC3339Nano)
		finishedAt = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, run_id, stage, sample_id, attempt, status,
		 exit_code, diagnostic, work_dir, duration_ms, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 status=excluded.status, exit_code=excluded.exit_code,
		 diagnostic=excluded.diagnostic, duration_ms=excluded.duration_ms,
		 finished_at=excluded.finished_at`,
		rec.ID, rec.RunID, rec.Stage, rec.SampleID, rec.Attempt, string(rec.Status),
		rec.ExitCode, rec.Diagnostic, rec.WorkDir, rec.DurationMS,
		rec.StartedAt.Format(time.RFC3339Nano), finishedAt,
	)
	return err
}

func (s *SQLiteStore) ListTasksByRun(ctx context.Context, runID string) ([]model.TaskRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "tasks", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, sample_id, attempt, status,
		 exit_code, diagnostic, work_dir, duration_ms, started_at, finished_at
		 FROM tasks WHERE run_id = ? ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.TaskRecord
	for rows.Next() {
		var rec model.TaskRecord
		var status, startedAt string
		var finishedAt *string

		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Stage, &rec.SampleID,
			&rec.Attempt, &status, &rec.ExitCode, &rec.Diagnostic,
			&rec.WorkDir, &rec.DurationMS, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		rec.Status = model.TaskStatus(status)
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
			rec.FinishedAt = &t
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) RunSummary(ctx context.Context, runID string) ([]model.StageSummary, error) {
	s.logger.Debug("sql", "op", "summary", "table", "tasks", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT sample_id, stage, status, attempt
		 FROM tasks WHERE run_id = ? ORDER BY sample_id, stage, attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []model.StageSummary
	for rows.Next() {
		var row model.StageSummary
		var status string
		if err := rows.Scan(&row.SampleID, &row.Stage, &status, &row.Attempt); err != nil {
			return nil, err
		}
		row.Status = model.TaskStatus(status)
		summary = append(summary, row)
	}
	return summary, rows.Err()
}
