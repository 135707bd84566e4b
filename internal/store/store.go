// Package store persists runs and task records so they outlive the
// process and can be inspected through the CLI and the monitor API.
package store

import (
	"context"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
)

// Store defines the persistence layer for runs and tasks.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context) ([]*model.Run, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, finishedAt time.Time) error

	// Task operations. UpsertTask is idempotent on task id: re-recording
	// a task replaces its row.
	UpsertTask(ctx context.Context, rec model.TaskRecord) error
	ListTasksByRun(ctx context.Context, runID string) ([]model.TaskRecord, error)
	RunSummary(ctx context.Context, runID string) ([]model.StageSummary, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
