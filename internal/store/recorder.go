package store

import (
	"context"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
)

// Recorder adapts a Store to the scheduler's RunRecorder interface.
// Scheduler callbacks fire from task goroutines after the work is done,
// so they use a background context rather than the run's.
type Recorder struct {
	store Store
}

// NewRecorder wraps a Store for use by the scheduler.
func NewRecorder(st Store) *Recorder {
	return &Recorder{store: st}
}

func (r *Recorder) CreateRun(run model.Run) error {
	return r.store.CreateRun(context.Background(), &run)
}

func (r *Recorder) FinishRun(id string, status model.RunStatus, finishedAt time.Time) error {
	return r.store.FinishRun(context.Background(), id, status, finishedAt)
}

func (r *Recorder) RecordTask(rec model.TaskRecord) error {
	return r.store.UpsertTask(context.Background(), rec)
}
