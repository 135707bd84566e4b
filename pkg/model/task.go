package model

import "time"

// TaskStatus is the lifecycle state of a task instance.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final. Terminal states are
// immutable: a succeeded or failed task never transitions again.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskInstance is one concrete execution of a stage for one sample,
// isolated in its own working directory.
type TaskInstance struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Stage      string      `json:"stage"`
	Sample     SampleTuple `json:"sample"`
	Attempt    int         `json:"attempt"`
	WorkDir    string      `json:"work_dir"`
	Status     TaskStatus  `json:"status"`
	ExitCode   *int        `json:"exit_code,omitempty"`
	Diagnostic string      `json:"diagnostic,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// TaskRecord is the persisted form of a completed or in-flight task,
// written to the run store for summaries and the monitor API.
type TaskRecord struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Stage      string     `json:"stage"`
	SampleID   string     `json:"sample_id"`
	Attempt    int        `json:"attempt"`
	Status     TaskStatus `json:"status"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Diagnostic string     `json:"diagnostic,omitempty"`
	WorkDir    string     `json:"work_dir,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Record converts a task instance into its persisted form.
func (t *TaskInstance) Record() TaskRecord {
	rec := TaskRecord{
		ID:         t.ID,
		RunID:      t.RunID,
		Stage:      t.Stage,
		SampleID:   t.Sample.ID,
		Attempt:    t.Attempt,
		Status:     t.Status,
		ExitCode:   t.ExitCode,
		Diagnostic: t.Diagnostic,
		WorkDir:    t.WorkDir,
		FinishedAt: t.FinishedAt,
	}
	if t.StartedAt != nil {
		rec.StartedAt = *t.StartedAt
		if t.FinishedAt != nil {
			rec.DurationMS = t.FinishedAt.Sub(*t.StartedAt).Milliseconds()
		}
	}
	return rec
}
