package model

import (
	"sort"
	"time"
)

// RunStatus is the overall state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one execution of a pipeline over a set of samples.
type Run struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StageSummary is one row of the per-sample/per-stage report: what
// happened to sample S at stage N.
type StageSummary struct {
	SampleID string     `json:"sample_id"`
	Stage    string     `json:"stage"`
	Status   TaskStatus `json:"status"`
	Attempt  int        `json:"attempt"`
}

// PublishEvent reports a failure to place a succeeded task's outputs
// into the output tree. Publish failures never change task status; they
// accumulate here instead.
type PublishEvent struct {
	TaskID   string `json:"task_id"`
	Stage    string `json:"stage"`
	SampleID string `json:"sample_id"`
	Error    string `json:"error"`
}

// RunResult is returned by the engine when a run finishes. It carries
// everything a harness needs: the final status, every task record, and
// any publish failures.
type RunResult struct {
	RunID         string         `json:"run_id"`
	Pipeline      string         `json:"pipeline"`
	Status        RunStatus      `json:"status"`
	Tasks         []TaskRecord   `json:"tasks"`
	PublishErrors []PublishEvent `json:"publish_errors,omitempty"`
}

// Failed reports whether the run as a whole failed: a required channel
// was empty or a task of a non-ignore stage failed.
func (r *RunResult) Failed() bool {
	return r.Status == RunFailed
}

// Summary collapses the task records into per-sample/stage rows,
// sorted by sample then stage for stable output.
func (r *RunResult) Summary() []StageSummary {
	rows := make([]StageSummary, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		rows = append(rows, StageSummary{
			SampleID: t.SampleID,
			Stage:    t.Stage,
			Status:   t.Status,
			Attempt:  t.Attempt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SampleID != rows[j].SampleID {
			return rows[i].SampleID < rows[j].SampleID
		}
		if rows[i].Stage != rows[j].Stage {
			return rows[i].Stage < rows[j].Stage
		}
		return rows[i].Attempt < rows[j].Attempt
	})
	return rows
}
