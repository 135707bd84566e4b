package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun() *model.Run {
	return &model.Run{
		ID:        "run_test0001",
		Pipeline:  "assembly",
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func sampleTask(runID, stage, sampleID string, attempt int) model.TaskRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return model.TaskRecord{
		ID:        "task_" + stage + "_" + sampleID,
		RunID:     runID,
		Stage:     stage,
		SampleID:  sampleID,
		Attempt:   attempt,
		Status:    model.TaskRunning,
		StartedAt: now,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()

	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil run")
	}
	if got.ID != run.ID || got.Pipeline != run.Pipeline || got.Status != model.RunRunning {
		t.Errorf("got %+v, want %+v", got, run)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, run.StartedAt)
	}
	if got.FinishedAt != nil {
		t.Errorf("finished_at should be nil for a running run")
	}
}

func TestGetRun_Missing(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("missing run should be nil, got %+v", got)
	}
}

func TestFinishRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	finished := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.FinishRun(ctx, run.ID, model.RunSucceeded, finished); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunSucceeded {
		t.Errorf("status = %s", got.Status)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, finished)
	}
}

func TestFinishRun_Missing(t *testing.T) {
	st := testStore(t)
	err := st.FinishRun(context.Background(), "run_nope", model.RunFailed, time.Now())
	if err == nil {
		t.Fatal("finishing an unknown run should error")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	older := sampleRun()
	older.ID = "run_older"
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := sampleRun()
	newer.ID = "run_newer"

	if err := st.CreateRun(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateRun(ctx, newer); err != nil {
		t.Fatal(err)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run_newer" || runs[1].ID != "run_older" {
		t.Errorf("order = [%s, %s]", runs[0].ID, runs[1].ID)
	}
}

func TestUpsertTask_ReplacesOnConflict(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	rec := sampleTask(run.ID, "flye", "A", 1)
	if err := st.UpsertTask(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	finished := time.Now().UTC().Truncate(time.Millisecond)
	code := 0
	rec.Status = model.TaskSucceeded
	rec.ExitCode = &code
	rec.FinishedAt = &finished
	rec.DurationMS = 1234
	if err := st.UpsertTask(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	recs, err := st.ListTasksByRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.Status != model.TaskSucceeded {
		t.Errorf("status = %s", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit_code = %v", got.ExitCode)
	}
	if got.DurationMS != 1234 {
		t.Errorf("duration_ms = %d", got.DurationMS)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v", got.FinishedAt)
	}
}

func TestRunSummary_SortedBySampleThenStage(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	for _, rec := range []model.TaskRecord{
		sampleTask(run.ID, "medaka", "B", 1),
		sampleTask(run.ID, "flye", "B", 1),
		sampleTask(run.ID, "flye", "A", 1),
	} {
		if err := st.UpsertTask(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := st.RunSummary(ctx, run.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 3 {
		t.Fatalf("got %d rows, want 3", len(summary))
	}
	wantOrder := []string{"A/flye", "B/flye", "B/medaka"}
	for i, row := range summary {
		got := row.SampleID + "/" + row.Stage
		if got != wantOrder[i] {
			t.Errorf("row %d = %s, want %s", i, got, wantOrder[i])
		}
	}
}

func TestRecorder_RoundTrip(t *testing.T) {
	st := testStore(t)
	rec := NewRecorder(st)

	run := model.Run{ID: "run_rec", Pipeline: "trim", Status: model.RunRunning, StartedAt: time.Now().UTC()}
	if err := rec.CreateRun(run); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := rec.RecordTask(sampleTask(run.ID, "fastp", "A", 1)); err != nil {
		t.Fatalf("record task: %v", err)
	}
	if err := rec.FinishRun(run.ID, model.RunSucceeded, time.Now().UTC()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := st.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunSucceeded {
		t.Errorf("status = %s", got.Status)
	}
}
