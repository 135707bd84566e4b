package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T, params map[string]any) *Runner {
	t.Helper()
	return NewRunner(NewArena(t.TempDir()), params, testLogger())
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_Success(t *testing.T) {
	inDir := t.TempDir()
	in := writeInput(t, inDir, "A.fastq.gz", "reads")

	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:    "trim",
		Input:   "reads",
		Script:  "cat ${files[0]} > ${sample.id}.trimmed.fastq.gz",
		Outputs: []pipeline.OutputGlob{{Glob: "*.trimmed.fastq.gz"}},
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A", Files: []string{in}}, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Task.Status != model.TaskSucceeded {
		t.Errorf("status = %s", res.Task.Status)
	}
	if res.Output.ID != "A" {
		t.Errorf("output id = %q, want A (identity must propagate)", res.Output.ID)
	}
	if len(res.Output.Files) != 1 || filepath.Base(res.Output.Files[0]) != "A.trimmed.fastq.gz" {
		t.Errorf("output files = %v", res.Output.Files)
	}
	data, err := os.ReadFile(res.Output.Files[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "reads" {
		t.Errorf("output content = %q", data)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:   "boom",
		Input:  "reads",
		Script: "echo broken pipe >&2; exit 3",
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "B"}, 1)
	var taskErr *model.TaskExecutionError
	if !errors.As(err, &taskErr) {
		t.Fatalf("want TaskExecutionError, got %v", err)
	}
	if taskErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", taskErr.ExitCode)
	}
	if !strings.Contains(taskErr.Stderr, "broken pipe") {
		t.Errorf("stderr tail = %q", taskErr.Stderr)
	}
	if res.Task.Status != model.TaskFailed {
		t.Errorf("status = %s", res.Task.Status)
	}
	// Workdir is left intact for diagnostics.
	if _, statErr := os.Stat(res.Task.WorkDir); statErr != nil {
		t.Errorf("workdir should survive failure: %v", statErr)
	}
}

func TestRun_UnmatchedRequiredGlob(t *testing.T) {
	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:    "silent",
		Input:   "reads",
		Script:  "true",
		Outputs: []pipeline.OutputGlob{{Glob: "*.fasta"}},
	}

	_, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "C"}, 1)
	var taskErr *model.TaskExecutionError
	if !errors.As(err, &taskErr) {
		t.Fatalf("want TaskExecutionError, got %v", err)
	}
	if !strings.Contains(taskErr.Reason, "*.fasta") {
		t.Errorf("Reason = %q, should name the glob", taskErr.Reason)
	}
}

func TestRun_OptionalGlobMayBeEmpty(t *testing.T) {
	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:   "opt",
		Input:  "reads",
		Script: "echo hi > kept.txt",
		Outputs: []pipeline.OutputGlob{
			{Glob: "kept.txt"},
			{Glob: "*.log", Optional: true},
		},
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "D"}, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Output.Files) != 1 {
		t.Errorf("output files = %v", res.Output.Files)
	}
}

func TestRun_ParamsAndResources(t *testing.T) {
	r := newTestRunner(t, map[string]any{"min_length": 1000})
	stage := &pipeline.StageSpec{
		Name:    "cfg",
		Input:   "reads",
		CPUs:    4,
		Script:  "echo min=${params.min_length} cpus=${task.cpus} > out.txt",
		Outputs: []pipeline.OutputGlob{{Glob: "out.txt"}},
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "E"}, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(res.Output.Files[0])
	if strings.TrimSpace(string(data)) != "min=1000 cpus=4" {
		t.Errorf("rendered script produced %q", data)
	}
}

func TestRun_Isolation(t *testing.T) {
	inDir := t.TempDir()
	inA := writeInput(t, inDir, "A.txt", "a")
	inB := writeInput(t, inDir, "B.txt", "b")

	r := newTestRunner(t, nil)
	// Each task writes a marker, then asserts the other's marker is
	// absent from its own working directory.
	stage := &pipeline.StageSpec{
		Name:    "iso",
		Input:   "reads",
		Script:  "test ! -e other.marker; echo x > ${sample.id}.marker",
		Outputs: []pipeline.OutputGlob{{Glob: "*.marker"}},
	}

	resA, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A", Files: []string{inA}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	resB, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "B", Files: []string{inB}}, 1)
	if err != nil {
		t.Fatal(err)
	}

	if resA.Task.WorkDir == resB.Task.WorkDir {
		t.Fatal("tasks shared a working directory")
	}
	if _, err := os.Stat(filepath.Join(resA.Task.WorkDir, "B.marker")); err == nil {
		t.Error("A's workdir contains B's output")
	}
}

func TestRun_StagedInputsAreLinks(t *testing.T) {
	inDir := t.TempDir()
	in := writeInput(t, inDir, "big.fastq.gz", "payload")

	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:    "link",
		Input:   "reads",
		Script:  "true",
		Outputs: []pipeline.OutputGlob{{Glob: "*", Optional: true}},
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A", Files: []string{in}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	staged := filepath.Join(res.Task.WorkDir, "big.fastq.gz")
	info, err := os.Lstat(staged)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("inputs should be materialized by reference, not copied")
	}
}

func TestRun_AttemptCollision(t *testing.T) {
	arena := NewArena(t.TempDir())
	r := NewRunner(arena, nil, testLogger())
	stage := &pipeline.StageSpec{Name: "s", Input: "c", Script: "true"}

	if _, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A"}, 1); err != nil {
		t.Fatal(err)
	}
	// Same attempt number must refuse to reuse the directory.
	_, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A"}, 1)
	if err == nil {
		t.Fatal("expected collision error for duplicate attempt")
	}
	// A new attempt gets a fresh directory.
	if _, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A"}, 2); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
}

func TestRun_BackgroundChildDoesNotBlockReturn(t *testing.T) {
	r := newTestRunner(t, nil)
	// The backgrounded sleep inherits the stderr pipe; Run must not
	// wait for it once the shell has exited cleanly.
	stage := &pipeline.StageSpec{
		Name:    "daemonish",
		Input:   "reads",
		Script:  "sleep 30 & echo done > out.txt",
		Outputs: []pipeline.OutputGlob{{Glob: "out.txt"}},
	}

	start := time.Now()
	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A"}, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Task.Status != model.TaskSucceeded {
		t.Errorf("status = %s", res.Task.Status)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Run blocked on orphaned child for %v", elapsed)
	}
}

func TestRun_InternalFilesNeverExported(t *testing.T) {
	r := newTestRunner(t, nil)
	stage := &pipeline.StageSpec{
		Name:    "all",
		Input:   "reads",
		Script:  "echo data > result.txt",
		Outputs: []pipeline.OutputGlob{{Glob: "*"}},
	}

	res, err := r.Run(context.Background(), "run1", stage, model.SampleTuple{ID: "A"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range res.Output.Files {
		if strings.HasPrefix(filepath.Base(f), ".command") {
			t.Errorf("bookkeeping file leaked into outputs: %s", f)
		}
	}
	if len(res.Output.Files) != 1 {
		t.Errorf("outputs = %v", res.Output.Files)
	}
}
