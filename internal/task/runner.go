// Package task executes one stage for one sample: isolated working
// directory, symlinked inputs, rendered script, external process,
// declared-output verification. Working directories are never cleaned
// up on failure or abort; they are the diagnostics.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/expr"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
	"github.com/google/uuid"
)

const (
	scriptFile = ".command.sh"
	stdoutFile = ".command.out"
	stderrFile = ".command.err"

	// stderrTailLimit bounds the captured diagnostic payload.
	stderrTailLimit = 4096

	// pipeWaitDelay caps how long Run waits for stderr/stdout pipes held
	// open by background children after the shell itself has exited.
	pipeWaitDelay = 2 * time.Second
)

// Runner executes task instances.
type Runner struct {
	arena  *Arena
	eval   *expr.Evaluator
	params map[string]any
	logger *slog.Logger
}

// NewRunner creates a Runner. params is the resolved pipeline parameter
// map exposed to script templates.
func NewRunner(arena *Arena, params map[string]any, logger *slog.Logger) *Runner {
	return &Runner{
		arena:  arena,
		eval:   expr.New(),
		params: params,
		logger: logger.With("component", "task"),
	}
}

// Result is the outcome of one task execution. Task carries the final
// instance state; Output is the packaged tuple, valid only when the
// task succeeded.
type Result struct {
	Task   model.TaskInstance
	Output model.SampleTuple
}

// Run executes the stage's script for one sample in a fresh working
// directory. The returned error is a *model.TaskExecutionError for
// command or output-glob failures; the Result is populated either way
// so the caller can record the terminal state.
func (r *Runner) Run(ctx context.Context, runID string, stage *pipeline.StageSpec, sample model.SampleTuple, attempt int) (*Result, error) {
	now := time.Now()
	inst := model.TaskInstance{
		ID:        "task_" + uuid.New().String()[:8],
		RunID:     runID,
		Stage:     stage.Name,
		Sample:    sample.Clone(),
		Attempt:   attempt,
		Status:    model.TaskPending,
		StartedAt: &now,
	}
	res := &Result{Task: inst}

	workDir, err := r.arena.Dir(runID, stage.Name, sample.ID, attempt)
	if err != nil {
		return r.fail(res, 0, "", err.Error())
	}
	res.Task.WorkDir = workDir

	staged, err := stageInputs(sample.Files, workDir)
	if err != nil {
		return r.fail(res, 0, "", fmt.Sprintf("stage inputs: %v", err))
	}

	script, err := r.renderScript(stage, sample.ID, staged)
	if err != nil {
		return r.fail(res, 0, "", fmt.Sprintf("render script: %v", err))
	}
	if err := os.WriteFile(filepath.Join(workDir, scriptFile), []byte(script), 0o755); err != nil {
		return r.fail(res, 0, "", fmt.Sprintf("write script: %v", err))
	}

	res.Task.Status = model.TaskRunning
	r.logger.Info("task started",
		"stage", stage.Name, "sample", sample.ID, "attempt", attempt, "cpus", stage.Cores())

	exitCode, tail, runErr := r.execute(ctx, workDir, stage)
	res.Task.ExitCode = &exitCode

	if runErr != nil {
		return r.fail(res, exitCode, tail, "")
	}

	outputs, missing := collectOutputs(workDir, stage.Outputs)
	if missing != "" {
		return r.fail(res, exitCode, tail, missing)
	}

	finished := time.Now()
	res.Task.Status = model.TaskSucceeded
	res.Task.FinishedAt = &finished
	res.Output = sample.WithFiles(outputs)
	r.logger.Info("task succeeded",
		"stage", stage.Name, "sample", sample.ID, "outputs", len(outputs),
		"duration", finished.Sub(now).Round(time.Millisecond))
	return res, nil
}

// fail marks the instance Failed and wraps the diagnostics in a
// TaskExecutionError.
func (r *Runner) fail(res *Result, exitCode int, stderrTail, reason string) (*Result, error) {
	finished := time.Now()
	res.Task.Status = model.TaskFailed
	res.Task.FinishedAt = &finished

	taskErr := &model.TaskExecutionError{
		Stage:    res.Task.Stage,
		SampleID: res.Task.Sample.ID,
		ExitCode: exitCode,
		Stderr:   stderrTail,
		Reason:   reason,
	}
	res.Task.Diagnostic = taskErr.Error()
	r.logger.Error("task failed",
		"stage", res.Task.Stage, "sample", res.Task.Sample.ID, "error", taskErr)
	return res, taskErr
}

// renderScript interpolates the stage's script template with the
// sample, staged file paths, resource directives, and params.
func (r *Runner) renderScript(stage *pipeline.StageSpec, sampleID string, staged []string) (string, error) {
	ctx := expr.NewContext().
		WithParams(r.params).
		WithSample(sampleID, staged).
		WithTask(stage.Cores(), stage.Env)
	return r.eval.Render(stage.Script, ctx)
}

// execute runs the rendered script. When the stage names a conda
// environment the command is wrapped in `conda run`. The script runs
// with the working directory as cwd; stdout and stderr are captured
// to files, stderr additionally to a bounded in-memory tail.
//
// The script runs in its own process group so cancellation kills the
// whole tree, not just the shell. WaitDelay bounds the wait on the
// stderr pipe: a background child that inherits it must not keep Run
// blocked after the shell has exited or the group has been killed.
func (r *Runner) execute(ctx context.Context, workDir string, stage *pipeline.StageSpec) (exitCode int, stderrTail string, err error) {
	argv := []string{"/bin/sh", "-e", scriptFile}
	if stage.Env != "" {
		argv = append([]string{"conda", "run", "-n", stage.Env}, argv...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = pipeWaitDelay

	stdout, err := os.Create(filepath.Join(workDir, stdoutFile))
	if err != nil {
		return 0, "", fmt.Errorf("create stdout file: %w", err)
	}
	defer stdout.Close()
	cmd.Stdout = stdout

	stderr, err := os.Create(filepath.Join(workDir, stderrFile))
	if err != nil {
		return 0, "", fmt.Errorf("create stderr file: %w", err)
	}
	defer stderr.Close()
	tail := &tailWriter{limit: stderrTailLimit}
	cmd.Stderr = io.MultiWriter(stderr, tail)

	runErr := cmd.Run()
	if runErr != nil {
		// ErrWaitDelay means the shell exited cleanly but a background
		// child still held the pipes when the delay expired. The task
		// itself succeeded; the straggler is already outside its trust.
		if errors.Is(runErr, exec.ErrWaitDelay) {
			return 0, tail.String(), nil
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return exitErr.ExitCode(), tail.String(), runErr
		}
		return -1, tail.String(), runErr
	}
	return 0, tail.String(), nil
}

// stageInputs materializes the sample's files into the working
// directory by symlink (copy would be prohibitive for read sets).
// Basenames must be unique within a tuple.
func stageInputs(files []string, workDir string) ([]string, error) {
	staged := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(abs)
		if seen[base] {
			return nil, fmt.Errorf("duplicate input basename %q", base)
		}
		seen[base] = true

		dest := filepath.Join(workDir, base)
		if err := os.Symlink(abs, dest); err != nil {
			return nil, fmt.Errorf("link input %s: %w", base, err)
		}
		staged = append(staged, dest)
	}
	return staged, nil
}

// collectOutputs resolves the declared output globs against the working
// directory. Matches accumulate in declared-glob order, sorted within
// each glob. A required glob with no matches returns a non-empty
// missing description; optional globs may match nothing.
func collectOutputs(workDir string, globs []pipeline.OutputGlob) (files []string, missing string) {
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(workDir, g.Glob))
		if err != nil {
			// Patterns are validated at graph build; an error here means
			// the validator and Glob disagree.
			return nil, fmt.Sprintf("output glob %q: %v", g.Glob, err)
		}
		// The script and staging machinery leave bookkeeping files in
		// the workdir; never let a broad glob export them.
		matches = dropInternal(matches)
		if len(matches) == 0 && !g.Optional {
			return nil, fmt.Sprintf("required output glob %q matched no files", g.Glob)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, ""
}

func dropInternal(matches []string) []string {
	out := matches[:0]
	for _, m := range matches {
		switch filepath.Base(m) {
		case scriptFile, stdoutFile, stderrFile:
			continue
		}
		out = append(out, m)
	}
	return out
}

// tailWriter keeps the last limit bytes written through it.
type tailWriter struct {
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
