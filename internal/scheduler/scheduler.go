// Package scheduler runs a validated pipeline: it materializes source
// channels, wires stage outputs to downstream inputs per the DAG, fans
// tasks out per sample, and bounds concurrency by a global CPU budget.
// Each sample progresses independently; a failed sample's branch stops
// while siblings continue.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/parser"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/publish"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/task"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
	"github.com/google/uuid"
)

// Config holds engine configuration for one run.
type Config struct {
	// CPUBudget bounds the summed cpus of concurrently running tasks.
	// Defaults to runtime.NumCPU().
	CPUBudget int
	// OutDir is the root of the published output tree.
	OutDir string
	// WorkDir is the root of the task working-directory arena.
	WorkDir string
	// Params overrides the pipeline document's params.
	Params map[string]any
}

// RunRecorder persists run and task state. Implemented by the store;
// may be nil when no persistence is wanted.
type RunRecorder interface {
	CreateRun(run model.Run) error
	FinishRun(id string, status model.RunStatus, finishedAt time.Time) error
	RecordTask(rec model.TaskRecord) error
}

// Engine executes one pipeline.
type Engine struct {
	pipeline  *pipeline.Pipeline
	dag       *parser.DAGResult
	cfg       Config
	params    map[string]any
	runner    *task.Runner
	publisher *publish.Publisher
	recorder  RunRecorder
	sem       *Semaphore
	logger    *slog.Logger

	mu        sync.Mutex
	failed    bool
	records   []model.TaskRecord
	pubEvents []model.PublishEvent
}

// New validates the pipeline, builds its DAG, and prepares an engine.
// All ConfigurationErrors surface here, before any task dispatch.
func New(p *pipeline.Pipeline, cfg Config, recorder RunRecorder, logger *slog.Logger) (*Engine, error) {
	if err := parser.NewValidator(logger).Validate(p); err != nil {
		return nil, err
	}
	dag, err := parser.BuildDAG(p)
	if err != nil {
		return nil, err
	}

	if cfg.CPUBudget <= 0 {
		cfg.CPUBudget = runtime.NumCPU()
	}

	params := make(map[string]any, len(p.Params)+len(cfg.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	for k, v := range cfg.Params {
		params[k] = v
	}

	return &Engine{
		pipeline:  p,
		dag:       dag,
		cfg:       cfg,
		params:    params,
		runner:    task.NewRunner(task.NewArena(cfg.WorkDir), params, logger),
		publisher: publish.New(cfg.OutDir, logger),
		recorder:  recorder,
		sem:       NewSemaphore(cfg.CPUBudget),
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// Run executes the pipeline to completion (or abort). The returned
// RunResult carries every task record; its status is failed when a
// required channel was empty or any non-ignore task failed. In-flight
// tasks receive cancellation on abort and their working directories
// are left intact.
func (e *Engine) Run(ctx context.Context) (*model.RunResult, error) {
	runID := "run_" + uuid.New().String()[:8]
	started := time.Now()
	result := &model.RunResult{RunID: runID, Pipeline: e.pipeline.Name}

	e.createRun(model.Run{ID: runID, Pipeline: e.pipeline.Name, Status: model.RunRunning, StartedAt: started})
	e.logger.Info("run started", "run", runID, "pipeline", e.pipeline.Name,
		"stages", len(e.pipeline.Stages), "cpu_budget", e.cfg.CPUBudget)

	sources, err := buildSources(e.pipeline, e.params, e.logger)
	if err != nil {
		e.finishRun(runID, model.RunFailed)
		result.Status = model.RunFailed
		return result, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One input stream per stage, closed by its single producer: a
	// source feeder, or the upstream stage once its tasks drain.
	inputs := make(map[string]chan model.SampleTuple, len(e.pipeline.Stages))
	for i := range e.pipeline.Stages {
		inputs[e.pipeline.Stages[i].Name] = make(chan model.SampleTuple, 16)
	}

	var stages sync.WaitGroup
	for i := range e.pipeline.Stages {
		stage := &e.pipeline.Stages[i]
		var outs []chan model.SampleTuple
		for _, consumer := range e.dag.Consumers[stage.Name] {
			outs = append(outs, inputs[consumer])
		}
		stages.Add(1)
		go e.runStage(ctx, runID, stage, inputs[stage.Name], outs, &stages)
	}

	// Feed stages whose input is a declared channel.
	for i := range e.pipeline.Stages {
		stage := &e.pipeline.Stages[i]
		if pipeline.IsStageRef(stage.Input) {
			continue
		}
		in := inputs[stage.Name]
		tuples := sources[stage.Input].Tuples()
		go func() {
			defer close(in)
			for _, t := range tuples {
				select {
				case in <- t:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	stages.Wait()

	e.mu.Lock()
	failed := e.failed
	result.Tasks = append(result.Tasks, e.records...)
	result.PublishErrors = append(result.PublishErrors, e.pubEvents...)
	e.mu.Unlock()

	status := model.RunSucceeded
	if failed || ctx.Err() != nil {
		status = model.RunFailed
	}
	result.Status = status
	e.finishRun(runID, status)
	e.logger.Info("run finished", "run", runID, "status", string(status),
		"tasks", len(result.Tasks), "duration", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// runStage consumes the stage's input stream in order, dispatching one
// task per tuple under the CPU budget. Tuples sharing an id (concat
// collisions) are executed in arrival order, never concurrently, so
// publishes stay deterministic. When the input closes and all tasks
// drain, the downstream streams close.
func (e *Engine) runStage(ctx context.Context, runID string, stage *pipeline.StageSpec,
	in <-chan model.SampleTuple, outs []chan model.SampleTuple, stages *sync.WaitGroup) {
	defer stages.Done()
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()

	var tasks sync.WaitGroup
	defer tasks.Wait()

	attempts := make(map[string]int)
	lastOfID := make(map[string]chan struct{})

	for tuple := range in {
		if ctx.Err() != nil {
			continue // drain without dispatching
		}

		attempts[tuple.ID]++
		attempt := attempts[tuple.ID]
		weight := e.sem.Clamp(stage.Cores())

		if !e.sem.Acquire(ctx, weight) {
			continue // cancelled; keep draining
		}

		prev := lastOfID[tuple.ID]
		done := make(chan struct{})
		lastOfID[tuple.ID] = done

		tasks.Add(1)
		go func(tuple model.SampleTuple, attempt int, prev, done chan struct{}) {
			defer tasks.Done()
			defer e.sem.Release(weight)
			defer close(done)
			if prev != nil {
				<-prev
			}
			e.runTask(ctx, runID, stage, tuple, attempt, outs)
		}(tuple, attempt, prev, done)
	}
}

// runTask executes one task, records it, publishes on success, and
// forwards the output tuple to every consumer. Failures never reach
// downstream: the sample's branch simply ends here.
func (e *Engine) runTask(ctx context.Context, runID string, stage *pipeline.StageSpec,
	tuple model.SampleTuple, attempt int, outs []chan model.SampleTuple) {

	res, err := e.runner.Run(ctx, runID, stage, tuple, attempt)
	rec := res.Task.Record()

	if err != nil {
		var taskErr *model.TaskExecutionError
		if errors.As(err, &taskErr) && stage.Policy() == pipeline.IgnorePolicy {
			e.logger.Warn("task failed; sample dropped from downstream",
				"stage", stage.Name, "sample", tuple.ID)
			e.addRecord(rec)
			return
		}
		e.markFailed()
		e.addRecord(rec)
		return
	}

	if pubErr := e.publisher.Publish(stage, res.Output); pubErr != nil {
		// Publish errors are events, not task failures; the task record
		// stays untouched.
		e.logger.Error("publish error", "stage", stage.Name, "sample", tuple.ID, "error", pubErr)
		e.addPublishEvent(model.PublishEvent{
			TaskID:   rec.ID,
			Stage:    stage.Name,
			SampleID: tuple.ID,
			Error:    pubErr.Error(),
		})
	}
	e.addRecord(rec)

	for _, out := range outs {
		select {
		case out <- res.Output.Clone():
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) addPublishEvent(ev model.PublishEvent) {
	e.mu.Lock()
	e.pubEvents = append(e.pubEvents, ev)
	e.mu.Unlock()
}

func (e *Engine) markFailed() {
	e.mu.Lock()
	e.failed = true
	e.mu.Unlock()
}

func (e *Engine) addRecord(rec model.TaskRecord) {
	e.mu.Lock()
	e.records = append(e.records, rec)
	e.mu.Unlock()
	if e.recorder != nil {
		if err := e.recorder.RecordTask(rec); err != nil {
			e.logger.Error("record task", "task", rec.ID, "error", err)
		}
	}
}

func (e *Engine) createRun(run model.Run) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.CreateRun(run); err != nil {
		e.logger.Error("record run", "run", run.ID, "error", err)
	}
}

func (e *Engine) finishRun(id string, status model.RunStatus) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.FinishRun(id, status, time.Now()); err != nil {
		e.logger.Error("finish run", "run", id, "error", err)
	}
}
