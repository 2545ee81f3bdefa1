// Package engine drives the top-level task execution loop: selects the
// next executable task, drives the Provider Pool, applies retry and
// backoff via the Error Classifier, invokes the Validator, updates the
// Plan Store, and emits checkpoints.
//
//	select -> pre-checkpoint -> mark in_progress ->
//	  attempt loop:
//	    provider-pool.execute -> success? -> validate -> pass? -> mark completed -> post-record
//	                                          |                  |
//	                                          |                  +-- no -> classify failure -> retry/escalate
//	                                          +-- failure -> classify -> retry/backoff/skip-to-next-provider
//	  loop exhausted -> mark failed -> post-record
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/conductor/internal/checkpoint"
	"github.com/harrison/conductor/internal/errclass"
	"github.com/harrison/conductor/internal/models"
	"github.com/harrison/conductor/internal/planstore"
	"github.com/harrison/conductor/internal/providerpool"
	"github.com/harrison/conductor/internal/telemetry"
	"github.com/harrison/conductor/internal/validator"
)

const defaultProviderTimeout = 10 * time.Minute

// TaskExecutionError reports that a single task exhausted its attempt
// loop without a passing validation, carrying the error class that
// governed the retry policy which gave up on it.
type TaskExecutionError struct {
	TaskID string
	Class  models.ErrorClass
	Err    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed (%s): %v", e.TaskID, e.Class, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// TaskOutcome is the result of one successful task execution.
type TaskOutcome struct {
	Success  bool
	Provider string
	Output   string
	Attempt  int
	Duration time.Duration
}

// ManualInterventionHook is consulted when a configuration-class
// failure exhausts its retry ceiling. Resolve returns "continue" to
// keep retrying, or any other value to give up on the task.
type ManualInterventionHook interface {
	Resolve(ctx context.Context, task models.Task, lastErr error) (string, error)
}

// NonInteractiveHook honours CONDUCTOR_NONINTERACTIVE and CI by always
// returning "continue" without prompting anyone.
type NonInteractiveHook struct{}

// Resolve always returns "continue".
func (NonInteractiveHook) Resolve(ctx context.Context, task models.Task, lastErr error) (string, error) {
	return "continue", nil
}

// IsNonInteractive reports whether the process environment forces
// non-interactive behaviour for the manual-intervention hook.
func IsNonInteractive() bool {
	return os.Getenv("CONDUCTOR_NONINTERACTIVE") != "" || os.Getenv("CI") != ""
}

// Config configures an Engine instance.
type Config struct {
	ProjectPath     string
	MaxRetries      int           // 0 selects errclass's default of 3
	ProviderTimeout time.Duration // 0 selects defaultProviderTimeout
	Hook            ManualInterventionHook
}

// Engine wires the Plan Store, Provider Pool, Validator, Checkpoint
// Store, and Telemetry sink together into the execution loop.
type Engine struct {
	Store       *planstore.Store
	Pool        *providerpool.Pool
	Validator   *validator.Validator
	Checkpoints *checkpoint.Store
	Sink        telemetry.Sink
	Config      Config
}

// New returns an Engine. A nil Hook defaults to NonInteractiveHook
// whatever the environment; IsNonInteractive is not consulted. Callers
// wanting an interactive hook must supply one explicitly.
func New(store *planstore.Store, pool *providerpool.Pool, v *validator.Validator, cps *checkpoint.Store, sink telemetry.Sink, cfg Config) *Engine {
	if cfg.Hook == nil {
		cfg.Hook = NonInteractiveHook{}
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	return &Engine{Store: store, Pool: pool, Validator: v, Checkpoints: cps, Sink: sink, Config: cfg}
}

func (e *Engine) emit(event models.Event) {
	if e.Sink == nil {
		return
	}
	event.Timestamp = time.Now()
	e.Sink.Emit(event)
}

// executeTask runs task's attempt loop: invoke the pool, validate a
// successful invocation, and classify/retry/escalate a failing one,
// until the task passes, is given up on, or the run is cancelled.
func (e *Engine) executeTask(ctx context.Context, task models.Task, ec *ExecutionContext) (*TaskOutcome, error) {
	lastProvider := ""

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, models.NewCancelledError(task.ID)
		}

		start := time.Now()
		providerName, attempted, parsed, err := e.Pool.ExecuteWithCircuitBreaker(ctx, task, e.Config.ProjectPath, e.Config.ProviderTimeout)
		duration := time.Since(start)

		// attempted is every provider the pool tried this call, in order;
		// prepending the provider the previous attempt ended on turns a
		// fallback that happens entirely inside one pool call, or one
		// that only becomes visible across a retry, into the same
		// from->to transition sequence.
		sequence := attempted
		if lastProvider != "" && len(sequence) > 0 && sequence[0] != lastProvider {
			sequence = append([]string{lastProvider}, sequence...)
		}
		for i := 1; i < len(sequence); i++ {
			e.emit(models.Event{Kind: models.EventProviderFallback, TaskID: task.ID, FromProvider: sequence[i-1], ToProvider: sequence[i]})
		}
		if len(attempted) > 0 {
			lastProvider = attempted[len(attempted)-1]
		}

		if err != nil {
			class := errclass.Classify(err.Error())
			ec.appendRecord(models.ExecutionRecord{
				TaskID: task.ID, Provider: providerName, Attempt: attempt, Duration: duration,
				Success: false, ErrorClass: class, RawError: err.Error(), Timestamp: time.Now(),
			})
			e.emit(models.Event{Kind: models.EventTaskExecution, TaskID: task.ID, Provider: providerName, Attempt: attempt, Success: false, Message: err.Error()})

			outcome, done, retErr := e.resolveFailure(ctx, task, class, attempt, err)
			if done {
				return outcome, retErr
			}
			continue
		}

		record := models.ExecutionRecord{TaskID: task.ID, Provider: providerName, Attempt: attempt, Duration: duration, Timestamp: time.Now()}
		validation := e.Validator.Validate(ctx, task, parsed, record)
		record.Success = validation.Passed
		record.Validation = validation
		ec.appendRecord(record)
		e.emit(models.Event{Kind: models.EventTaskExecution, TaskID: task.ID, Provider: providerName, Attempt: attempt, Success: validation.Passed, Message: validation.Summary})

		if validation.Passed {
			return &TaskOutcome{Success: true, Provider: providerName, Output: parsed.Response, Attempt: attempt, Duration: duration}, nil
		}

		class := errclass.Classify(validation.Summary)
		outcome, done, retErr := e.resolveFailure(ctx, task, class, attempt, errors.New(validation.Summary))
		if done {
			return outcome, retErr
		}
	}
}

// resolveFailure applies the Error Classifier's retry decision for one
// failed attempt. done=true means the attempt loop must stop and
// return (outcome, err) as-is; done=false means the caller should make
// another attempt.
func (e *Engine) resolveFailure(ctx context.Context, task models.Task, class models.ErrorClass, attempt int, cause error) (*TaskOutcome, bool, error) {
	switch errclass.Decide(class, attempt, e.Config.MaxRetries) {
	case errclass.DecisionRetry:
		if err := sleepOrCancel(ctx, errclass.Backoff(attempt)); err != nil {
			return nil, true, models.NewCancelledError(task.ID)
		}
		return nil, false, nil

	case errclass.DecisionEscalate:
		action, err := e.Config.Hook.Resolve(ctx, task, cause)
		if err != nil {
			return nil, true, err
		}
		if action == "continue" {
			return nil, false, nil
		}
		return nil, true, &TaskExecutionError{TaskID: task.ID, Class: class, Err: cause}

	default: // DecisionGiveUp
		return nil, true, &TaskExecutionError{TaskID: task.ID, Class: class, Err: cause}
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOptions selects executeAllTasksWithRecovery's behaviour.
type RunOptions struct {
	Resume         bool
	CheckpointPath string // empty selects the most recent checkpoint
}

// RunResult aggregates one full run of executable tasks.
type RunResult struct {
	TotalTasks              int
	Completed               int
	Failed                  int
	Skipped                 int
	Duration                time.Duration
	Success                 bool
	EventLog                []models.ExecutionRecord
	RecoveredFromCheckpoint bool
	RunID                   string
}

// ExecuteAllTasks is a thin convenience wrapper over
// ExecuteAllTasksWithRecovery with resume disabled. The recovery-aware
// path is canonical: it is the one that restores currentTaskIndex,
// counters, and event log consistently, so this wrapper exists only
// for callers that never resume.
func (e *Engine) ExecuteAllTasks(ctx context.Context) (*RunResult, error) {
	return e.ExecuteAllTasksWithRecovery(ctx, RunOptions{})
}

// ExecuteAllTasksWithRecovery iterates the plan's executable tasks in
// order, optionally resuming from a checkpoint, writing a fresh
// checkpoint before each task's attempt loop begins.
func (e *Engine) ExecuteAllTasksWithRecovery(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	ec := newExecutionContext()
	recovered := false

	if opts.Resume {
		var cp *models.Checkpoint
		var err error
		if opts.CheckpointPath != "" {
			cp, err = e.Checkpoints.Load(opts.CheckpointPath)
		} else {
			cp, _, err = e.Checkpoints.Latest()
		}
		if err != nil {
			return nil, err
		}
		if cp != nil {
			ec.setCheckpoint(cp)
			ec.Completed = cp.CompletedTasks
			ec.Failed = cp.FailedTasks
			for _, r := range cp.ExecutionLog {
				ec.appendRecord(r)
			}
			recovered = true
			ec.RunID = cp.RunID
		}
	}
	if ec.RunID == "" {
		ec.RunID = uuid.NewString()
	}

	e.emit(models.Event{Kind: models.EventRunStart})

	plan, err := e.Store.Read()
	if err != nil {
		return nil, err
	}
	totalTasks := len(plan.Tasks)

	tasks := planstore.TasksForExecution(plan)
	if recovered && ec.CurrentCheckpoint != nil {
		accounted := make(map[string]bool, len(ec.CurrentCheckpoint.Tasks))
		for _, snap := range ec.CurrentCheckpoint.Tasks {
			if snap.Status == models.StatusCompleted || snap.Status == models.StatusFailed {
				accounted[snap.ID] = true
			}
		}
		remaining := tasks[:0]
		for _, t := range tasks {
			if !accounted[t.ID] {
				remaining = append(remaining, t)
			}
		}
		tasks = remaining
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			e.writeCheckpoint(plan, ec)
			return e.buildResult(totalTasks, ec, time.Since(start), recovered), err
		}

		e.emit(models.Event{Kind: models.EventTaskSelection, TaskID: task.ID})

		if err := e.writeCheckpoint(plan, ec); err != nil {
			return nil, err
		}

		startedAt := time.Now()
		if err := e.Store.UpdateStatus(task.ID, models.StatusInProgress, &planstore.Attachments{StartedAt: &startedAt}); err != nil {
			return nil, err
		}

		_, taskErr := e.executeTask(ctx, task, ec)
		finishedAt := time.Now()

		if taskErr != nil && models.IsCancelledError(taskErr) {
			e.writeCheckpoint(plan, ec)
			return e.buildResult(totalTasks, ec, time.Since(start), recovered), taskErr
		}

		if taskErr != nil {
			ec.Failed++
			if err := e.Store.UpdateStatus(task.ID, models.StatusFailed, &planstore.Attachments{LastError: taskErr.Error(), FinishedAt: &finishedAt}); err != nil {
				return nil, err
			}
		} else {
			ec.Completed++
			if err := e.Store.UpdateStatus(task.ID, models.StatusCompleted, &planstore.Attachments{FinishedAt: &finishedAt}); err != nil {
				return nil, err
			}
		}

		plan, err = e.Store.Read()
		if err != nil {
			return nil, err
		}
	}

	duration := time.Since(start)
	result := e.buildResult(totalTasks, ec, duration, recovered)
	e.emit(models.Event{Kind: models.EventRunCompletion, Success: result.Success, Message: fmt.Sprintf("%d completed, %d failed", result.Completed, result.Failed)})
	return result, nil
}

// RunWithSignals wraps ExecuteAllTasksWithRecovery with SIGINT/SIGTERM
// handling: a signal cancels the run's context, which stops the loop
// before its next task and writes a final checkpoint reflecting the
// in-progress task.
func (e *Engine) RunWithSignals(ctx context.Context, opts RunOptions) (*RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			e.emit(models.Event{Kind: models.EventRunCompletion, Message: "received interrupt, shutting down gracefully"})
			cancel()
		case <-ctx.Done():
		}
	}()

	return e.ExecuteAllTasksWithRecovery(ctx, opts)
}

func (e *Engine) writeCheckpoint(plan *models.Plan, ec *ExecutionContext) error {
	snapshots := make([]models.TaskSnapshot, 0, len(plan.Tasks))
	for id, t := range plan.Tasks {
		snapshots = append(snapshots, models.TaskSnapshot{ID: id, Status: t.Status})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })

	cp := &models.Checkpoint{
		RunID:            ec.RunID,
		Timestamp:        time.Now(),
		ProjectPath:      e.Config.ProjectPath,
		PlanPath:         plan.FilePath,
		CurrentTaskIndex: ec.Completed + ec.Failed,
		CompletedTasks:   ec.Completed,
		FailedTasks:      ec.Failed,
		Tasks:            snapshots,
		ExecutionLog:     ec.snapshotEventLog(),
	}
	if _, err := e.Checkpoints.Save(cp); err != nil {
		return err
	}
	ec.setCheckpoint(cp)
	return nil
}

func (e *Engine) buildResult(totalTasks int, ec *ExecutionContext, dur time.Duration, recovered bool) *RunResult {
	return &RunResult{
		TotalTasks:              totalTasks,
		Completed:               ec.Completed,
		Failed:                  ec.Failed,
		Skipped:                 ec.Skipped,
		Duration:                dur,
		Success:                 ec.Failed == 0,
		EventLog:                ec.snapshotEventLog(),
		RecoveredFromCheckpoint: recovered,
		RunID:                   ec.RunID,
	}
}
