package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/tracer"
)

// maxStepDispatches caps how many steps one run may dispatch. Branch targets
// may point backwards, so this is the guard against definitions that loop.
const maxStepDispatches = 1000

// Executor orchestrates a full workflow run: it validates preconditions,
// iterates active steps in order, folds step outcomes into the execution
// record, and finalizes it.
type Executor struct {
	store  Store
	runner *StepRunner
	logger *slog.Logger
	policy RetryPolicy
	tracer trace.Tracer
}

type Option func(*Executor)

// WithRetryPolicy overrides the default step retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithTracer enables a span per run.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

func NewExecutor(store Store, reg *registry.Registry, logger *slog.Logger, opts ...Option) *Executor {
	executor := &Executor{
		store:  store,
		logger: logger.With("module", "executor"),
		policy: DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	executor.runner = NewStepRunner(store, reg, executor.policy, executor.logger)

	return executor
}

// Execute runs one workflow for the given owner. Preconditions fail fast
// before any execution record exists: the workflow must exist and belong to
// the owner, be active, and have at least one active step. After that, every
// failure is per-step: it is captured in the execution record and reflected
// only in the final aggregate status, never returned as an error.
func (e *Executor) Execute(ctx context.Context, workflowID, ownerID string, params map[string]any) (*models.ExecutionSummary, error) {
	logger := e.logger.With("workflow_id", workflowID, "owner_id", ownerID)

	wf, err := e.store.GetWorkflowWithSteps(ctx, workflowID, ownerID)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if wf.Status != models.WorkflowStatusActive {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotActive)
	}

	steps := wf.ActiveSteps()
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowHasNoSteps)
	}

	execution := models.NewWorkflowExecution(wf.ID, params)
	if err := execution.Start(time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := e.store.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution for workflow %s: %w", workflowID, err)
	}

	logger = logger.With("execution_id", execution.ID)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = tracer.StartSpan(ctx, e.tracer, "workflow.execute",
			attribute.String(tracer.WorkflowIDKey, wf.ID),
			attribute.String(tracer.ExecutionIDKey, execution.ID),
		)
		defer span.End()
	}

	e.appendLog(ctx, execution.ID, models.LogLevelInfo, "execution started", map[string]any{
		"workflow_id": wf.ID,
		"steps":       len(steps),
	})
	logger.InfoContext(ctx, "Execution started", "steps", len(steps))

	runCtx := models.NewRunContext(execution.ID, wf.ID, params)
	runErr := e.runSteps(ctx, logger, steps, execution, runCtx)

	status := models.ExecutionStatusCompleted
	if runErr != nil || execution.FailedSteps > 0 {
		status = models.ExecutionStatusFailed
	}

	// Finalization must survive a cancelled run context.
	finalCtx := context.WithoutCancel(ctx)
	completedAt := time.Now().UTC()

	if err := execution.Finalize(status, completedAt); err != nil {
		return nil, err
	}

	if err := e.store.FinalizeExecution(finalCtx, execution.ID, status, completedAt); err != nil {
		return nil, fmt.Errorf("failed to finalize execution %s: %w", execution.ID, err)
	}

	if status == models.ExecutionStatusCompleted {
		e.appendLog(finalCtx, execution.ID, models.LogLevelInfo, "execution completed", map[string]any{
			"completed_steps": execution.CompletedSteps,
		})
		logger.InfoContext(ctx, "Execution completed", "completed_steps", execution.CompletedSteps)
	} else {
		detail := map[string]any{
			"completed_steps": execution.CompletedSteps,
			"failed_steps":    execution.FailedSteps,
		}

		if runErr != nil {
			detail["error"] = runErr.Error()

			if e.tracer != nil {
				tracer.SetError(trace.SpanFromContext(ctx), runErr)
			}
		}

		e.appendLog(finalCtx, execution.ID, models.LogLevelError, "execution failed", detail)
		logger.ErrorContext(ctx, "Execution failed",
			"completed_steps", execution.CompletedSteps,
			"failed_steps", execution.FailedSteps,
		)
	}

	return execution.Summary(), nil
}

// runSteps drives the iteration cursor over the active steps. A non-nil
// return means the run stopped abnormally (cancellation, invalid branch
// target, dispatch guard) and must finalize FAILED regardless of counters.
func (e *Executor) runSteps(ctx context.Context, logger *slog.Logger, steps []*models.WorkflowStep, execution *models.WorkflowExecution, runCtx *models.RunContext) error {
	finalCtx := context.WithoutCancel(ctx)
	dispatches := 0
	cursor := 0

	for cursor < len(steps) {
		if err := ctx.Err(); err != nil {
			e.appendLog(finalCtx, execution.ID, models.LogLevelWarn, "execution cancelled", map[string]any{
				"reason": err.Error(),
			})
			logger.WarnContext(finalCtx, "Execution cancelled between steps", "reason", err)

			return err
		}

		if dispatches >= maxStepDispatches {
			err := fmt.Errorf("%w: %d steps dispatched", ErrDispatchLimitExceeded, dispatches)
			e.appendLog(ctx, execution.ID, models.LogLevelError, "step dispatch limit exceeded", map[string]any{
				"dispatches": dispatches,
			})
			logger.ErrorContext(ctx, "Step dispatch limit exceeded", "dispatches", dispatches)

			return err
		}

		step := steps[cursor]
		dispatches++

		outcome := e.runner.Run(ctx, step, runCtx)
		result := outcome.Result()
		execution.RecordStepResult(step.ID, result)

		if err := e.store.UpdateExecutionProgress(ctx, execution.ID, step.ID, result); err != nil {
			logger.ErrorContext(ctx, "Failed to persist step result", "error", err, "step_id", step.ID)
		}

		if outcome.SkipTo != nil {
			target, ok := indexOfStepOrder(steps, *outcome.SkipTo)
			if !ok {
				err := fmt.Errorf("%w: no active step with order %d", ErrInvalidBranchTarget, *outcome.SkipTo)
				e.appendLog(ctx, execution.ID, models.LogLevelError, "invalid branch target", map[string]any{
					"step_id": step.ID,
					"target":  *outcome.SkipTo,
				})
				logger.ErrorContext(ctx, "Invalid branch target", "step_id", step.ID, "target", *outcome.SkipTo)

				return err
			}

			cursor = target

			continue
		}

		cursor++
	}

	return nil
}

func (e *Executor) appendLog(ctx context.Context, executionID string, level models.LogLevel, message string, detail map[string]any) {
	entry := models.NewExecutionLog(executionID, "", level, message, detail)
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append execution log", "error", err, "execution_id", executionID)
	}
}

func indexOfStepOrder(steps []*models.WorkflowStep, order int) (int, bool) {
	for i, step := range steps {
		if step.StepOrder == order {
			return i, true
		}
	}

	return 0, false
}
