package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/registry"
)

// StepOutcome is the result of dispatching one step. The runner never returns
// a Go error; failures are carried here and folded into the execution record
// by the executor.
type StepOutcome struct {
	Status   models.StepStatus
	Output   map[string]any
	Error    error
	Attempts int
	Duration time.Duration
	SkipTo   *int
}

// Result renders the outcome into its persisted form.
func (o StepOutcome) Result() models.StepResult {
	result := models.StepResult{
		Status:     o.Status,
		Output:     o.Output,
		Attempts:   o.Attempts,
		DurationMs: o.Duration.Milliseconds(),
	}

	if o.Error != nil {
		result.Error = o.Error.Error()
	}

	return result
}

// StepRunner dispatches a single step to its action handler through the retry
// policy, merges handler output into the run context, and appends the step's
// execution log entries.
type StepRunner struct {
	store    Store
	policy   RetryPolicy
	logger   *slog.Logger
	handlers map[models.ActionType]ActionHandler
}

func NewStepRunner(store Store, reg *registry.Registry, policy RetryPolicy, logger *slog.Logger) *StepRunner {
	return &StepRunner{
		store:  store,
		policy: policy,
		logger: logger,
		handlers: map[models.ActionType]ActionHandler{
			models.ActionNoop:      noopHandler{},
			models.ActionTransform: transformHandler{},
			models.ActionCondition: conditionHandler{},
			models.ActionCustom:    customHandler{registry: reg},
		},
	}
}

// Run executes one step visit. Parameter validation failures and unknown
// action types fail without any handler attempt; handler failures go through
// the retry policy. On success the output is merged into the run context,
// last write wins.
func (r *StepRunner) Run(ctx context.Context, step *models.WorkflowStep, runCtx *models.RunContext) StepOutcome {
	logger := r.logger.With(
		"execution_id", runCtx.ExecutionID,
		"step_id", step.ID,
		"step_order", step.StepOrder,
		"action", string(step.Action),
	)

	r.appendLog(ctx, runCtx.ExecutionID, step.ID, models.LogLevelInfo, "step started", map[string]any{
		"action":     string(step.Action),
		"step_order": step.StepOrder,
	})
	logger.InfoContext(ctx, "Step started")

	started := time.Now()
	outcome := r.dispatch(ctx, step, runCtx, logger)
	outcome.Duration = time.Since(started)

	if outcome.Status == models.StepStatusSuccess {
		detail := map[string]any{
			"attempts":    outcome.Attempts,
			"duration_ms": outcome.Duration.Milliseconds(),
		}

		if value, ok := outcome.Output["condition_result"]; ok {
			detail["condition_result"] = value
		}

		if outcome.SkipTo != nil {
			detail["skip_to"] = *outcome.SkipTo
		}

		r.appendLog(ctx, runCtx.ExecutionID, step.ID, models.LogLevelInfo, "step completed", detail)
		logger.InfoContext(ctx, "Step completed", "attempts", outcome.Attempts, "duration_ms", outcome.Duration.Milliseconds())
	} else {
		r.appendLog(ctx, runCtx.ExecutionID, step.ID, models.LogLevelError, "step failed", map[string]any{
			"attempts":    outcome.Attempts,
			"duration_ms": outcome.Duration.Milliseconds(),
			"error":       outcome.Error.Error(),
		})
		logger.ErrorContext(ctx, "Step failed", "error", outcome.Error, "attempts", outcome.Attempts)
	}

	return outcome
}

func (r *StepRunner) dispatch(ctx context.Context, step *models.WorkflowStep, runCtx *models.RunContext, logger *slog.Logger) StepOutcome {
	handler, ok := r.handlers[step.Action]
	if !ok {
		return StepOutcome{
			Status: models.StepStatusFailure,
			Error:  fmt.Errorf("%w: action type %q", ErrUnsupportedAction, step.Action),
		}
	}

	params, err := models.DecodeStepParams(step)
	if err != nil {
		return StepOutcome{Status: models.StepStatusFailure, Error: err}
	}

	var handlerResult *HandlerResult

	attempt := func(attemptCtx context.Context) (map[string]any, error) {
		result, err := handler.Execute(attemptCtx, params, runCtx, logger)
		if err != nil {
			return nil, err
		}

		handlerResult = result

		return result.Output, nil
	}

	onFailure := func(attempt int, err error) {
		r.appendLog(ctx, runCtx.ExecutionID, step.ID, models.LogLevelWarn, "step attempt failed", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		logger.WarnContext(ctx, "Step attempt failed", "attempt", attempt, "error", err)
	}

	output, attempts, err := r.policy.Do(ctx, attempt, onFailure)
	if err != nil {
		return StepOutcome{Status: models.StepStatusFailure, Error: err, Attempts: attempts}
	}

	runCtx.Merge(output)

	outcome := StepOutcome{Status: models.StepStatusSuccess, Output: output, Attempts: attempts}
	if handlerResult != nil {
		outcome.SkipTo = handlerResult.SkipTo
	}

	return outcome
}

func (r *StepRunner) appendLog(ctx context.Context, executionID, stepID string, level models.LogLevel, message string, detail map[string]any) {
	entry := models.NewExecutionLog(executionID, stepID, level, message, detail)
	if err := r.store.AppendLog(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append execution log", "error", err, "execution_id", executionID)
	}
}
