package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/events"
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/workflow"
)

// Execution runs workflows through the engine and exposes execution records
// and their logs. After each run the service publishes lifecycle events for
// downstream consumers; publishing is best-effort and never fails the run.
type Execution struct {
	persistence persistence.Persistence
	executor    *workflow.Executor
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewExecution creates a new execution service. The bus may be nil, in which
// case no events are published.
func NewExecution(
	persistence persistence.Persistence,
	executor *workflow.Executor,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
) *Execution {
	return &Execution{
		persistence: persistence,
		executor:    executor,
		bus:         bus,
		logger:      logger.With("module", "execution-service"),
	}
}

// Run executes the workflow synchronously and returns its summary.
// Precondition failures map onto service codes; per-step failures are
// reflected only in the summary status.
func (e *Execution) Run(ctx context.Context, workflowID, ownerID string, params map[string]any) (*models.ExecutionSummary, error) {
	const op = "Run"

	summary, err := e.executor.Execute(ctx, workflowID, ownerID, params)
	if err != nil {
		return nil, mapEngineError(op, workflowID, err)
	}

	// Events still go out when the caller cancelled mid-run.
	e.publishRunEvents(context.WithoutCancel(ctx), workflowID, summary)

	return summary, nil
}

// Enqueue validates run preconditions and publishes a run request for the
// worker fleet. The returned id identifies the request, not an execution:
// the execution record is created when a worker picks the request up.
func (e *Execution) Enqueue(ctx context.Context, workflowID, ownerID string, params map[string]any) (string, error) {
	const op = "Enqueue"

	wf, err := e.persistence.WorkflowRepository().GetWithSteps(ctx, workflowID, ownerID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return "", NewNotFoundError(op, fmt.Sprintf("workflow %s not found", workflowID), err)
		}

		return "", NewInternalError(op, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err))
	}

	if wf.Status != models.WorkflowStatusActive {
		return "", NewInvalidStateError(op, fmt.Sprintf("workflow %s is not active", workflowID), workflow.ErrWorkflowNotActive)
	}

	if len(wf.ActiveSteps()) == 0 {
		return "", NewInvalidStateError(op, fmt.Sprintf("workflow %s has no steps", workflowID), workflow.ErrWorkflowHasNoSteps)
	}

	if e.bus == nil {
		return "", NewInternalError(op, errors.New("event bus not configured"))
	}

	event := events.WorkflowRunRequested{
		BaseEvent: events.NewBaseEvent(events.WorkflowRunRequestedEvent, workflowID),
		OwnerID:   ownerID,
		Params:    params,
	}

	if err := e.bus.Publish(ctx, workflowID, event); err != nil {
		return "", NewInternalError(op, fmt.Errorf("failed to publish run request: %w", err))
	}

	return event.ID, nil
}

// Get returns a single execution record. Executions are reachable only
// through their owning workflow: a caller who does not own the workflow gets
// the same not-found answer as for a missing execution.
func (e *Execution) Get(ctx context.Context, executionID, ownerID string) (*models.WorkflowExecution, error) {
	const op = "GetExecution"

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, NewNotFoundError(op, fmt.Sprintf("execution %s not found", executionID), err)
		}

		return nil, NewInternalError(op, fmt.Errorf("failed to fetch execution %s: %w", executionID, err))
	}

	if err := e.checkOwner(ctx, op, execution, ownerID); err != nil {
		return nil, err
	}

	return execution, nil
}

// ListByWorkflow returns the workflow's executions, newest first, scoped to
// the owner.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID, ownerID string) ([]*models.WorkflowExecution, error) {
	const op = "ListExecutions"

	if _, err := e.persistence.WorkflowRepository().GetWithSteps(ctx, workflowID, ownerID); err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, NewNotFoundError(op, fmt.Sprintf("workflow %s not found", workflowID), err)
		}

		return nil, NewInternalError(op, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err))
	}

	executions, err := e.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, NewInternalError(op, fmt.Errorf("failed to list executions for workflow %s: %w", workflowID, err))
	}

	return executions, nil
}

// Logs returns the execution's log entries in append order, scoped to the
// owner the same way Get is.
func (e *Execution) Logs(ctx context.Context, executionID, ownerID string) ([]*models.ExecutionLog, error) {
	const op = "ExecutionLogs"

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, NewNotFoundError(op, fmt.Sprintf("execution %s not found", executionID), err)
		}

		return nil, NewInternalError(op, fmt.Errorf("failed to fetch execution %s: %w", executionID, err))
	}

	if err := e.checkOwner(ctx, op, execution, ownerID); err != nil {
		return nil, err
	}

	logs, err := e.persistence.ExecutionLogRepository().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, NewInternalError(op, fmt.Errorf("failed to list logs for execution %s: %w", executionID, err))
	}

	return logs, nil
}

// checkOwner verifies that ownerID owns the execution's workflow. An empty
// ownerID skips the check for internal callers. Ownership failures read as
// not-found so the API does not reveal which execution ids exist.
func (e *Execution) checkOwner(ctx context.Context, op string, execution *models.WorkflowExecution, ownerID string) error {
	if ownerID == "" {
		return nil
	}

	_, err := e.persistence.WorkflowRepository().GetWithSteps(ctx, execution.WorkflowID, ownerID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return NewNotFoundError(op, fmt.Sprintf("execution %s not found", execution.ID), persistence.ErrExecutionNotFound)
		}

		return NewInternalError(op, fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err))
	}

	return nil
}

// publishRunEvents emits the execution lifecycle onto the bus once a run has
// finalized. The events are observability, not bookkeeping, so any failure
// here is logged and swallowed.
func (e *Execution) publishRunEvents(ctx context.Context, workflowID string, summary *models.ExecutionSummary) {
	if e.bus == nil {
		return
	}

	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load workflow for run events", "error", err, "workflow_id", workflowID)

		return
	}

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, summary.ExecutionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load execution for run events", "error", err, "execution_id", summary.ExecutionID)

		return
	}

	e.publish(ctx, workflowID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, workflowID),
		ExecutionID:  execution.ID,
		WorkflowName: wf.Name,
		Params:       execution.Params,
	})

	firstError := ""

	for _, step := range wf.ActiveSteps() {
		result, ok := execution.StepResults[step.ID]
		if !ok || result.Status != models.StepStatusFailure {
			continue
		}

		if firstError == "" {
			firstError = result.Error
		}

		e.publish(ctx, workflowID, events.StepFailed{
			BaseEvent:   events.NewBaseEvent(events.StepFailedEvent, workflowID),
			ExecutionID: execution.ID,
			StepID:      step.ID,
			StepName:    step.Name,
			Error:       result.Error,
			Attempts:    result.Attempts,
		})
	}

	var durationMs int64
	if execution.CompletedAt != nil {
		durationMs = execution.CompletedAt.Sub(execution.StartedAt).Milliseconds()
	}

	if execution.Status == models.ExecutionStatusCompleted {
		e.publish(ctx, workflowID, events.ExecutionCompleted{
			BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, workflowID),
			ExecutionID:    execution.ID,
			Status:         string(execution.Status),
			CompletedSteps: execution.CompletedSteps,
			FailedSteps:    execution.FailedSteps,
			DurationMs:     durationMs,
		})

		return
	}

	if firstError == "" {
		firstError = "execution did not complete"
	}

	e.publish(ctx, workflowID, events.ExecutionFailed{
		BaseEvent:      events.NewBaseEvent(events.ExecutionFailedEvent, workflowID),
		ExecutionID:    execution.ID,
		Status:         string(execution.Status),
		Error:          firstError,
		CompletedSteps: execution.CompletedSteps,
		FailedSteps:    execution.FailedSteps,
		DurationMs:     durationMs,
	})
}

func (e *Execution) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"error", err,
			"event_type", event.GetType(),
			"workflow_id", key,
		)
	}
}

// mapEngineError translates engine precondition sentinels onto service
// codes. Anything else from the engine is unexpected and maps to internal.
func mapEngineError(op, workflowID string, err error) error {
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return NewNotFoundError(op, fmt.Sprintf("workflow %s not found", workflowID), err)
	case errors.Is(err, workflow.ErrWorkflowNotActive):
		return NewInvalidStateError(op, fmt.Sprintf("workflow %s is not active", workflowID), err)
	case errors.Is(err, workflow.ErrWorkflowHasNoSteps):
		return NewInvalidStateError(op, fmt.Sprintf("workflow %s has no steps", workflowID), err)
	default:
		return NewInternalError(op, err)
	}
}
