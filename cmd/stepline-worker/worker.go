// Package main provides the Stepline worker, which executes workflow run
// requests arriving on the event bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/events"
	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/services"
	"github.com/steplinehq/stepline/pkg/workflow"
)

type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "stepline-worker", "worker_id", id),
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	err := w.eventBus.Handle(events.WorkflowRunRequestedEvent, w.handleRunRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

// handleRunRequested runs one workflow for one run request. Requests that can
// never succeed are dropped with a warning; transient failures are returned
// so the message is redelivered.
func (w *WorkerManager) handleRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.WorkflowRunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WorkflowRunRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", request.WorkflowID,
		"event_id", request.ID,
	)
	logger.InfoContext(ctx, "Processing workflow run request")

	executor := workflow.NewExecutor(persistence.NewExecutionStore(w.persistence), w.registry, w.logger)
	executions := services.NewExecution(w.persistence, executor, w.eventBus, w.logger)

	summary, err := executions.Run(ctx, request.WorkflowID, request.OwnerID, request.Params)
	if err != nil {
		if services.IsNotFoundError(err) || services.IsInvalidStateError(err) || services.IsValidationError(err) {
			logger.WarnContext(ctx, "Dropping run request", "reason", err.Error())

			return nil
		}

		logger.ErrorContext(ctx, "Failed to run workflow", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Run finished",
		"execution_id", summary.ExecutionID,
		"status", summary.Status,
		"completed_steps", summary.CompletedSteps,
		"failed_steps", summary.FailedSteps,
	)

	return nil
}
