package persistence

import (
	"context"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
)

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ExecutionLogRepository() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters workflow listings. The zero value lists
// everything, newest first.
type ListWorkflowsOptions struct {
	OwnerID string
	Status  *models.WorkflowStatus
	Limit   int
	Offset  int
}

// WorkflowRepository stores workflow definitions together with their steps.
type WorkflowRepository interface {
	// Save inserts or replaces the workflow aggregate, steps included.
	Save(ctx context.Context, workflow *models.Workflow) error

	// GetByID loads a workflow with its steps regardless of owner.
	GetByID(ctx context.Context, workflowID string) (*models.Workflow, error)

	// GetWithSteps loads a workflow with its steps, scoped to the owner.
	// A workflow owned by someone else is ErrWorkflowNotFound.
	GetWithSteps(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error)

	// List returns workflows matching the options, newest first.
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)

	// ListScheduled returns active workflows that carry a cron schedule.
	ListScheduled(ctx context.Context) ([]*models.Workflow, error)

	// Delete removes a workflow. Deleting an absent workflow is not an error.
	Delete(ctx context.Context, workflowID string) error
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)

	// UpdateProgress records one step result, replacing any earlier result
	// for the same step and keeping the aggregate counters consistent.
	UpdateProgress(ctx context.Context, executionID, stepID string, result models.StepResult) error

	// Finalize moves the execution into a terminal status.
	Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error
}

// ExecutionLogRepository stores the append-only execution log.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)
}
