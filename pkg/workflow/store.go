package workflow

import (
	"context"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// Store is the persistence boundary the engine requires. It is intentionally
// narrow: workflow loading is owner-scoped, execution writes are keyed by
// execution id, and log appends never mutate earlier entries. Implementations
// must support concurrent, isolated writes per execution id.
type Store interface {
	GetWorkflowWithSteps(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error)
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateExecutionProgress(ctx context.Context, executionID, stepID string, result models.StepResult) error
	FinalizeExecution(ctx context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error
	AppendLog(ctx context.Context, entry *models.ExecutionLog) error
}

var _ Store = (*persistence.ExecutionStore)(nil)
