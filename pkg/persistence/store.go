package persistence

import (
	"context"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
)

// ExecutionStore adapts a Persistence aggregate to the narrow storage surface
// the execution engine depends on.
type ExecutionStore struct {
	persistence Persistence
}

func NewExecutionStore(p Persistence) *ExecutionStore {
	return &ExecutionStore{persistence: p}
}

func (s *ExecutionStore) GetWorkflowWithSteps(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetWithSteps(ctx, workflowID, ownerID)
}

func (s *ExecutionStore) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return s.persistence.ExecutionRepository().Create(ctx, execution)
}

func (s *ExecutionStore) UpdateExecutionProgress(ctx context.Context, executionID, stepID string, result models.StepResult) error {
	return s.persistence.ExecutionRepository().UpdateProgress(ctx, executionID, stepID, result)
}

func (s *ExecutionStore) FinalizeExecution(ctx context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error {
	return s.persistence.ExecutionRepository().Finalize(ctx, executionID, status, completedAt)
}

func (s *ExecutionStore) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	return s.persistence.ExecutionLogRepository().Append(ctx, entry)
}
