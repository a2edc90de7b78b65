package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// ExecutionRepository stores execution records as JSON files, one per execution.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

var _ persistence.ExecutionRepository = (*ExecutionRepository)(nil)

// NewExecutionRepository creates an execution repository rooted at the given directory.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(executionID string) string {
	return filepath.Join(r.dir(), executionID+".json")
}

// Create persists a new execution record.
func (r *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), dirPerm); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to create executions directory: %w", err))
	}

	return r.write("Create", execution)
}

// GetByID loads an execution by its identifier.
func (r *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load(executionID)
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.WorkflowExecution{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := r.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}

// UpdateProgress records the result of one step on the stored execution.
func (r *ExecutionRepository) UpdateProgress(_ context.Context, executionID, stepID string, result models.StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.load(executionID)
	if err != nil {
		return err
	}

	execution.RecordStepResult(stepID, result)

	return r.write("UpdateProgress", execution)
}

// Finalize moves the stored execution into a terminal status. Finalizing an
// already terminal execution is rejected.
func (r *ExecutionRepository) Finalize(_ context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.load(executionID)
	if err != nil {
		return err
	}

	if err := execution.Finalize(status, completedAt); err != nil {
		return persistence.NewExecutionError("Finalize", executionID, err)
	}

	return r.write("Finalize", execution)
}

func (r *ExecutionRepository) load(executionID string) (*models.WorkflowExecution, error) {
	data, err := os.ReadFile(r.path(executionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", executionID, fmt.Errorf("failed to read execution file: %w", err))
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

func (r *ExecutionRepository) write(op string, execution *models.WorkflowExecution) error {
	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	if err := os.WriteFile(r.path(execution.ID), data, filePerm); err != nil {
		return persistence.NewExecutionError(op, execution.ID, fmt.Errorf("failed to write execution file: %w", err))
	}

	return nil
}
