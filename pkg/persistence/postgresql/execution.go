package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.ExecutionRepository = (*ExecutionRepository)(nil)

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create persists a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	paramsJSON, err := json.Marshal(execution.Params)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to marshal params: %w", err))
	}

	stepResultsJSON, err := json.Marshal(execution.StepResults)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to marshal step results: %w", err))
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, status, params, step_results, completed_steps, failed_steps, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		paramsJSON,
		stepResultsJSON,
		execution.CompletedSteps,
		execution.FailedSteps,
		nullIfZeroTime(execution.StartedAt),
		execution.CompletedAt,
		execution.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return nil
}

// GetByID returns an execution by its identifier.
func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , params
		  , step_results
		  , completed_steps
		  , failed_steps
		  , started_at
		  , completed_at
		  , created_at
		FROM workflow_executions
		WHERE id = $1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , params
		  , step_results
		  , completed_steps
		  , failed_steps
		  , started_at
		  , completed_at
		  , created_at
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// UpdateProgress records the result of one step on the stored execution. The
// row is locked for the read-modify-write so concurrent updates serialize.
func (r *ExecutionRepository) UpdateProgress(ctx context.Context, executionID, stepID string, result models.StepResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("UpdateProgress", executionID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	execution, err := r.getForUpdate(ctx, tx, executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("UpdateProgress", executionID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("UpdateProgress", executionID, err)
	}

	execution.RecordStepResult(stepID, result)

	stepResultsJSON, err := json.Marshal(execution.StepResults)
	if err != nil {
		return persistence.NewExecutionError("UpdateProgress", executionID, fmt.Errorf("failed to marshal step results: %w", err))
	}

	updateQuery := `
		UPDATE workflow_executions
		SET step_results = $2, completed_steps = $3, failed_steps = $4
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, updateQuery, executionID, stepResultsJSON, execution.CompletedSteps, execution.FailedSteps)
	if err != nil {
		return persistence.NewExecutionError("UpdateProgress", executionID, fmt.Errorf("failed to update execution: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewExecutionError("UpdateProgress", executionID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// Finalize moves the stored execution into a terminal status. Finalizing an
// already terminal execution is rejected.
func (r *ExecutionRepository) Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("Finalize", executionID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	execution, err := r.getForUpdate(ctx, tx, executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("Finalize", executionID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("Finalize", executionID, err)
	}

	err = execution.Finalize(status, completedAt)
	if err != nil {
		return persistence.NewExecutionError("Finalize", executionID, err)
	}

	updateQuery := `
		UPDATE workflow_executions
		SET status = $2, completed_at = $3
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, updateQuery, executionID, execution.Status, execution.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("Finalize", executionID, fmt.Errorf("failed to update execution: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewExecutionError("Finalize", executionID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (r *ExecutionRepository) getForUpdate(ctx context.Context, tx *sql.Tx, executionID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , params
		  , step_results
		  , completed_steps
		  , failed_steps
		  , started_at
		  , completed_at
		  , created_at
		FROM workflow_executions
		WHERE id = $1
		FOR UPDATE
	`

	return r.scanExecution(tx.QueryRowContext(ctx, query, executionID))
}

func (r *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowExecution, error) {
	var (
		execution                   models.WorkflowExecution
		paramsJSON, stepResultsJSON []byte
		startedAt, completedAt      sql.NullTime
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&paramsJSON,
		&stepResultsJSON,
		&execution.CompletedSteps,
		&execution.FailedSteps,
		&startedAt,
		&completedAt,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paramsJSON != nil {
		err := json.Unmarshal(paramsJSON, &execution.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	execution.StepResults = make(map[string]models.StepResult)

	if stepResultsJSON != nil {
		err := json.Unmarshal(stepResultsJSON, &execution.StepResults)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}

	if startedAt.Valid {
		execution.StartedAt = startedAt.Time
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
