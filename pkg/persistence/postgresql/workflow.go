package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

const defaultListLimit = 20

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.WorkflowRepository = (*WorkflowRepository)(nil)

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Save upserts the workflow and replaces its steps in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, owner_id, name, description, status, public, schedule, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			public = EXCLUDED.public,
			schedule = EXCLUDED.schedule,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.OwnerID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.Public,
		nullIfEmpty(workflow.Schedule),
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		if sentinel := uniqueViolation(err); sentinel != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, sentinel)
		}

		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	// Replace steps on update
	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	err = r.saveWorkflowSteps(ctx, tx, workflow)
	if err != nil {
		if sentinel := uniqueViolation(err); sentinel != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, sentinel)
		}

		return fmt.Errorf("failed to save workflow steps: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID returns a workflow with its steps.
func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , status
		  , public
		  , schedule
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, workflowID)

	workflow, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadWorkflowSteps(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}

	return workflow, nil
}

// GetWithSteps returns a workflow with its steps, scoped to the owner.
// A workflow owned by someone else is reported as not found.
func (r *WorkflowRepository) GetWithSteps(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error) {
	workflow, err := r.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if ownerID != "" && workflow.OwnerID != ownerID {
		return nil, persistence.NewWorkflowError("GetWithSteps", workflowID, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// List returns workflows matching the options, newest first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , status
		  , public
		  , schedule
		  , created_at
		  , updated_at
		FROM workflows
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR owner_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	status := ""
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	rows, err := r.db.QueryContext(ctx, query, opts.OwnerID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadWorkflowSteps(ctx, workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}
	}

	return workflows, nil
}

// ListScheduled returns every active workflow that carries a schedule.
func (r *WorkflowRepository) ListScheduled(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , status
		  , public
		  , schedule
		  , created_at
		  , updated_at
		FROM workflows
		WHERE deleted_at IS NULL
		  AND status = $1
		  AND schedule IS NOT NULL
		  AND schedule <> ''
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, models.WorkflowStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating scheduled workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadWorkflowSteps(ctx, workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}
	}

	return workflows, nil
}

// Delete soft deletes a workflow by setting the deleted_at timestamp.
// Deleting a workflow that does not exist is not an error.
func (r *WorkflowRepository) Delete(ctx context.Context, workflowID string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return persistence.NewWorkflowError("Delete", workflowID, fmt.Errorf("failed to delete workflow: %w", err))
	}

	return nil
}

func (r *WorkflowRepository) loadWorkflowSteps(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT id, step_order, name, action, parameters, active
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var (
			step           models.WorkflowStep
			parametersJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.StepOrder,
			&step.Name,
			&step.Action,
			&parametersJSON,
			&step.Active,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		if parametersJSON != nil {
			err := json.Unmarshal(parametersJSON, &step.Parameters)
			if err != nil {
				return fmt.Errorf("failed to unmarshal step parameters: %w", err)
			}
		}

		step.WorkflowID = workflow.ID

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	workflow.Steps = steps

	return nil
}

// saveWorkflowSteps saves the steps for a workflow.
func (r *WorkflowRepository) saveWorkflowSteps(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for _, step := range workflow.Steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflow.ID

		parametersJSON, err := json.Marshal(step.Parameters)
		if err != nil {
			return fmt.Errorf("failed to marshal step parameters: %w", err)
		}

		query := `
			INSERT INTO workflow_steps (workflow_id, id, step_order, name, action, parameters, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err = tx.ExecContext(ctx, query,
			workflow.ID,
			step.ID,
			step.StepOrder,
			step.Name,
			step.Action,
			parametersJSON,
			step.Active,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflowBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		schedule sql.NullString
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.OwnerID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.Public,
		&schedule,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Schedule = schedule.String

	return &workflow, nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
