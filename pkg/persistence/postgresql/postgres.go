// Package postgresql provides PostgreSQL persistence for workflows,
// executions, and execution logs.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db               *sql.DB
	logger           *slog.Logger
	workflowRepo     *WorkflowRepository
	executionRepo    *ExecutionRepository
	executionLogRepo *ExecutionLogRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:               database,
		logger:           logger,
		workflowRepo:     NewWorkflowRepository(database, logger),
		executionRepo:    NewExecutionRepository(database, logger),
		executionLogRepo: NewExecutionLogRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.executionLogRepo
}

// uniqueViolation maps PostgreSQL unique constraint violations onto the
// repository sentinels, keyed by the constraint that fired.
func uniqueViolation(err error) error {
	var pqErr *pq.Error

	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}

	switch pqErr.Constraint {
	case "uq_workflows_owner_name":
		return persistence.ErrDuplicateWorkflowName
	case "uq_workflow_steps_order":
		return persistence.ErrDuplicateStepOrder
	default:
		return nil
	}
}
