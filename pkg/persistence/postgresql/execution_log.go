package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// ExecutionLogRepository handles execution log database operations. The log
// is append-only; entries are never updated or deleted.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.ExecutionLogRepository = (*ExecutionLogRepository)(nil)

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Append adds an entry to the end of the execution's log.
func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, fmt.Errorf("failed to marshal detail: %w", err))
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, step_id, level, message, detail, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		nullIfEmpty(entry.StepID),
		entry.Level,
		entry.Message,
		detailJSON,
		entry.LoggedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, fmt.Errorf("failed to insert log entry: %w", err))
	}

	return nil
}

// ListByExecution returns the execution's log entries in append order.
func (r *ExecutionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, step_id, level, message, detail, logged_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY logged_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry      models.ExecutionLog
			stepID     sql.NullString
			detailJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&stepID,
			&entry.Level,
			&entry.Message,
			&detailJSON,
			&entry.LoggedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.StepID = stepID.String

		if detailJSON != nil {
			err := json.Unmarshal(detailJSON, &entry.Detail)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal detail: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
