package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// ExecutionLogRepository stores the log of each execution as one JSON file
// holding the ordered list of entries.
type ExecutionLogRepository struct {
	root string
	mu   sync.Mutex
}

var _ persistence.ExecutionLogRepository = (*ExecutionLogRepository)(nil)

// NewExecutionLogRepository creates an execution log repository rooted at the given directory.
func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

func (r *ExecutionLogRepository) dir() string {
	return filepath.Join(r.root, "logs")
}

func (r *ExecutionLogRepository) path(executionID string) string {
	return filepath.Join(r.dir(), executionID+".json")
}

// Append adds an entry to the end of the execution's log.
func (r *ExecutionLogRepository) Append(_ context.Context, entry *models.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), dirPerm); err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, fmt.Errorf("failed to create logs directory: %w", err))
	}

	entries, err := r.load(entry.ExecutionID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, fmt.Errorf("failed to marshal log entries: %w", err))
	}

	if err := os.WriteFile(r.path(entry.ExecutionID), data, filePerm); err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, fmt.Errorf("failed to write log file: %w", err))
	}

	return nil
}

// ListByExecution returns the execution's log entries in append order. An
// execution without entries yields an empty list.
func (r *ExecutionLogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(executionID)
}

func (r *ExecutionLogRepository) load(executionID string) ([]*models.ExecutionLog, error) {
	data, err := os.ReadFile(r.path(executionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.ExecutionLog{}, nil
		}

		return nil, persistence.NewExecutionError("ListLogs", executionID, fmt.Errorf("failed to read log file: %w", err))
	}

	entries := make([]*models.ExecutionLog, 0)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, persistence.NewExecutionError("ListLogs", executionID, fmt.Errorf("failed to unmarshal log entries: %w", err))
	}

	return entries, nil
}
