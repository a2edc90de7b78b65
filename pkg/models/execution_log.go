package models

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLog is one append-only log entry belonging to a workflow execution.
// StepID is empty for run-level entries. Entries are never mutated after write.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id,omitempty"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Detail      map[string]any `json:"detail,omitempty"`
	LoggedAt    time.Time      `json:"logged_at"`
}

// NewExecutionLog creates a log entry stamped with the current time. Log ids
// are time-ordered so listing by id matches append order.
func NewExecutionLog(executionID, stepID string, level LogLevel, message string, detail map[string]any) *ExecutionLog {
	return &ExecutionLog{
		ID:          newLogID(),
		ExecutionID: executionID,
		StepID:      stepID,
		Level:       level,
		Message:     message,
		Detail:      detail,
		LoggedAt:    time.Now().UTC(),
	}
}

func newLogID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}
