// Package persistence provides the data storage abstraction layer for
// workflows, executions, and execution logs.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound indicates a workflow step was not found by the given identifier.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrDuplicateWorkflowName indicates the owner already has a workflow with that name.
	ErrDuplicateWorkflowName = errors.New("workflow name already in use")

	// ErrDuplicateStepOrder indicates the workflow already has a step with that order.
	ErrDuplicateStepOrder = errors.New("step order already in use")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks if an error indicates a workflow step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsDuplicateWorkflowName checks if an error indicates a workflow name conflict.
func IsDuplicateWorkflowName(err error) bool {
	return errors.Is(err, ErrDuplicateWorkflowName)
}

// IsDuplicateStepOrder checks if an error indicates a step order conflict.
func IsDuplicateStepOrder(err error) bool {
	return errors.Is(err, ErrDuplicateStepOrder)
}
