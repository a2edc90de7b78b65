// Package services implements the application layer between the transport
// entrypoints (HTTP API, worker, scheduler) and the persistence and engine
// layers.
package services

import (
	"errors"
	"fmt"

	"github.com/steplinehq/stepline/pkg/persistence"
)

// Service error codes. The web layer maps them onto HTTP statuses.
const (
	CodeValidation   = "validation"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInvalidState = "invalid_state"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal"
)

// Validation errors (400 Bad Request).
var (
	ErrOwnerRequired    = errors.New("owner id is required")
	ErrNameRequired     = errors.New("workflow name is required")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrStepNameRequired = errors.New("step name is required")
	ErrInvalidStepOrder = errors.New("step order must be a positive integer")
	ErrUnknownAction    = errors.New("unknown action type")
)

// State errors (400/409).
var (
	ErrWorkflowArchived = errors.New("workflow is archived")
	ErrNoActiveSteps    = errors.New("workflow has no active steps")
)

// Persistence sentinels re-exported so callers can match them without
// importing the persistence package.
var (
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrStepNotFound      = persistence.ErrStepNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
)

// ServiceError wraps service-level failures with the operation that produced
// them and a stable code for transport mapping.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeValidation, Message: message, Err: err}
}

// NewNotFoundError creates a not-found error with context.
func NewNotFoundError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeNotFound, Message: message, Err: err}
}

// NewConflictError creates a conflict error with context.
func NewConflictError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeConflict, Message: message, Err: err}
}

// NewInvalidStateError creates an invalid-state error with context.
func NewInvalidStateError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeInvalidState, Message: message, Err: err}
}

// NewRateLimitedError creates a rate-limited error with context.
func NewRateLimitedError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeRateLimited, Message: message, Err: err}
}

// NewInternalError wraps an unexpected failure that should surface as a 500.
func NewInternalError(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: CodeInternal, Err: err}
}

func errorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}

	return ""
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errorCode(err) == CodeValidation
}

// IsNotFoundError checks if an error should return HTTP 404. Raw persistence
// not-found sentinels count, in case one escapes unwrapped.
func IsNotFoundError(err error) bool {
	return errorCode(err) == CodeNotFound ||
		persistence.IsWorkflowNotFound(err) ||
		persistence.IsStepNotFound(err) ||
		persistence.IsExecutionNotFound(err)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errorCode(err) == CodeConflict ||
		persistence.IsDuplicateWorkflowName(err) ||
		persistence.IsDuplicateStepOrder(err)
}

// IsInvalidStateError checks if an error is a workflow-state precondition
// failure, such as running a workflow that is not active.
func IsInvalidStateError(err error) bool {
	return errorCode(err) == CodeInvalidState
}

// IsRateLimitedError checks if an error should return HTTP 429.
func IsRateLimitedError(err error) bool {
	return errorCode(err) == CodeRateLimited
}
