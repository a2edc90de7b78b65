package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steplinehq/stepline/pkg/persistence"
)

func TestServiceError_Error(t *testing.T) {
	withMessage := NewValidationError("CreateWorkflow", "workflow name is required", ErrNameRequired)
	assert.Equal(t, "CreateWorkflow: workflow name is required", withMessage.Error())

	withoutMessage := NewInternalError("CreateWorkflow", errors.New("disk full"))
	assert.Equal(t, "CreateWorkflow: disk full", withoutMessage.Error())
}

func TestServiceError_Unwrap(t *testing.T) {
	err := NewConflictError("AddStep", "step order 2 is already used", persistence.ErrDuplicateStepOrder)

	assert.ErrorIs(t, err, persistence.ErrDuplicateStepOrder)

	wrapped := fmt.Errorf("handling request: %w", err)
	assert.True(t, IsConflictError(wrapped), "code should survive further wrapping")
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		expected  bool
	}{
		{
			name:      "validation error matches IsValidationError",
			err:       NewValidationError("CreateWorkflow", "bad", ErrNameRequired),
			predicate: IsValidationError,
			expected:  true,
		},
		{
			name:      "not-found error matches IsNotFoundError",
			err:       NewNotFoundError("FetchWorkflow", "gone", ErrWorkflowNotFound),
			predicate: IsNotFoundError,
			expected:  true,
		},
		{
			name:      "raw persistence sentinel matches IsNotFoundError",
			err:       persistence.ErrExecutionNotFound,
			predicate: IsNotFoundError,
			expected:  true,
		},
		{
			name:      "conflict error matches IsConflictError",
			err:       NewConflictError("CreateWorkflow", "taken", persistence.ErrDuplicateWorkflowName),
			predicate: IsConflictError,
			expected:  true,
		},
		{
			name:      "raw duplicate sentinel matches IsConflictError",
			err:       persistence.ErrDuplicateStepOrder,
			predicate: IsConflictError,
			expected:  true,
		},
		{
			name:      "invalid-state error matches IsInvalidStateError",
			err:       NewInvalidStateError("Run", "workflow wf-1 is not active", nil),
			predicate: IsInvalidStateError,
			expected:  true,
		},
		{
			name:      "rate-limited error matches IsRateLimitedError",
			err:       NewRateLimitedError("Run", "too many runs", nil),
			predicate: IsRateLimitedError,
			expected:  true,
		},
		{
			name:      "validation error is not a conflict",
			err:       NewValidationError("CreateWorkflow", "bad", ErrNameRequired),
			predicate: IsConflictError,
			expected:  false,
		},
		{
			name:      "internal error matches nothing client-facing",
			err:       NewInternalError("CreateWorkflow", assert.AnError),
			predicate: IsValidationError,
			expected:  false,
		},
		{
			name:      "generic error matches nothing",
			err:       assert.AnError,
			predicate: IsValidationError,
			expected:  false,
		},
		{
			name:      "nil error matches nothing",
			err:       nil,
			predicate: IsNotFoundError,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.predicate(tt.err))
		})
	}
}
