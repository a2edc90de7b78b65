// Package workflow implements the workflow execution engine: precondition
// validation, sequential step dispatch with branching, bounded retry, and
// execution record finalization.
package workflow

import (
	"errors"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

var (
	// ErrWorkflowNotFound indicates the workflow is absent or not owned by the caller.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// ErrWorkflowNotActive indicates the workflow status does not permit execution.
	ErrWorkflowNotActive = errors.New("workflow not active")

	// ErrWorkflowHasNoSteps indicates the workflow has no active steps to run.
	ErrWorkflowHasNoSteps = errors.New("workflow has no steps")

	// ErrInvalidBranchTarget indicates a condition step pointed at a step order
	// that does not exist among the workflow's active steps.
	ErrInvalidBranchTarget = errors.New("invalid branch target")

	// ErrInvalidParameters indicates malformed step parameters, an unresolvable
	// condition field, or an operand type mismatch.
	ErrInvalidParameters = models.ErrInvalidParameters

	// ErrUnsupportedAction indicates an unknown action type or custom action name.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrActionFailed wraps a failure returned by a custom action. It is the
	// only retryable step error kind.
	ErrActionFailed = errors.New("action failed")

	// ErrDispatchLimitExceeded indicates the per-run step dispatch guard fired,
	// almost always because condition branches formed a loop.
	ErrDispatchLimitExceeded = errors.New("step dispatch limit exceeded")
)

// Retryable reports whether a step error is worth retrying. Parameter and
// dispatch failures are deterministic, so the retry policy fails fast on them.
func Retryable(err error) bool {
	if errors.Is(err, ErrInvalidParameters) || errors.Is(err, ErrUnsupportedAction) {
		return false
	}

	return true
}
