// Package protocol defines the contracts implemented by pluggable actions.
package protocol

import (
	"context"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
)

// Action is a unit of custom work dispatched by the engine. Execute receives
// a copy of the run context and returns the output to merge back into it.
type Action interface {
	Execute(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates action instances and provides metadata about the
// action type.
type ActionFactory interface {
	// Create creates a new action instance with the given configuration
	Create(config map[string]any) (Action, error)

	// ID returns the unique identifier for this action type
	ID() string

	// Schema returns the JSON schema for configuring this action
	Schema() map[string]any
}
