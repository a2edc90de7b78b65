package workflow

import (
	"context"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
)

// HandlerResult is what one successful handler invocation produced. Output is
// merged flat into the run context by the step runner; SkipTo carries the
// branch target of condition steps.
type HandlerResult struct {
	Output map[string]any
	SkipTo *int
}

// ActionHandler implements the semantics of one step action type. Handlers
// receive parameters already validated and decoded by the runner.
type ActionHandler interface {
	Execute(ctx context.Context, params models.ActionParams, runCtx *models.RunContext, logger *slog.Logger) (*HandlerResult, error)
}
