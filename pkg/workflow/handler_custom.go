package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/registry"
)

// customHandler dispatches to the custom action registry. Action failures are
// wrapped as ErrActionFailed so the retry policy treats them as transient.
type customHandler struct {
	registry *registry.Registry
}

func (h customHandler) Execute(ctx context.Context, params models.ActionParams, runCtx *models.RunContext, logger *slog.Logger) (*HandlerResult, error) {
	custom, ok := params.(models.CustomParams)
	if !ok {
		return nil, fmt.Errorf("%w: custom parameters expected", ErrInvalidParameters)
	}

	if h.registry == nil {
		return nil, fmt.Errorf("%w: custom action %q: no registry configured", ErrUnsupportedAction, custom.Action)
	}

	action, err := h.registry.CreateAction(custom.Action, custom.Config)
	if err != nil {
		if errors.Is(err, registry.ErrActionNotRegistered) {
			return nil, fmt.Errorf("%w: custom action %q", ErrUnsupportedAction, custom.Action)
		}

		return nil, fmt.Errorf("%w: custom action %q: %s", ErrInvalidParameters, custom.Action, err)
	}

	output, err := action.Execute(ctx, *runCtx, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrActionFailed, custom.Action, err)
	}

	return &HandlerResult{Output: output}, nil
}
