package workflow

import (
	"context"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
)

type noopHandler struct{}

func (noopHandler) Execute(_ context.Context, _ models.ActionParams, _ *models.RunContext, _ *slog.Logger) (*HandlerResult, error) {
	return &HandlerResult{Output: map[string]any{}}, nil
}
