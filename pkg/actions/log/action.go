// Package log provides the log action, which writes a templated message to
// the service log as a workflow step.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/template"
)

type Action struct {
	Message string
	Level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{
		Message: message,
		Level:   level,
	}
}

func (a *Action) Execute(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "log_action")

	rendered, err := template.RenderValue(a.Message, &runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render message template: %w", err)
	}

	message := fmt.Sprintf("%v", rendered)

	switch a.Level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn", "warning":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{
		"message": message,
		"level":   a.Level,
	}, nil
}
