package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steplinehq/stepline/pkg/models"
)

type conditionHandler struct{}

func (conditionHandler) Execute(ctx context.Context, params models.ActionParams, runCtx *models.RunContext, logger *slog.Logger) (*HandlerResult, error) {
	condition, ok := params.(models.ConditionParams)
	if !ok {
		return nil, fmt.Errorf("%w: condition parameters expected", ErrInvalidParameters)
	}

	result, err := EvaluateCondition(condition.Condition(), runCtx)
	if err != nil {
		return nil, err
	}

	outcome := &HandlerResult{Output: map[string]any{"condition_result": result}}
	if result {
		outcome.SkipTo = condition.TrueStep
	} else {
		outcome.SkipTo = condition.FalseStep
	}

	logger.DebugContext(ctx, "Condition evaluated",
		"field", condition.Field,
		"operator", string(condition.Operator),
		"result", result,
	)

	return outcome, nil
}
