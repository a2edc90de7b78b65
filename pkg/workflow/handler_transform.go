package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/template"
)

type transformHandler struct{}

func (transformHandler) Execute(_ context.Context, params models.ActionParams, runCtx *models.RunContext, _ *slog.Logger) (*HandlerResult, error) {
	transform, ok := params.(models.TransformParams)
	if !ok {
		return nil, fmt.Errorf("%w: transform parameters expected", ErrInvalidParameters)
	}

	switch transform.Operation {
	case models.TransformOperationMap:
		output := make(map[string]any, len(transform.Mapping))

		for target, source := range transform.Mapping {
			value, found := runCtx.Resolve(source)
			if !found {
				return nil, fmt.Errorf("%w: context key %q not found", ErrInvalidParameters, source)
			}

			output[target] = value
		}

		return &HandlerResult{Output: output}, nil
	case models.TransformOperationSet:
		output := make(map[string]any, len(transform.Values))
		maps.Copy(output, transform.Values)

		return &HandlerResult{Output: output}, nil
	case models.TransformOperationTemplate:
		output := make(map[string]any, len(transform.Mapping))

		for target, tmpl := range transform.Mapping {
			value, err := template.RenderValue(tmpl, runCtx)
			if err != nil {
				return nil, fmt.Errorf("%w: template for %q: %s", ErrInvalidParameters, target, err)
			}

			output[target] = value
		}

		return &HandlerResult{Output: output}, nil
	default:
		return nil, fmt.Errorf("%w: unknown transform operation %q", ErrInvalidParameters, transform.Operation)
	}
}
