package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/steplinehq/stepline/pkg/models"
)

// EvaluateCondition evaluates a single declarative condition against the run
// context. Absence of the field is tolerated only by exists/notExists; every
// other operator fails with ErrInvalidParameters on an unresolvable field.
// gt/lt require both operands to be numeric.
func EvaluateCondition(cond models.Condition, runCtx *models.RunContext) (bool, error) {
	if cond.Field == "" {
		return false, fmt.Errorf("%w: condition field is required", ErrInvalidParameters)
	}

	if !cond.Operator.Known() {
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidParameters, cond.Operator)
	}

	value, found := runCtx.Resolve(cond.Field)

	switch cond.Operator {
	case models.OperatorExists:
		return found, nil
	case models.OperatorNotExists:
		return !found, nil
	}

	if !found {
		return false, fmt.Errorf("%w: field %q not present in context", ErrInvalidParameters, cond.Field)
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return valuesEqual(value, cond.Value), nil
	case models.OperatorNotEquals:
		return !valuesEqual(value, cond.Value), nil
	case models.OperatorGt, models.OperatorLt:
		left, leftOk := toFloat(value)
		right, rightOk := toFloat(cond.Value)

		if !leftOk || !rightOk {
			return false, fmt.Errorf("%w: operator %q requires numeric operands", ErrInvalidParameters, cond.Operator)
		}

		if cond.Operator == models.OperatorGt {
			return left > right, nil
		}

		return left < right, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidParameters, cond.Operator)
	}
}

// valuesEqual compares numerically when both sides are numbers, so 3 equals
// 3.0 regardless of how the values were decoded.
func valuesEqual(a, b any) bool {
	if left, ok := toFloat(a); ok {
		if right, ok := toFloat(b); ok {
			return left == right
		}

		return false
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}
