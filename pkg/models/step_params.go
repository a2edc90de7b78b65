package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidParameters is returned when step parameters fail schema validation
// or cannot be decoded into the action's parameter struct.
var ErrInvalidParameters = errors.New("invalid step parameters")

// ActionParams is the decoded, per-action parameter payload of a step.
// Exactly one concrete type exists per action type.
type ActionParams interface {
	actionParams()
}

type NoopParams struct{}

// TransformParams describes a declarative mapping from context keys to new keys.
type TransformParams struct {
	// Operation selects the transform: "map" copies context paths to new keys,
	// "set" merges the literal values, "template" renders each mapping value
	// as a text template into the target key.
	Operation string            `json:"operation"`
	Mapping   map[string]string `json:"mapping,omitempty"`
	Values    map[string]any    `json:"values,omitempty"`
}

const (
	TransformOperationMap      = "map"
	TransformOperationSet      = "set"
	TransformOperationTemplate = "template"
)

// ConditionParams describes a condition step: the comparison plus optional
// branch targets by step order.
type ConditionParams struct {
	Field     string   `json:"field"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value,omitempty"`
	TrueStep  *int     `json:"true_step,omitempty"`
	FalseStep *int     `json:"false_step,omitempty"`
}

// Condition returns the comparison portion of the parameters.
func (p ConditionParams) Condition() Condition {
	return Condition{Field: p.Field, Operator: p.Operator, Value: p.Value}
}

// CustomParams names a registry action and carries its configuration.
type CustomParams struct {
	Action string         `json:"action"`
	Config map[string]any `json:"config,omitempty"`
}

func (NoopParams) actionParams()      {}
func (TransformParams) actionParams() {}
func (ConditionParams) actionParams() {}
func (CustomParams) actionParams()    {}

// ActionSchema returns the JSON schema for the given action's parameters,
// or nil for unknown action types.
func ActionSchema(action ActionType) map[string]any {
	return actionSchemas[action]
}

var actionSchemas = map[ActionType]map[string]any{
	ActionNoop: {
		"type":                 "object",
		"additionalProperties": false,
	},
	ActionTransform: {
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{TransformOperationMap, TransformOperationSet, TransformOperationTemplate},
			},
			"mapping": map[string]any{
				"type":        "object",
				"description": "Target key to source context path (or template) mapping.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"values": map[string]any{
				"type":        "object",
				"description": "Literal values merged into the context by the set operation.",
			},
		},
		"required":             []string{"operation"},
		"additionalProperties": false,
	},
	ActionCondition: {
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Dotted path resolved against the run context.",
			},
			"operator": map[string]any{
				"type": "string",
				"enum": []string{
					string(OperatorEquals), string(OperatorNotEquals),
					string(OperatorExists), string(OperatorNotExists),
					string(OperatorGt), string(OperatorLt),
				},
			},
			"value": map[string]any{},
			"true_step": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"false_step": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
		},
		"required":             []string{"field", "operator"},
		"additionalProperties": false,
	},
	ActionCustom: {
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Registered custom action identifier.",
			},
			"config": map[string]any{
				"type": "object",
			},
		},
		"required":             []string{"action"},
		"additionalProperties": false,
	},
}

// DecodeStepParams validates a step's raw parameters against the action's
// schema and decodes them into the matching ActionParams type. All failures
// wrap ErrInvalidParameters.
func DecodeStepParams(step *WorkflowStep) (ActionParams, error) {
	schema, ok := actionSchemas[step.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidParameters, step.Action)
	}

	params := step.Parameters
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, result.Errors()[0].String())
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, err)
	}

	switch step.Action {
	case ActionNoop:
		return NoopParams{}, nil
	case ActionTransform:
		var p TransformParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, err)
		}

		return p, nil
	case ActionCondition:
		var p ConditionParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, err)
		}

		return p, nil
	case ActionCustom:
		var p CustomParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParameters, err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidParameters, step.Action)
	}
}
