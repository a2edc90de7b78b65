package models

// ActionType identifies the kind of work a step performs.
type ActionType string

const (
	ActionNoop      ActionType = "noop"
	ActionTransform ActionType = "transform"
	ActionCondition ActionType = "condition"
	ActionCustom    ActionType = "custom"
)

// Known reports whether the action type is one the engine can dispatch.
func (a ActionType) Known() bool {
	switch a {
	case ActionNoop, ActionTransform, ActionCondition, ActionCustom:
		return true
	default:
		return false
	}
}

type WorkflowStep struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	StepOrder  int            `json:"step_order" validate:"required,gt=0"`
	Name       string         `json:"name"       validate:"required"`
	Action     ActionType     `json:"action"     validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Active     bool           `json:"active"`
}
