package models

// Operator is the comparison applied by a condition step.
type Operator string

const (
	OperatorEquals    Operator = "equals"
	OperatorNotEquals Operator = "notEquals"
	OperatorExists    Operator = "exists"
	OperatorNotExists Operator = "notExists"
	OperatorGt        Operator = "gt"
	OperatorLt        Operator = "lt"
)

func (o Operator) Known() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorExists, OperatorNotExists, OperatorGt, OperatorLt:
		return true
	default:
		return false
	}
}

// Condition is a single declarative comparison between a context field and a value.
// Field is a dotted path resolved against the run context.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}
