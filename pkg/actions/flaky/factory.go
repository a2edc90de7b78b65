package flaky

import (
	"github.com/steplinehq/stepline/pkg/protocol"
	"github.com/steplinehq/stepline/pkg/ratelimit"
)

// ActionFactory creates flaky action instances sharing one counter store.
type ActionFactory struct {
	counters ratelimit.CounterStore
}

func NewActionFactory(counters ratelimit.CounterStore) *ActionFactory {
	return &ActionFactory{counters: counters}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "flaky"
}

// Create creates a new flaky action instance with the provided configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.counters), nil
}

// Schema returns the JSON schema for the action configuration.
func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fail_times": map[string]any{
				"type":        "integer",
				"description": "How many attempts fail before the action succeeds",
				"default":     0,
				"minimum":     0,
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Counter key, for workflows with more than one flaky step",
				"default":     "default",
			},
			"output": map[string]any{
				"type":        "object",
				"description": "Extra values merged into the step output on success",
			},
		},
		"additionalProperties": false,
	}
}
