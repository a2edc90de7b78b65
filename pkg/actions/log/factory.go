package log

import (
	"github.com/steplinehq/stepline/pkg/protocol"
)

// ActionFactory creates log action instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "log"
}

// Create creates a new log action instance with the provided configuration.
func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config), nil
}

// Schema returns the JSON schema for the action configuration.
func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Workflow step completed successfully",
					"Processing user: {{ .context.user_name }}",
					"Received {{ .context.count }} records at {{ now }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
