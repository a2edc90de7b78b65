package filewrite

import (
	"github.com/steplinehq/stepline/pkg/protocol"
)

// ActionFactory creates file write action instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action.
func (*ActionFactory) ID() string {
	return "file_write"
}

// Create creates a new action from the given configuration.
func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// Schema returns the JSON schema for configuring this action.
func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Destination path for the file. Supports templating with context values.",
				"examples": []string{
					"/tmp/report.json",
					"/var/data/{{ .execution.id }}.json",
				},
			},
			"content": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Content to write. Supports templating. When omitted the run context values are written as JSON.",
				"examples": []string{
					`{"status": "{{ .context.status }}"}`,
					"processed at {{ now }}",
				},
			},
			"overwrite": map[string]any{
				"type":        "boolean",
				"description": "Replace the file if it already exists",
				"default":     false,
			},
		},
		"required":             []string{"path"},
		"additionalProperties": false,
	}
}
