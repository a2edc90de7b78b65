package httprequest

import (
	"github.com/steplinehq/stepline/pkg/protocol"
)

// ActionFactory creates HTTP request action instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action.
func (*ActionFactory) ID() string {
	return "http_request"
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
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating with context values.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{ .context.user_id }}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use (GET, POST, PUT, DELETE, etc.)",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON or text content.",
				"examples": []string{
					`{"name": "John Doe", "email": "john@example.com"}`,
					`{"user_id": "{{ .context.user_id }}", "timestamp": "{{ now }}"}`,
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30, //nolint:mnd // schema default
				"minimum":     0,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
