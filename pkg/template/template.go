// Package template provides templating functionality for dynamic step configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
)

// RenderValue renders a template against the run context of an execution.
// Context values are exposed under .context, execution identity under
// .execution, and process environment under .env.
func RenderValue(input string, runCtx *models.RunContext) (any, error) {
	data := map[string]any{
		"context": runCtx.Values,
		"env":     getEnvVars(),
		"execution": map[string]any{
			"id":          runCtx.ExecutionID,
			"workflow_id": runCtx.WorkflowID,
		},
	}

	return Render(input, data)
}

// Parse checks that input is a well-formed template without executing it.
func Parse(input string) (*template.Template, error) {
	return template.New("transform").Funcs(funcMap()).Parse(input)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}
			num := make([]byte, 1)
			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
	}
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := buf.String()

	// Try to parse as JSON if it looks like JSON
	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	// Try to parse as number
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
