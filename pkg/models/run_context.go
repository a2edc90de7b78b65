package models

import (
	"maps"
	"strings"
)

// RunContext is the transient key/value state threaded through one run. It is
// seeded from caller parameters, extended by step outputs, and exclusively
// owned by a single execution. It is never persisted as its own entity.
type RunContext struct {
	ExecutionID string
	WorkflowID  string
	Values      map[string]any
}

// NewRunContext seeds a fresh context from the caller parameters. The seed map
// is copied so later merges never mutate caller state.
func NewRunContext(executionID, workflowID string, seed map[string]any) *RunContext {
	values := make(map[string]any, len(seed))
	maps.Copy(values, seed)

	return &RunContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Values:      values,
	}
}

// Merge folds a step output into the context. The merge is flat: output keys
// overwrite existing keys (last write wins).
func (c *RunContext) Merge(output map[string]any) {
	if c.Values == nil {
		c.Values = make(map[string]any, len(output))
	}

	maps.Copy(c.Values, output)
}

// Resolve walks a dotted path through the context values. Each intermediate
// segment must be a map keyed by strings.
func (c *RunContext) Resolve(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = c.Values

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
