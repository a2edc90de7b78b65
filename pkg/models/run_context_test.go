package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunContext_CopiesSeed(t *testing.T) {
	seed := map[string]any{"city": "Berlin"}
	runCtx := NewRunContext("exec-1", "wf-1", seed)

	runCtx.Merge(map[string]any{"city": "Lisbon"})

	assert.Equal(t, "Berlin", seed["city"])
	assert.Equal(t, "Lisbon", runCtx.Values["city"])
}

func TestRunContext_Merge_LastWriteWins(t *testing.T) {
	runCtx := NewRunContext("exec-1", "wf-1", map[string]any{"a": 1, "b": 2})

	runCtx.Merge(map[string]any{"b": 20, "c": 30})

	assert.Equal(t, 1, runCtx.Values["a"])
	assert.Equal(t, 20, runCtx.Values["b"])
	assert.Equal(t, 30, runCtx.Values["c"])
}

func TestRunContext_Resolve(t *testing.T) {
	runCtx := NewRunContext("exec-1", "wf-1", map[string]any{
		"user": map[string]any{
			"address": map[string]any{"city": "Berlin"},
			"name":    "Ada",
		},
		"count": 3,
	})

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{name: "top level", path: "count", want: 3, found: true},
		{name: "nested", path: "user.name", want: "Ada", found: true},
		{name: "deeply nested", path: "user.address.city", want: "Berlin", found: true},
		{name: "missing key", path: "user.email", found: false},
		{name: "through non-map", path: "count.value", found: false},
		{name: "empty path", path: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := runCtx.Resolve(tt.path)
			assert.Equal(t, tt.found, ok)

			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
