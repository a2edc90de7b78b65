package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplinehq/stepline/pkg/actions/httprequest"
	"github.com/steplinehq/stepline/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNewAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   map[string]any
		expected *httprequest.Action
	}{
		{
			name: "basic GET request",
			config: map[string]any{
				"url": "https://api.example.com/data",
			},
			expected: &httprequest.Action{
				Method:  "GET",
				URL:     "https://api.example.com/data",
				Headers: map[string]string{},
				Body:    "",
				Timeout: 30 * time.Second,
			},
		},
		{
			name: "POST request with headers and body",
			config: map[string]any{
				"method": "post",
				"url":    "https://api.example.com/create",
				"body":   `{"key": "value"}`,
				"headers": map[string]any{
					"Content-Type":  "application/json",
					"Authorization": "Bearer token123",
				},
				"timeout": 5.0,
			},
			expected: &httprequest.Action{
				Method: "POST",
				URL:    "https://api.example.com/create",
				Body:   `{"key": "value"}`,
				Headers: map[string]string{
					"Content-Type":  "application/json",
					"Authorization": "Bearer token123",
				},
				Timeout: 5 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			action, err := httprequest.NewAction(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, action)
		})
	}
}

func TestNewActionInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := httprequest.NewAction(map[string]any{})
	require.ErrorIs(t, err, httprequest.ErrHTTPRequestURLInvalid)

	_, err = httprequest.NewAction(map[string]any{"url": "https://example.com/{{ .broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url template")
}

func TestActionExecuteGET(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/42", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "name": "Alice"}`))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"url": server.URL + "/users/{{ .context.user_id }}",
	})
	require.NoError(t, err)

	runCtx := models.NewRunContext("exec-1", "wf-1", map[string]any{"user_id": 42})

	output, err := action.Execute(context.Background(), *runCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, output["status_code"])

	body, ok := output["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", body["name"])
}

func TestActionExecutePOSTTemplatedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any

		require.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, "Alice", payload["name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created": true}`))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"method": "POST",
		"url":    server.URL + "/users",
		"body":   `{"name": "{{ .context.name }}"}`,
		"headers": map[string]any{
			"Authorization": "Bearer {{ .context.token }}",
		},
	})
	require.NoError(t, err)

	runCtx := models.NewRunContext("exec-1", "wf-1", map[string]any{
		"name":  "Alice",
		"token": "token123",
	})

	output, err := action.Execute(context.Background(), *runCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, output["status_code"])
}

func TestActionExecuteErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL})
	require.NoError(t, err)

	runCtx := models.NewRunContext("exec-1", "wf-1", nil)

	_, err = action.Execute(context.Background(), *runCtx, testLogger())
	require.ErrorIs(t, err, httprequest.ErrHTTPRequestFailed)
}

func TestFactory(t *testing.T) {
	t.Parallel()

	factory := httprequest.NewActionFactory()
	assert.Equal(t, "http_request", factory.ID())

	schema := factory.Schema()
	assert.Equal(t, "object", schema["type"])

	action, err := factory.Create(map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.NotNil(t, action)
}
