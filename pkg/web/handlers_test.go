package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logaction "github.com/steplinehq/stepline/pkg/actions/log"
	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/persistence/file"
	"github.com/steplinehq/stepline/pkg/ratelimit"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/services"
	"github.com/steplinehq/stepline/pkg/web"
	"github.com/steplinehq/stepline/pkg/workflow"
)

const testOwner = "owner-1"

type stubBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *stubBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *stubBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.events)
}

type testAPI struct {
	app       *fiber.App
	workflows *services.Workflow
	bus       *stubBus
}

func setupTestAPI(t *testing.T, limiter *ratelimit.Limiter) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(logaction.NewActionFactory())

	bus := &stubBus{}
	workflowService := services.NewWorkflow(p)
	executor := workflow.NewExecutor(persistence.NewExecutionStore(p), reg, logger)
	executionService := services.NewExecution(p, executor, bus, logger)

	handlers := web.NewAPIHandlers(
		workflowService,
		executionService,
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
		limiter,
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testAPI{app: app, workflows: workflowService, bus: bus}
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	return setupTestAPI(t, nil)
}

// jsonRequestAs builds a request carrying the owner header. A string payload
// is sent verbatim so tests can send malformed JSON.
func jsonRequestAs(t *testing.T, owner, method, target string, payload any) *http.Request {
	t.Helper()

	var body io.Reader

	switch p := payload.(type) {
	case nil:
	case string:
		body = strings.NewReader(p)
	default:
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	if owner != "" {
		req.Header.Set(web.OwnerHeader, owner)
	}

	return req
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	return jsonRequestAs(t, testOwner, method, target, payload)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func (api *testAPI) createWorkflow(t *testing.T, owner, name string) *models.Workflow {
	t.Helper()

	created, err := api.workflows.Create(context.Background(), &models.Workflow{
		OwnerID:     owner,
		Name:        name,
		Description: "created by tests",
		Steps: []*models.WorkflowStep{
			{
				Name:      "seed context",
				Action:    models.ActionTransform,
				StepOrder: 1,
				Active:    true,
				Parameters: map[string]any{
					"operation": "set",
					"values":    map[string]any{"region": "eu-west-1"},
				},
			},
			{
				Name:      "checkpoint",
				Action:    models.ActionNoop,
				StepOrder: 2,
				Active:    true,
			},
		},
	})
	require.NoError(t, err)

	return created
}

func (api *testAPI) activeWorkflow(t *testing.T, owner, name string) *models.Workflow {
	t.Helper()

	created := api.createWorkflow(t, owner, name)

	activated, err := api.workflows.UpdateStatus(context.Background(), created.ID, owner, models.WorkflowStatusActive)
	require.NoError(t, err)

	return activated
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful creation with steps",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Nightly Sync",
				Description: "Sync tenant data overnight",
				Schedule:    "0 2 * * *",
				Steps: []web.StepRequest{
					{
						Name:      "seed context",
						Action:    "transform",
						StepOrder: 1,
						Parameters: map[string]any{
							"operation": "set",
							"values":    map[string]any{"region": "eu-west-1"},
						},
					},
					{Name: "checkpoint", Action: "noop", StepOrder: 2},
				},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var created models.Workflow

				require.NoError(t, json.Unmarshal(body, &created))
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, testOwner, created.OwnerID)
				assert.Equal(t, "Nightly Sync", created.Name)
				assert.Equal(t, models.WorkflowStatusDraft, created.Status)
				require.Len(t, created.Steps, 2)
				assert.NotEmpty(t, created.Steps[0].ID)
				assert.True(t, created.Steps[0].Active)
			},
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateWorkflowRequest{Description: "no name"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateWorkflowRequest{Name: "Ny"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - step missing action",
			requestBody: web.CreateWorkflowRequest{
				Name: "Broken Steps",
				Steps: []web.StepRequest{
					{Name: "seed context", StepOrder: 1},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - step parameters rejected by schema",
			requestBody: web.CreateWorkflowRequest{
				Name: "Broken Params",
				Steps: []web.StepRequest{
					{
						Name:       "seed context",
						Action:     "transform",
						StepOrder:  1,
						Parameters: map[string]any{"operation": "reverse"},
					},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - bad schedule",
			requestBody: web.CreateWorkflowRequest{
				Name:     "Bad Schedule",
				Schedule: "every fortnight",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)

			status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows", tt.requestBody))
			assert.Equal(t, tt.expectedStatus, status)

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_CreateWorkflow_DuplicateName(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	api.createWorkflow(t, testOwner, "Nightly Sync")

	req := jsonRequest(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "nightly sync"})

	status, body := doRequest(t, api.app, req)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "already in use")

	// The same name is fine under another owner.
	req = jsonRequestAs(t, "owner-2", http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "Nightly Sync"})

	status, _ = doRequest(t, api.app, req)
	assert.Equal(t, http.StatusCreated, status)
}

func TestAPIHandlers_RequireOwner(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	routes := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/workflows"},
		{http.MethodPost, "/workflows"},
		{http.MethodGet, "/workflows/some-id"},
		{http.MethodPost, "/workflows/some-id/run"},
		{http.MethodGet, "/executions/some-id"},
	}

	for _, route := range routes {
		status, body := doRequest(t, api.app, jsonRequestAs(t, "", route.method, route.target, nil))
		assert.Equal(t, http.StatusBadRequest, status, "%s %s", route.method, route.target)
		assert.Contains(t, string(body), web.OwnerHeader)
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testOwner, "Nightly Sync")

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, nil))
	require.Equal(t, http.StatusOK, status)

	var fetched models.Workflow

	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Len(t, fetched.Steps, 2)

	// Missing id and foreign owner both read as not found.
	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, api.app, jsonRequestAs(t, "owner-2", http.MethodGet, "/workflows/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ListWorkflows(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	api.createWorkflow(t, testOwner, "Alpha")
	api.createWorkflow(t, testOwner, "Beta")
	api.createWorkflow(t, testOwner, "Gamma")
	api.createWorkflow(t, "owner-2", "Delta")

	type listResponse struct {
		Workflows   []*models.Workflow `json:"workflows"`
		HasNextPage bool               `json:"has_next_page"`
		Pagination  struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"pagination"`
	}

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows?limit=2", nil))
	require.Equal(t, http.StatusOK, status)

	var page listResponse

	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Workflows, 2)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, 2, page.Pagination.Limit)

	status, body = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows?limit=2&offset=2", nil))
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Workflows, 1)
	assert.False(t, page.HasNextPage)
	assert.Equal(t, 2, page.Pagination.Offset)

	// The owner never sees another owner's workflows.
	for _, wf := range page.Workflows {
		assert.Equal(t, testOwner, wf.OwnerID)
	}

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows?status=published", nil))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ListWorkflows_StatusFilter(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	api.activeWorkflow(t, testOwner, "Active One")
	api.createWorkflow(t, testOwner, "Draft One")

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows?status=active", nil))
	require.Equal(t, http.StatusOK, status)

	var page struct {
		Workflows []*models.Workflow `json:"workflows"`
	}

	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Workflows, 1)
	assert.Equal(t, "Active One", page.Workflows[0].Name)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		seed           bool
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "partial update - name only",
			seed: true,
			requestBody: web.UpdateWorkflowRequest{
				Name: ptr("Renamed Sync"),
			},
			expectedStatus: http.StatusOK,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var updated models.Workflow

				require.NoError(t, json.Unmarshal(body, &updated))
				assert.Equal(t, "Renamed Sync", updated.Name)
				assert.Equal(t, "created by tests", updated.Description)
			},
		},
		{
			name:           "workflow not found",
			seed:           false,
			requestBody:    web.UpdateWorkflowRequest{Name: ptr("Renamed Sync")},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "validation error - name too short",
			seed:           true,
			requestBody:    web.UpdateWorkflowRequest{Name: ptr("Ny")},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - bad schedule",
			seed:           true,
			requestBody:    web.UpdateWorkflowRequest{Schedule: ptr("every fortnight")},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty update is a no-op",
			seed:           true,
			requestBody:    web.UpdateWorkflowRequest{},
			expectedStatus: http.StatusOK,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var updated models.Workflow

				require.NoError(t, json.Unmarshal(body, &updated))
				assert.Equal(t, "Nightly Sync", updated.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)
			workflowID := "does-not-exist"

			if tt.seed {
				workflowID = api.createWorkflow(t, testOwner, "Nightly Sync").ID
			}

			status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPatch, "/workflows/"+workflowID, tt.requestBody))
			assert.Equal(t, tt.expectedStatus, status)

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_UpdateWorkflow_Archived(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testOwner, "Retired Sync")

	_, err := api.workflows.UpdateStatus(context.Background(), created.ID, testOwner, models.WorkflowStatusArchived)
	require.NoError(t, err)

	req := jsonRequest(t, http.MethodPatch, "/workflows/"+created.ID, web.UpdateWorkflowRequest{Name: ptr("New Name")})

	status, body := doRequest(t, api.app, req)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "archived")
}

func TestAPIHandlers_UpdateWorkflowStatus(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testOwner, "Nightly Sync")

	status, body := doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: "active"},
	))
	require.Equal(t, http.StatusOK, status)

	var updated models.Workflow

	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.WorkflowStatusActive, updated.Status)

	// Unknown statuses never reach the service layer.
	status, _ = doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: "published"},
	))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: "archived"},
	))
	require.Equal(t, http.StatusOK, status)

	// Archived is terminal.
	status, body = doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: "draft"},
	))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "archived")
}

func TestAPIHandlers_UpdateWorkflowStatus_ActivationNeedsSteps(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	created, err := api.workflows.Create(context.Background(), &models.Workflow{
		OwnerID: testOwner,
		Name:    "Empty Workflow",
	})
	require.NoError(t, err)

	status, body := doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: "active"},
	))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "no active steps")
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testOwner, "Nightly Sync")

	status, _ := doRequest(t, api.app, jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Steps(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testOwner, "Nightly Sync")

	status, body := doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/steps",
		web.StepRequest{
			Name:      "branch on region",
			Action:    "condition",
			StepOrder: 3,
			Parameters: map[string]any{
				"field":    "region",
				"operator": "equals",
				"value":    "eu-west-1",
			},
		},
	))
	require.Equal(t, http.StatusCreated, status)

	var step models.WorkflowStep

	require.NoError(t, json.Unmarshal(body, &step))
	assert.NotEmpty(t, step.ID)
	assert.Equal(t, created.ID, step.WorkflowID)
	assert.True(t, step.Active)

	// Step order is unique within a workflow.
	status, body = doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+created.ID+"/steps",
		web.StepRequest{Name: "collides", Action: "noop", StepOrder: 3},
	))
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "step order")

	status, body = doRequest(t, api.app, jsonRequest(
		t, http.MethodPatch, "/workflows/"+created.ID+"/steps/"+step.ID,
		web.UpdateStepRequest{Name: ptr("branch on tenant"), Active: boolPtr(false)},
	))
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, json.Unmarshal(body, &step))
	assert.Equal(t, "branch on tenant", step.Name)
	assert.False(t, step.Active)

	status, _ = doRequest(t, api.app, jsonRequest(
		t, http.MethodPatch, "/workflows/"+created.ID+"/steps/unknown-step",
		web.UpdateStepRequest{Name: ptr("nope")},
	))
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows/"+created.ID+"/steps", nil))
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Steps []*models.WorkflowStep `json:"steps"`
	}

	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Steps, 3)
	assert.Equal(t, 1, listed.Steps[0].StepOrder)
	assert.Equal(t, 3, listed.Steps[2].StepOrder)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID+"/steps/"+step.ID, nil))
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID+"/steps/"+step.ID, nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	active := api.activeWorkflow(t, testOwner, "Nightly Sync")

	status, body := doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+active.ID+"/run",
		web.RunWorkflowRequest{Params: map[string]any{"tenant": "acme"}},
	))
	require.Equal(t, http.StatusOK, status)

	var summary models.ExecutionSummary

	require.NoError(t, json.Unmarshal(body, &summary))
	assert.NotEmpty(t, summary.ExecutionID)
	assert.Equal(t, models.SummaryStatusCompleted, summary.Status)
	assert.Equal(t, active.ID, summary.Workflow.ID)
	assert.Equal(t, 2, summary.CompletedSteps)
	assert.Equal(t, 0, summary.FailedSteps)
}

func TestAPIHandlers_RunWorkflow_EmptyBody(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	active := api.activeWorkflow(t, testOwner, "Nightly Sync")

	status, _ := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+active.ID+"/run", nil))
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_RunWorkflow_Preconditions(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	draft := api.createWorkflow(t, testOwner, "Still Draft")

	status, _ := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/does-not-exist/run", nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+draft.ID+"/run", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "not active")
}

func TestAPIHandlers_RunWorkflow_StepFailure(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	active := api.activeWorkflow(t, testOwner, "Partly Broken")

	_, err := api.workflows.AddStep(context.Background(), active.ID, testOwner, &models.WorkflowStep{
		Name:       "call missing action",
		Action:     models.ActionCustom,
		StepOrder:  3,
		Active:     true,
		Parameters: map[string]any{"action": "does-not-exist"},
	})
	require.NoError(t, err)

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+active.ID+"/run", nil))
	require.Equal(t, http.StatusOK, status)

	var summary models.ExecutionSummary

	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, models.SummaryStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.CompletedSteps)
	assert.Equal(t, 1, summary.FailedSteps)
}

func TestAPIHandlers_RunWorkflow_RateLimited(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounterStore(), 1, time.Minute, logger)

	api := setupTestAPI(t, limiter)
	active := api.activeWorkflow(t, testOwner, "Budgeted")

	status, _ := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+active.ID+"/run", nil))
	require.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+active.ID+"/run", nil))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(body), "rate limit")

	// The budget is per owner, not global.
	other := api.activeWorkflow(t, "owner-2", "Budgeted Too")

	status, _ = doRequest(t, api.app, jsonRequestAs(t, "owner-2", http.MethodPost, "/workflows/"+other.ID+"/run", nil))
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_EnqueueWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	active := api.activeWorkflow(t, testOwner, "Deferred Sync")

	status, body := doRequest(t, api.app, jsonRequest(
		t, http.MethodPost, "/workflows/"+active.ID+"/enqueue",
		web.RunWorkflowRequest{Params: map[string]any{"tenant": "acme"}},
	))
	require.Equal(t, http.StatusAccepted, status)

	var ack web.EnqueueResponse

	require.NoError(t, json.Unmarshal(body, &ack))
	assert.NotEmpty(t, ack.RequestID)
	assert.Equal(t, 1, api.bus.Len())

	// Preconditions hold for async runs too.
	draft := api.createWorkflow(t, testOwner, "Draft Sync")

	status, body = doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+draft.ID+"/enqueue", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "not active")
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	active := api.activeWorkflow(t, testOwner, "Recorded")

	var summary models.ExecutionSummary

	for range 2 {
		status, body := doRequest(t, api.app, jsonRequest(t, http.MethodPost, "/workflows/"+active.ID+"/run", nil))
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(body, &summary))
	}

	status, body := doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/workflows/"+active.ID+"/executions", nil))
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Executions []*models.WorkflowExecution `json:"executions"`
	}

	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed.Executions, 2)

	status, body = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/executions/"+summary.ExecutionID, nil))
	require.Equal(t, http.StatusOK, status)

	var execution models.WorkflowExecution

	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, active.ID, execution.WorkflowID)

	// Logs are append-only; first and last entries frame the run.
	status, body = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/executions/"+summary.ExecutionID+"/logs", nil))
	require.Equal(t, http.StatusOK, status)

	var logs struct {
		Logs []*models.ExecutionLog `json:"logs"`
	}

	require.NoError(t, json.Unmarshal(body, &logs))
	require.NotEmpty(t, logs.Logs)
	assert.Equal(t, "execution started", logs.Logs[0].Message)
	assert.Equal(t, "execution completed", logs.Logs[len(logs.Logs)-1].Message)

	// Execution records are reachable only through their owner.
	status, _ = doRequest(t, api.app, jsonRequestAs(t, "owner-2", http.MethodGet, "/executions/"+summary.ExecutionID, nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, api.app, jsonRequest(t, http.MethodGet, "/executions/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ListActions(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := doRequest(t, api.app, httptest.NewRequest(http.MethodGet, "/actions", nil))
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Actions []registry.ActionInfo `json:"actions"`
	}

	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Actions, 1)
	assert.Equal(t, "log", listed.Actions[0].ID)
	assert.NotEmpty(t, listed.Actions[0].Schema)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := doRequest(t, api.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, status)

	var health struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Checkers struct {
			Registry   string `json:"registry"`
			Repository string `json:"repository"`
		} `json:"checkers"`
	}

	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Checkers.Registry, "healthy")
	assert.Contains(t, health.Checkers.Repository, "healthy")
}

func ptr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}
