package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/steplinehq/stepline/pkg/eventbus"
	"github.com/steplinehq/stepline/pkg/events"
	"github.com/steplinehq/stepline/pkg/mocks"
	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
	"github.com/steplinehq/stepline/pkg/persistence/file"
	"github.com/steplinehq/stepline/pkg/registry"
	"github.com/steplinehq/stepline/pkg/workflow"
)

// capturingBus records published events so tests can assert on the lifecycle
// stream without a real broker.
type capturingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *capturingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *capturingBus) Types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		types = append(types, event.GetType())
	}

	return types
}

type executionFixture struct {
	workflows  *Workflow
	executions *Execution
	bus        *capturingBus
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p := file.NewPersistence(t.TempDir())
	bus := &capturingBus{}

	executor := workflow.NewExecutor(persistence.NewExecutionStore(p), registry.NewRegistry(logger), logger)

	return &executionFixture{
		workflows:  NewWorkflow(p),
		executions: NewExecution(p, executor, bus, logger),
		bus:        bus,
	}
}

// activeWorkflow creates and activates a workflow whose single transform step
// always succeeds.
func (f *executionFixture) activeWorkflow(t *testing.T, name string) *models.Workflow {
	t.Helper()

	created, err := f.workflows.Create(t.Context(), draftWorkflow("owner-1", name))
	require.NoError(t, err)

	activated, err := f.workflows.UpdateStatus(t.Context(), created.ID, "owner-1", models.WorkflowStatusActive)
	require.NoError(t, err)

	return activated
}

func TestExecution_Run(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.activeWorkflow(t, "Happy Path")

	summary, err := f.executions.Run(t.Context(), wf.ID, "owner-1", map[string]any{"tenant": "acme"})
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, models.SummaryStatusCompleted, summary.Status)
	assert.Equal(t, wf.ID, summary.Workflow.ID)
	assert.Equal(t, 2, summary.CompletedSteps)
	assert.Equal(t, 0, summary.FailedSteps)

	// Lifecycle events went out in order
	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
	}, f.bus.Types())

	started, ok := f.bus.events[0].(events.ExecutionStarted)
	require.True(t, ok)
	assert.Equal(t, summary.ExecutionID, started.ExecutionID)
	assert.Equal(t, "Happy Path", started.WorkflowName)
	assert.Equal(t, "acme", started.Params["tenant"])

	completed, ok := f.bus.events[1].(events.ExecutionCompleted)
	require.True(t, ok)
	assert.Equal(t, summary.ExecutionID, completed.ExecutionID)
	assert.Equal(t, string(models.ExecutionStatusCompleted), completed.Status)
	assert.Equal(t, 2, completed.CompletedSteps)
}

func TestExecution_Run_Preconditions(t *testing.T) {
	f := newExecutionFixture(t)

	// Missing workflow
	_, err := f.executions.Run(t.Context(), "missing", "owner-1", nil)
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)

	// Workflow owned by someone else looks absent
	wf := f.activeWorkflow(t, "Foreign")
	_, err = f.executions.Run(t.Context(), wf.ID, "owner-2", nil)
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	// Draft workflow is not runnable
	draft, err := f.workflows.Create(t.Context(), draftWorkflow("owner-1", "Still Draft"))
	require.NoError(t, err)

	_, err = f.executions.Run(t.Context(), draft.ID, "owner-1", nil)
	require.Error(t, err)
	assert.True(t, IsInvalidStateError(err))
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotActive)
	assert.Contains(t, err.Error(), "not active")

	// Active workflow whose steps are all disabled has nothing to run
	stepless := f.activeWorkflow(t, "Hollow")
	for _, step := range stepless.Steps {
		active := false
		_, err = f.workflows.UpdateStep(t.Context(), stepless.ID, "owner-1", step.ID, UpdateStepRequest{Active: &active})
		require.NoError(t, err)
	}

	_, err = f.executions.Run(t.Context(), stepless.ID, "owner-1", nil)
	require.Error(t, err)
	assert.True(t, IsInvalidStateError(err))
	assert.ErrorIs(t, err, workflow.ErrWorkflowHasNoSteps)
	assert.Contains(t, err.Error(), "no steps")

	// No events for runs that never started
	assert.Empty(t, f.bus.Types())
}

func TestExecution_Run_StepFailurePublishesEvents(t *testing.T) {
	f := newExecutionFixture(t)

	wf := f.activeWorkflow(t, "Flaky Custom")

	// A custom step naming an unregistered action fails without retries.
	_, err := f.workflows.AddStep(t.Context(), wf.ID, "owner-1", &models.WorkflowStep{
		StepOrder:  3,
		Name:       "call missing action",
		Action:     models.ActionCustom,
		Parameters: map[string]any{"action": "does-not-exist"},
		Active:     true,
	})
	require.NoError(t, err)

	summary, err := f.executions.Run(t.Context(), wf.ID, "owner-1", nil)
	require.NoError(t, err, "step failures are not run errors")

	assert.Equal(t, models.SummaryStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.CompletedSteps)
	assert.Equal(t, 1, summary.FailedSteps)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.StepFailedEvent,
		events.ExecutionFailedEvent,
	}, f.bus.Types())

	stepFailed, ok := f.bus.events[1].(events.StepFailed)
	require.True(t, ok)
	assert.Equal(t, "call missing action", stepFailed.StepName)
	assert.Equal(t, 1, stepFailed.Attempts)
	assert.NotEmpty(t, stepFailed.Error)

	failed, ok := f.bus.events[2].(events.ExecutionFailed)
	require.True(t, ok)
	assert.Equal(t, string(models.ExecutionStatusFailed), failed.Status)
	assert.Equal(t, stepFailed.Error, failed.Error)
	assert.Equal(t, 1, failed.FailedSteps)
}

func TestExecution_Get(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.activeWorkflow(t, "Recorded")

	summary, err := f.executions.Run(t.Context(), wf.ID, "owner-1", nil)
	require.NoError(t, err)

	execution, err := f.executions.Get(t.Context(), summary.ExecutionID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, wf.ID, execution.WorkflowID)
	assert.NotNil(t, execution.CompletedAt)

	// Another owner cannot tell this execution apart from a missing one.
	_, err = f.executions.Get(t.Context(), summary.ExecutionID, "owner-2")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = f.executions.Get(t.Context(), "missing", "owner-1")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestExecution_ListByWorkflow(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.activeWorkflow(t, "Repeated")

	for range 3 {
		_, err := f.executions.Run(t.Context(), wf.ID, "owner-1", nil)
		require.NoError(t, err)
	}

	executions, err := f.executions.ListByWorkflow(t.Context(), wf.ID, "owner-1")
	require.NoError(t, err)
	assert.Len(t, executions, 3)

	// Owner scoping applies to the listing too
	_, err = f.executions.ListByWorkflow(t.Context(), wf.ID, "owner-2")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_Logs(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.activeWorkflow(t, "Chatty")

	summary, err := f.executions.Run(t.Context(), wf.ID, "owner-1", nil)
	require.NoError(t, err)

	logs, err := f.executions.Logs(t.Context(), summary.ExecutionID, "owner-1")
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	assert.Equal(t, "execution started", logs[0].Message)
	assert.Equal(t, "execution completed", logs[len(logs)-1].Message)

	_, err = f.executions.Logs(t.Context(), summary.ExecutionID, "owner-2")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	_, err = f.executions.Logs(t.Context(), "missing", "owner-1")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_Enqueue(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.activeWorkflow(t, "Deferred")

	requestID, err := f.executions.Enqueue(t.Context(), wf.ID, "owner-1", map[string]any{"tenant": "acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	require.Equal(t, []events.EventType{events.WorkflowRunRequestedEvent}, f.bus.Types())

	request, ok := f.bus.events[0].(events.WorkflowRunRequested)
	require.True(t, ok)
	assert.Equal(t, requestID, request.ID)
	assert.Equal(t, wf.ID, request.WorkflowID)
	assert.Equal(t, "owner-1", request.OwnerID)
	assert.Equal(t, "acme", request.Params["tenant"])

	// No execution record exists until a worker runs the request
	executions, err := f.executions.ListByWorkflow(t.Context(), wf.ID, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecution_Enqueue_Preconditions(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.executions.Enqueue(t.Context(), "missing", "owner-1", nil)
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	draft, err := f.workflows.Create(t.Context(), draftWorkflow("owner-1", "Parked"))
	require.NoError(t, err)

	_, err = f.executions.Enqueue(t.Context(), draft.ID, "owner-1", nil)
	require.Error(t, err)
	assert.True(t, IsInvalidStateError(err))
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotActive)

	assert.Empty(t, f.bus.Types(), "rejected requests publish nothing")
}

// A broker outage during Enqueue must come back to the caller as an internal
// error rather than a silently dropped request.
func TestExecution_Enqueue_PublishFailure(t *testing.T) {
	mockPersistence := mocks.NewMockPersistence()
	mockBus := &mocks.MockEventBus{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	executor := workflow.NewExecutor(persistence.NewExecutionStore(mockPersistence), registry.NewRegistry(logger), logger)
	service := NewExecution(mockPersistence, executor, mockBus, logger)

	wf := &models.Workflow{
		ID:      "wf-1",
		OwnerID: "owner-1",
		Name:    "Mocked",
		Status:  models.WorkflowStatusActive,
		Steps: []*models.WorkflowStep{
			{ID: "wf-1-step", WorkflowID: "wf-1", StepOrder: 1, Name: "checkpoint", Action: models.ActionNoop, Active: true},
		},
	}

	mockPersistence.GetMockWorkflowRepository().
		On("GetWithSteps", mock.Anything, "wf-1", "owner-1").Return(wf, nil).Once()
	mockBus.
		On("Publish", mock.Anything, "wf-1", mock.AnythingOfType("events.WorkflowRunRequested")).
		Return(assert.AnError).Once()

	_, err := service.Enqueue(t.Context(), "wf-1", "owner-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, CodeInternal, serviceErr.Code)

	mockPersistence.GetMockWorkflowRepository().AssertExpectations(t)
	mockBus.AssertExpectations(t)
}
