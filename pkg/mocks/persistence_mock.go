package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, workflowID string) (*models.Workflow, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetWithSteps(ctx context.Context, workflowID, ownerID string) (*models.Workflow, error) {
	args := m.Called(ctx, workflowID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListScheduled(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) UpdateProgress(ctx context.Context, executionID, stepID string, result models.StepResult) error {
	args := m.Called(ctx, executionID, stepID, result)

	return args.Error(0)
}

func (m *MockExecutionRepository) Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, completedAt time.Time) error {
	args := m.Called(ctx, executionID, status, completedAt)

	return args.Error(0)
}

// MockExecutionLogRepository is a mock implementation of persistence.ExecutionLogRepository interface.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo     *MockWorkflowRepository
	executionRepo    *MockExecutionRepository
	executionLogRepo *MockExecutionLogRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:     &MockWorkflowRepository{},
		executionRepo:    &MockExecutionRepository{},
		executionLogRepo: &MockExecutionLogRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockExecutionRepository returns the underlying mock execution repository for setting up expectations.
func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

// GetMockExecutionLogRepository returns the underlying mock execution log repository for setting up expectations.
func (m *MockPersistence) GetMockExecutionLogRepository() *MockExecutionLogRepository {
	return m.executionLogRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return m.executionLogRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
