package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// MockPersistence is a mock implementation of the persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	WorkflowRepo     *MockWorkflowRepository
	RunRepo          *MockRunRepository
	ExecutionLogRepo *MockExecutionLogRepository
}

// NewMockPersistence creates a mock persistence with wired repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkflowRepo:     &MockWorkflowRepository{},
		RunRepo:          &MockRunRepository{},
		ExecutionLogRepo: &MockExecutionLogRepository{},
	}
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.WorkflowRepo
}

func (m *MockPersistence) Runs() persistence.RunRepository {
	return m.RunRepo
}

func (m *MockPersistence) ExecutionLog() persistence.ExecutionLogRepository {
	return m.ExecutionLogRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of the persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, opts)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) PublishedByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, groupID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) DraftByGroup(ctx context.Context, groupID string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, groupID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) PublishedByOrganization(ctx context.Context, organizationID string) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, organizationID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

// MockRunRepository is a mock implementation of the persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *models.RunInstance) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.RunInstance, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunInstance), args.Error(1)
}

func (m *MockRunRepository) SaveRun(ctx context.Context, run *models.RunInstance) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) UpdateActiveRun(ctx context.Context, run *models.RunInstance) (bool, error) {
	args := m.Called(ctx, run)

	return args.Bool(0), args.Error(1)
}

func (m *MockRunRepository) DueRuns(ctx context.Context, before time.Time, limit int) ([]*models.RunInstance, error) {
	args := m.Called(ctx, before, limit)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RunInstance), args.Error(1)
}

func (m *MockRunRepository) ClaimRun(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)

	return args.Bool(0), args.Error(1)
}

func (m *MockRunRepository) ActiveRun(ctx context.Context, workflowID, subjectID string) (*models.RunInstance, error) {
	args := m.Called(ctx, workflowID, subjectID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunInstance), args.Error(1)
}

func (m *MockRunRepository) RunsBySubject(ctx context.Context, organizationID, subjectID string) ([]*models.RunInstance, error) {
	args := m.Called(ctx, organizationID, subjectID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RunInstance), args.Error(1)
}

func (m *MockRunRepository) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.RunInstance, error) {
	args := m.Called(ctx, workflowID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RunInstance), args.Error(1)
}

// MockExecutionLogRepository is a mock implementation of the persistence.ExecutionLogRepository interface.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Append(ctx context.Context, record *models.NodeExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) RecordsByRun(ctx context.Context, runID string) ([]*models.NodeExecutionRecord, error) {
	args := m.Called(ctx, runID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecutionRecord), args.Error(1)
}

func (m *MockExecutionLogRepository) LastAttempt(ctx context.Context, runID, nodeID string) (int, error) {
	args := m.Called(ctx, runID, nodeID)

	return args.Int(0), args.Error(1)
}

func (m *MockExecutionLogRepository) HasSucceeded(ctx context.Context, runID, nodeID string) (bool, error) {
	args := m.Called(ctx, runID, nodeID)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}
