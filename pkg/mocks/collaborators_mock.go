package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dripflow/dripflow/pkg/models"
)

// MockPipelineService is a mock implementation of the protocol.PipelineService interface.
type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) GetSubject(ctx context.Context, organizationID, subjectID string) (*models.Subject, error) {
	args := m.Called(ctx, organizationID, subjectID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Subject), args.Error(1)
}

func (m *MockPipelineService) MoveStage(ctx context.Context, organizationID, subjectID, stageID string) error {
	args := m.Called(ctx, organizationID, subjectID, stageID)

	return args.Error(0)
}

func (m *MockPipelineService) AddTag(ctx context.Context, organizationID, subjectID, tagID string) error {
	args := m.Called(ctx, organizationID, subjectID, tagID)

	return args.Error(0)
}

func (m *MockPipelineService) RemoveTag(ctx context.Context, organizationID, subjectID, tagID string) error {
	args := m.Called(ctx, organizationID, subjectID, tagID)

	return args.Error(0)
}

func (m *MockPipelineService) StageExists(ctx context.Context, organizationID, stageID string) (bool, error) {
	args := m.Called(ctx, organizationID, stageID)

	return args.Bool(0), args.Error(1)
}

func (m *MockPipelineService) TagExists(ctx context.Context, organizationID, tagID string) (bool, error) {
	args := m.Called(ctx, organizationID, tagID)

	return args.Bool(0), args.Error(1)
}

// MockMessagingService is a mock implementation of the protocol.MessagingService interface.
type MockMessagingService struct {
	mock.Mock
}

func (m *MockMessagingService) SendTemplate(ctx context.Context, organizationID, subjectID, templateID, subjectLine string) error {
	args := m.Called(ctx, organizationID, subjectID, templateID, subjectLine)

	return args.Error(0)
}

func (m *MockMessagingService) TemplateExists(ctx context.Context, organizationID, templateID string) (bool, error) {
	args := m.Called(ctx, organizationID, templateID)

	return args.Bool(0), args.Error(1)
}

// MockWebhookDispatcher is a mock implementation of the protocol.WebhookDispatcher interface.
type MockWebhookDispatcher struct {
	mock.Mock
}

func (m *MockWebhookDispatcher) Deliver(ctx context.Context, organizationID, endpointID string, payload map[string]any) error {
	args := m.Called(ctx, organizationID, endpointID, payload)

	return args.Error(0)
}

func (m *MockWebhookDispatcher) EndpointExists(ctx context.Context, organizationID, endpointID string) (bool, error) {
	args := m.Called(ctx, organizationID, endpointID)

	return args.Bool(0), args.Error(1)
}
