package workflow_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dripflow/dripflow/pkg/actions/movestage"
	"github.com/dripflow/dripflow/pkg/actions/sendemail"
	"github.com/dripflow/dripflow/pkg/actions/tag"
	"github.com/dripflow/dripflow/pkg/actions/webhook"
	"github.com/dripflow/dripflow/pkg/mocks"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/registry"
	"github.com/dripflow/dripflow/pkg/workflow"
)

type validatorEnv struct {
	pipeline  *mocks.MockPipelineService
	messaging *mocks.MockMessagingService
	webhooks  *mocks.MockWebhookDispatcher
	validator *workflow.Validator
}

func newValidatorEnv(t *testing.T) *validatorEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pipeline := &mocks.MockPipelineService{}
	messaging := &mocks.MockMessagingService{}
	webhooks := &mocks.MockWebhookDispatcher{}

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(movestage.NewMoveStageActionFactory(pipeline))
	reg.RegisterAction(tag.NewAddTagActionFactory(pipeline))
	reg.RegisterAction(tag.NewRemoveTagActionFactory(pipeline))
	reg.RegisterAction(sendemail.NewSendEmailActionFactory(messaging))
	reg.RegisterAction(webhook.NewWebhookActionFactory(webhooks))

	return &validatorEnv{
		pipeline:  pipeline,
		messaging: messaging,
		webhooks:  webhooks,
		validator: workflow.NewValidator(logger, reg, pipeline, messaging, webhooks),
	}
}

func draftWorkflow(nodes []*models.Node, edges []*models.Edge) *models.WorkflowDefinition {
	now := time.Now().UTC()

	return &models.WorkflowDefinition{
		ID:             uuid.Must(uuid.NewV7()).String(),
		GroupID:        uuid.Must(uuid.NewV7()).String(),
		OrganizationID: "org-1",
		Name:           "Draft",
		Status:         models.WorkflowStatusDraft,
		Version:        1,
		Nodes:          nodes,
		Edges:          edges,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (env *validatorEnv) allowEverything() {
	env.pipeline.On("StageExists", mock.Anything, "org-1", mock.Anything).Return(true, nil)
	env.pipeline.On("TagExists", mock.Anything, "org-1", mock.Anything).Return(true, nil)
	env.messaging.On("TemplateExists", mock.Anything, "org-1", mock.Anything).Return(true, nil)
	env.webhooks.On("EndpointExists", mock.Anything, "org-1", mock.Anything).Return(true, nil)
}

func issuesContain(result *workflow.ValidationResult, fragment string) bool {
	for _, issue := range result.Issues {
		if strings.Contains(issue.Message, fragment) {
			return true
		}
	}

	return false
}

func TestValidator_ValidWorkflow(t *testing.T) {
	env := newValidatorEnv(t)
	env.allowEverything()

	definition := draftWorkflow(
		[]*models.Node{
			node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "stage_changed", "to_stage_id": "stage-won"}`),
			node("n-cond", models.NodeTypeCondition, `{"field": "plan", "operator": "equals", "value": "pro"}`),
			node("n-email", models.NodeTypeSendEmail, `{"template_id": "tpl-won"}`),
			node("n-hook", models.NodeTypeWebhook, `{"endpoint_id": "ep-crm"}`),
		},
		[]*models.Edge{
			edge("n-trigger", "", "n-cond"),
			edge("n-cond", models.EdgeHandleTrue, "n-email"),
			edge("n-cond", models.EdgeHandleFalse, "n-hook"),
		},
	)

	result, err := env.validator.Validate(context.Background(), definition)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestValidator_StructuralIssues(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []*models.Node
		edges    []*models.Edge
		fragment string
	}{
		{
			name: "no trigger",
			nodes: []*models.Node{
				node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
			},
			fragment: "no trigger node",
		},
		{
			name: "multiple triggers",
			nodes: []*models.Node{
				node("n-t1", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-t2", models.NodeTypeTrigger, `{"trigger_type": "tag_added"}`),
			},
			fragment: "trigger nodes",
		},
		{
			name: "duplicate node ids",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-dup", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
				node("n-dup", models.NodeTypeAddTag, `{"tag_id": "tag-b"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-dup"),
			},
			fragment: "duplicate node id",
		},
		{
			name: "edge to unknown node",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-ghost"),
			},
			fragment: "unknown target node",
		},
		{
			name: "unreachable node",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-orphan", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
			},
			fragment: "not reachable",
		},
		{
			name: "cycle",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-a", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
				node("n-b", models.NodeTypeRemoveTag, `{"tag_id": "tag-a"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-a"),
				edge("n-a", "", "n-b"),
				edge("n-b", "", "n-a"),
			},
			fragment: "cycle",
		},
		{
			name: "condition missing its false edge",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-cond", models.NodeTypeCondition, `{"field": "plan", "operator": "equals", "value": "pro"}`),
				node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-cond"),
				edge("n-cond", models.EdgeHandleTrue, "n-tag"),
			},
			fragment: "missing its false edge",
		},
		{
			name: "condition missing its true edge",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-cond", models.NodeTypeCondition, `{"field": "plan", "operator": "equals", "value": "pro"}`),
				node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-cond"),
				edge("n-cond", models.EdgeHandleFalse, "n-tag"),
			},
			fragment: "missing its true edge",
		},
		{
			name: "branch handle on non-condition",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-a", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
				node("n-b", models.NodeTypeAddTag, `{"tag_id": "tag-b"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-a"),
				edge("n-a", models.EdgeHandleTrue, "n-b"),
			},
			fragment: "branch handles",
		},
		{
			name: "two default edges from one node",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-a", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
				node("n-b", models.NodeTypeAddTag, `{"tag_id": "tag-b"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-a"),
				edge("n-trigger", "", "n-b"),
			},
			fragment: "multiple outgoing edges",
		},
		{
			name: "trigger as edge target",
			nodes: []*models.Node{
				node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
				node("n-a", models.NodeTypeAddTag, `{"tag_id": "tag-a"}`),
			},
			edges: []*models.Edge{
				edge("n-trigger", "", "n-a"),
				edge("n-a", "", "n-trigger"),
			},
			fragment: "cannot be an edge target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newValidatorEnv(t)
			env.allowEverything()

			result, err := env.validator.Validate(context.Background(), draftWorkflow(tt.nodes, tt.edges))
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.True(t, issuesContain(result, tt.fragment),
				"expected an issue containing %q, got %v", tt.fragment, result.Issues)
		})
	}
}

func TestValidator_ConfigIssues(t *testing.T) {
	env := newValidatorEnv(t)
	env.allowEverything()

	definition := draftWorkflow(
		[]*models.Node{
			node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
			node("n-delay", models.NodeTypeDelay, `{"duration_minutes": 0}`),
			node("n-email", models.NodeTypeSendEmail, `{}`),
		},
		[]*models.Edge{
			edge("n-trigger", "", "n-delay"),
			edge("n-delay", "", "n-email"),
		},
	)

	result, err := env.validator.Validate(context.Background(), definition)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, issuesContain(result, "invalid configuration"))
}

func TestValidator_DanglingReferences(t *testing.T) {
	env := newValidatorEnv(t)
	env.pipeline.On("StageExists", mock.Anything, "org-1", "stage-gone").Return(false, nil)
	env.pipeline.On("TagExists", mock.Anything, "org-1", "tag-gone").Return(false, nil)
	env.messaging.On("TemplateExists", mock.Anything, "org-1", "tpl-gone").Return(false, nil)
	env.webhooks.On("EndpointExists", mock.Anything, "org-1", "ep-gone").Return(false, nil)

	definition := draftWorkflow(
		[]*models.Node{
			node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
			node("n-move", models.NodeTypeMoveStage, `{"stage_id": "stage-gone"}`),
			node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-gone"}`),
			node("n-email", models.NodeTypeSendEmail, `{"template_id": "tpl-gone"}`),
			node("n-hook", models.NodeTypeWebhook, `{"endpoint_id": "ep-gone"}`),
		},
		[]*models.Edge{
			edge("n-trigger", "", "n-move"),
			edge("n-move", "", "n-tag"),
			edge("n-tag", "", "n-email"),
			edge("n-email", "", "n-hook"),
		},
	)

	result, err := env.validator.Validate(context.Background(), definition)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, issuesContain(result, "stage 'stage-gone' does not exist"))
	assert.True(t, issuesContain(result, "tag 'tag-gone' does not exist"))
	assert.True(t, issuesContain(result, "email template 'tpl-gone' does not exist"))
	assert.True(t, issuesContain(result, "webhook endpoint 'ep-gone' does not exist"))
}
