package workflow_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/persistence/file"
	"github.com/dripflow/dripflow/pkg/workflow"
)

func newPublishingService(t *testing.T) (*workflow.PublishingService, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())

	env := newValidatorEnv(t)
	env.allowEverything()

	return workflow.NewPublishingService(logger, store, env.validator), store
}

func simpleGraph() ([]*models.Node, []*models.Edge) {
	nodes := []*models.Node{
		node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
		node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-welcome"}`),
	}
	edges := []*models.Edge{
		edge("n-trigger", "", "n-tag"),
	}

	return nodes, edges
}

func TestPublishingService_CreateAndPublish(t *testing.T) {
	ctx := context.Background()
	service, store := newPublishingService(t)

	nodes, edges := simpleGraph()

	draft, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, draft.Status)
	assert.Equal(t, 1, draft.Version)
	assert.Nil(t, draft.PublishedAt)

	published, err := service.Publish(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	found, err := store.Workflows().PublishedByGroup(ctx, draft.GroupID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, found.ID)
}

func TestPublishingService_PublishArchivesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	service, store := newPublishingService(t)

	nodes, edges := simpleGraph()

	v1, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)
	_, err = service.Publish(ctx, v1.ID)
	require.NoError(t, err)

	v2, err := service.NewDraft(ctx, v1.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.GroupID, v2.GroupID)
	assert.NotEqual(t, v1.ID, v2.ID)

	_, err = service.Publish(ctx, v2.ID)
	require.NoError(t, err)

	current, err := store.Workflows().PublishedByGroup(ctx, v1.GroupID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	archived, err := store.Workflows().GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)
}

func TestPublishingService_PublishRejectsInvalidGraph(t *testing.T) {
	ctx := context.Background()
	service, _ := newPublishingService(t)

	// Tag node is never wired to the trigger.
	nodes := []*models.Node{
		node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "contact_created"}`),
		node("n-tag", models.NodeTypeAddTag, `{"tag_id": "tag-welcome"}`),
	}

	draft, err := service.Create(ctx, "org-1", "Broken flow", nodes, nil)
	require.NoError(t, err)

	_, err = service.Publish(ctx, draft.ID)
	require.ErrorIs(t, err, workflow.ErrWorkflowInvalid)
}

func TestPublishingService_PublishRejectsNonDraft(t *testing.T) {
	ctx := context.Background()
	service, _ := newPublishingService(t)

	nodes, edges := simpleGraph()

	draft, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)
	_, err = service.Publish(ctx, draft.ID)
	require.NoError(t, err)

	_, err = service.Publish(ctx, draft.ID)
	require.ErrorIs(t, err, workflow.ErrNotDraft)
}

func TestPublishingService_NewDraftRejectsDuplicateDraft(t *testing.T) {
	ctx := context.Background()
	service, _ := newPublishingService(t)

	nodes, edges := simpleGraph()

	v1, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)
	_, err = service.Publish(ctx, v1.ID)
	require.NoError(t, err)

	_, err = service.NewDraft(ctx, v1.GroupID)
	require.NoError(t, err)

	_, err = service.NewDraft(ctx, v1.GroupID)
	require.ErrorIs(t, err, persistence.ErrWorkflowAlreadyExists)
}

func TestPublishingService_UpdateDraft(t *testing.T) {
	ctx := context.Background()
	service, _ := newPublishingService(t)

	nodes, edges := simpleGraph()

	draft, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)

	newNodes := []*models.Node{
		node("n-trigger", models.NodeTypeTrigger, `{"trigger_type": "tag_added", "tag_id": "tag-vip"}`),
		node("n-email", models.NodeTypeSendEmail, `{"template_id": "tpl-vip"}`),
	}
	newEdges := []*models.Edge{
		edge("n-trigger", "", "n-email"),
	}

	updated, err := service.UpdateDraft(ctx, draft.ID, "VIP flow", newNodes, newEdges)
	require.NoError(t, err)
	assert.Equal(t, "VIP flow", updated.Name)
	assert.Len(t, updated.Nodes, 2)

	// Published versions are immutable.
	_, err = service.Publish(ctx, draft.ID)
	require.NoError(t, err)
	_, err = service.UpdateDraft(ctx, draft.ID, "Renamed", newNodes, newEdges)
	require.ErrorIs(t, err, workflow.ErrNotDraft)
}

func TestPublishingService_Archive(t *testing.T) {
	ctx := context.Background()
	service, store := newPublishingService(t)

	nodes, edges := simpleGraph()

	draft, err := service.Create(ctx, "org-1", "Welcome flow", nodes, edges)
	require.NoError(t, err)

	// Drafts cannot be archived directly.
	_, err = service.Archive(ctx, draft.ID)
	require.ErrorIs(t, err, workflow.ErrNotPublished)

	_, err = service.Publish(ctx, draft.ID)
	require.NoError(t, err)

	archived, err := service.Archive(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusArchived, archived.Status)

	_, err = store.Workflows().PublishedByGroup(ctx, draft.GroupID)
	require.ErrorIs(t, err, persistence.ErrPublishedWorkflowNotFound)
}
