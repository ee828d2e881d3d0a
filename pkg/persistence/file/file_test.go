package file_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/persistence/file"
)

func setupStore(t *testing.T) (*file.Persistence, context.Context) {
	t.Helper()

	return file.NewPersistence(t.TempDir()), context.Background()
}

func sampleWorkflow(status models.WorkflowStatus) *models.WorkflowDefinition {
	now := time.Now().UTC()

	return &models.WorkflowDefinition{
		ID:             uuid.Must(uuid.NewV7()).String(),
		GroupID:        uuid.Must(uuid.NewV7()).String(),
		OrganizationID: "org-1",
		Name:           "Lead nurture",
		Status:         status,
		Version:        1,
		Nodes: []*models.Node{
			{
				ID:     "n-trigger",
				Type:   models.NodeTypeTrigger,
				Config: json.RawMessage(`{"trigger_type": "tag_added", "tag_id": "tag-hot"}`),
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleRun(workflow *models.WorkflowDefinition, subjectID string) *models.RunInstance {
	now := time.Now().UTC()

	return &models.RunInstance{
		ID:              uuid.Must(uuid.NewV7()).String(),
		OrganizationID:  workflow.OrganizationID,
		WorkflowID:      workflow.ID,
		WorkflowGroupID: workflow.GroupID,
		WorkflowVersion: workflow.Version,
		SubjectID:       subjectID,
		State:           models.RunStateRunning,
		TriggeredBy:     string(models.CRMEventTagAdded),
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	workflow := sampleWorkflow(models.WorkflowStatusPublished)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	loaded, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Len(t, loaded.Nodes, 1)

	_, err = store.Workflows().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	published, err := store.Workflows().PublishedByGroup(ctx, workflow.GroupID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, published.ID)

	_, err = store.Workflows().DraftByGroup(ctx, workflow.GroupID)
	assert.True(t, persistence.IsDraftWorkflowNotFound(err))

	all, err := store.Workflows().PublishedByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunRepository_DedupAndClaim(t *testing.T) {
	store, ctx := setupStore(t)

	workflow := sampleWorkflow(models.WorkflowStatusPublished)
	run := sampleRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	err := store.Runs().CreateRun(ctx, sampleRun(workflow, "contact-1"))
	assert.True(t, persistence.IsActiveRunExists(err))

	active, err := store.Runs().ActiveRun(ctx, workflow.ID, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, active.ID)

	require.NoError(t, run.Suspend(time.Now().UTC().Add(-time.Minute)))
	require.NoError(t, store.Runs().SaveRun(ctx, run))

	due, err := store.Runs().DueRuns(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := store.Runs().ClaimRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Runs().ClaimRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestExecutionLogRepository_AppendAndPurge(t *testing.T) {
	store, ctx := setupStore(t)

	workflow := sampleWorkflow(models.WorkflowStatusPublished)
	run := sampleRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	record := &models.NodeExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RunID:      run.ID,
		NodeID:     "n-email",
		Attempt:    1,
		Outcome:    models.OutcomeSuccess,
		ExecutedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, store.ExecutionLog().Append(ctx, record))

	succeeded, err := store.ExecutionLog().HasSucceeded(ctx, run.ID, "n-email")
	require.NoError(t, err)
	assert.True(t, succeeded)

	attempt, err := store.ExecutionLog().LastAttempt(ctx, run.ID, "n-email")
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	// Active run blocks purge.
	purged, err := store.ExecutionLog().PurgeOlderThan(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, purged)

	require.NoError(t, run.TransitionTo(models.RunStateCompleted))
	require.NoError(t, store.Runs().SaveRun(ctx, run))

	purged, err = store.ExecutionLog().PurgeOlderThan(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
