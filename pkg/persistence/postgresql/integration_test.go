package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order
	for _, table := range []string{"node_execution_log", "runs", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dripflow_test"),
			postgres.WithUsername("dripflow"),
			postgres.WithPassword("dripflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx
}

func testWorkflow(t *testing.T, status models.WorkflowStatus, version int) *models.WorkflowDefinition {
	t.Helper()

	now := time.Now().UTC()

	return &models.WorkflowDefinition{
		ID:             uuid.Must(uuid.NewV7()).String(),
		GroupID:        uuid.Must(uuid.NewV7()).String(),
		OrganizationID: "org-1",
		Name:           "Welcome sequence",
		Status:         status,
		Version:        version,
		Nodes: []*models.Node{
			{
				ID:     "n-trigger",
				Type:   models.NodeTypeTrigger,
				Config: json.RawMessage(`{"trigger_type": "contact_created"}`),
			},
			{
				ID:     "n-tag",
				Type:   models.NodeTypeAddTag,
				Config: json.RawMessage(`{"tag_id": "tag-welcome"}`),
			},
		},
		Edges: []*models.Edge{
			{Source: "n-trigger", Target: "n-tag"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testRun(workflow *models.WorkflowDefinition, subjectID string) *models.RunInstance {
	now := time.Now().UTC()

	return &models.RunInstance{
		ID:              uuid.Must(uuid.NewV7()).String(),
		OrganizationID:  workflow.OrganizationID,
		WorkflowID:      workflow.ID,
		WorkflowGroupID: workflow.GroupID,
		WorkflowVersion: workflow.Version,
		SubjectID:       subjectID,
		CurrentNodeID:   "n-trigger",
		State:           models.RunStateRunning,
		TriggeredBy:     string(models.CRMEventContactCreated),
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	loaded, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, workflow.Status, loaded.Status)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Edges, 1)

	_, err = store.Workflows().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_GroupLookups(t *testing.T) {
	store, ctx := setupTestDB(t)

	published := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, published))

	draft := testWorkflow(t, models.WorkflowStatusDraft, 2)
	draft.GroupID = published.GroupID
	require.NoError(t, store.Workflows().Save(ctx, draft))

	got, err := store.Workflows().PublishedByGroup(ctx, published.GroupID)
	require.NoError(t, err)
	assert.Equal(t, published.ID, got.ID)

	got, err = store.Workflows().DraftByGroup(ctx, published.GroupID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	all, err := store.Workflows().PublishedByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflowRepository_OnePublishedPerGroup(t *testing.T) {
	store, ctx := setupTestDB(t)

	first := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, first))

	second := testWorkflow(t, models.WorkflowStatusPublished, 2)
	second.GroupID = first.GroupID
	assert.Error(t, store.Workflows().Save(ctx, second))
}

func TestRunRepository_DedupActiveRuns(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	run := testRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	duplicate := testRun(workflow, "contact-1")
	err := store.Runs().CreateRun(ctx, duplicate)
	assert.True(t, persistence.IsActiveRunExists(err))

	// A terminal run unblocks the subject.
	require.NoError(t, run.TransitionTo(models.RunStateCompleted))
	require.NoError(t, store.Runs().SaveRun(ctx, run))

	assert.NoError(t, store.Runs().CreateRun(ctx, testRun(workflow, "contact-1")))
}

func TestRunRepository_DueRunsAndClaim(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	run := testRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	resumeAt := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, run.Suspend(resumeAt))
	require.NoError(t, store.Runs().SaveRun(ctx, run))

	due, err := store.Runs().DueRuns(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, run.ID, due[0].ID)

	claimed, err := store.Runs().ClaimRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim loses the race.
	claimed, err = store.Runs().ClaimRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	loaded, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateRunning, loaded.State)
	assert.Nil(t, loaded.ResumeAt)
}

func TestRunRepository_UpdateActiveRunLosesToCancellation(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	run := testRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	moved := *run
	moved.CurrentNodeID = "n-tag"
	moved.UpdatedAt = time.Now().UTC()

	ok, err := store.Runs().UpdateActiveRun(ctx, &moved)
	require.NoError(t, err)
	assert.True(t, ok)

	// Once an operator cancels, position and terminal writes must lose.
	cancelled, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NoError(t, cancelled.TransitionTo(models.RunStateCancelled))
	require.NoError(t, store.Runs().SaveRun(ctx, cancelled))

	require.NoError(t, moved.TransitionTo(models.RunStateCompleted))

	ok, err = store.Runs().UpdateActiveRun(ctx, &moved)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := store.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCancelled, loaded.State)
}

func TestExecutionLogRepository_AppendAndQuery(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	run := testRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	first := &models.NodeExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RunID:      run.ID,
		NodeID:     "n-tag",
		Attempt:    1,
		Outcome:    models.OutcomeFailed,
		Error:      "pipeline unavailable",
		ExecutedAt: time.Now().UTC().Add(-time.Second),
	}
	require.NoError(t, store.ExecutionLog().Append(ctx, first))

	second := &models.NodeExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RunID:      run.ID,
		NodeID:     "n-tag",
		Attempt:    2,
		Outcome:    models.OutcomeSuccess,
		ExecutedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ExecutionLog().Append(ctx, second))

	records, err := store.ExecutionLog().RecordsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	attempt, err := store.ExecutionLog().LastAttempt(ctx, run.ID, "n-tag")
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)

	succeeded, err := store.ExecutionLog().HasSucceeded(ctx, run.ID, "n-tag")
	require.NoError(t, err)
	assert.True(t, succeeded)
}

func TestExecutionLogRepository_PurgeOlderThan(t *testing.T) {
	store, ctx := setupTestDB(t)

	workflow := testWorkflow(t, models.WorkflowStatusPublished, 1)
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	run := testRun(workflow, "contact-1")
	require.NoError(t, store.Runs().CreateRun(ctx, run))

	record := &models.NodeExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RunID:      run.ID,
		NodeID:     "n-tag",
		Attempt:    1,
		Outcome:    models.OutcomeSuccess,
		ExecutedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, store.ExecutionLog().Append(ctx, record))

	// Active runs are never purged.
	purged, err := store.ExecutionLog().PurgeOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)

	require.NoError(t, run.TransitionTo(models.RunStateCompleted))
	require.NoError(t, store.Runs().SaveRun(ctx, run))

	purged, err = store.ExecutionLog().PurgeOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
