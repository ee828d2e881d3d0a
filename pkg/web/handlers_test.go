package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dripflow/dripflow/pkg/actions/movestage"
	"github.com/dripflow/dripflow/pkg/actions/sendemail"
	"github.com/dripflow/dripflow/pkg/actions/tag"
	webhookaction "github.com/dripflow/dripflow/pkg/actions/webhook"
	"github.com/dripflow/dripflow/pkg/audit"
	"github.com/dripflow/dripflow/pkg/mocks"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence/file"
	"github.com/dripflow/dripflow/pkg/registry"
	"github.com/dripflow/dripflow/pkg/web"
	"github.com/dripflow/dripflow/pkg/workflow"
)

type apiEnv struct {
	app       *fiber.App
	store     *file.Persistence
	pipeline  *mocks.MockPipelineService
	messaging *mocks.MockMessagingService
	webhooks  *mocks.MockWebhookDispatcher
}

func setupTestApp(t *testing.T) *apiEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())

	pipeline := &mocks.MockPipelineService{}
	messaging := &mocks.MockMessagingService{}
	webhooks := &mocks.MockWebhookDispatcher{}

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(movestage.NewMoveStageActionFactory(pipeline))
	reg.RegisterAction(tag.NewAddTagActionFactory(pipeline))
	reg.RegisterAction(tag.NewRemoveTagActionFactory(pipeline))
	reg.RegisterAction(sendemail.NewSendEmailActionFactory(messaging))
	reg.RegisterAction(webhookaction.NewWebhookActionFactory(webhooks))

	graphValidator := workflow.NewValidator(logger, reg, pipeline, messaging, webhooks)
	publishing := workflow.NewPublishingService(logger, store, graphValidator)
	tracer := noop.NewTracerProvider().Tracer("test")
	executor := workflow.NewExecutor(logger, store, reg, pipeline, nil, tracer)
	matcher := workflow.NewTriggerMatcher(logger, store, executor)
	auditService := audit.NewService(logger, store)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(store, publishing, graphValidator, matcher, executor, auditService, reg, validate)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Post("/:id/publish", handlers.PublishWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)
	w.Post("/:id/trigger", handlers.TriggerRun)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)
	w.Post("/groups/:groupId/create-draft", handlers.CreateDraftFromPublished)

	r := app.Group("/runs")
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/cancel", handlers.CancelRun)
	r.Post("/:id/pause", handlers.PauseRun)
	r.Post("/:id/resume", handlers.ResumeRun)

	app.Get("/subjects/:subjectId/runs", handlers.GetSubjectRuns)
	app.Get("/health", handlers.HealthCheck)

	return &apiEnv{
		app:       app,
		store:     store,
		pipeline:  pipeline,
		messaging: messaging,
		webhooks:  webhooks,
	}
}

func (env *apiEnv) allowEverything() {
	env.pipeline.On("StageExists", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	env.pipeline.On("TagExists", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	env.messaging.On("TemplateExists", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	env.webhooks.On("EndpointExists", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out T
	require.NoError(t, json.Unmarshal(body, &out))

	return out
}

func createDraftRequest() web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		OrganizationID: "org-1",
		Name:           "Welcome flow",
		Nodes: []*models.Node{
			{ID: "n-trigger", Type: models.NodeTypeTrigger, Config: json.RawMessage(`{"trigger_type": "contact_created"}`)},
			{ID: "n-tag", Type: models.NodeTypeAddTag, Config: json.RawMessage(`{"tag_id": "tag-welcome"}`)},
		},
		Edges: []*models.Edge{
			{Source: "n-trigger", Target: "n-tag"},
		},
	}
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		request        web.CreateWorkflowRequest
		expectedStatus int
	}{
		{
			name:           "successful creation",
			request:        createDraftRequest(),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing organization",
			request: web.CreateWorkflowRequest{
				Name: "Welcome flow",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "name too short",
			request: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "Hi",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			resp := postJSON(t, env.app, "/workflows", tt.request)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				created := decodeJSON[models.WorkflowDefinition](t, resp)
				assert.Equal(t, models.WorkflowStatusDraft, created.Status)
				assert.Equal(t, 1, created.Version)
				assert.NotEmpty(t, created.ID)
				assert.NotEmpty(t, created.GroupID)
			}
		})
	}
}

func TestAPIHandlers_CreateWorkflowFromBuilderGraph(t *testing.T) {
	env := setupTestApp(t)

	request := web.CreateWorkflowRequest{
		OrganizationID: "org-1",
		Name:           "Builder flow",
		Graph: json.RawMessage(`{
			"nodes": [
				{"id": "n1", "type": "trigger", "data": {"triggerType": "contact_created"}},
				{"id": "n2", "type": "add_tag", "data": {"config": {"tag_id": "tag-welcome"}}}
			],
			"edges": [{"source": "n1", "sourceHandle": "default", "target": "n2"}]
		}`),
	}

	resp := postJSON(t, env.app, "/workflows", request)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeJSON[models.WorkflowDefinition](t, resp)
	require.Len(t, created.Nodes, 2)
	assert.Equal(t, models.NodeTypeTrigger, created.Nodes[0].Type)
	require.Len(t, created.Edges, 1)
	assert.Equal(t, models.EdgeHandleDefault, created.Edges[0].Handle)

	resp = postJSON(t, env.app, "/workflows", web.CreateWorkflowRequest{
		OrganizationID: "org-1",
		Name:           "Broken flow",
		Graph:          json.RawMessage(`{"nodes": "nope"}`),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetWorkflowNotFound(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_PublishLifecycle(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	created := decodeJSON[models.WorkflowDefinition](t, postJSON(t, env.app, "/workflows", createDraftRequest()))

	resp := postJSON(t, env.app, "/workflows/"+created.ID+"/publish", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	published := decodeJSON[models.WorkflowDefinition](t, resp)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)

	// Publishing a published version is a conflict.
	resp = postJSON(t, env.app, "/workflows/"+created.ID+"/publish", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A new draft can be cut from the published version.
	resp = postJSON(t, env.app, "/workflows/groups/"+created.GroupID+"/create-draft", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	draft := decodeJSON[models.WorkflowDefinition](t, resp)
	assert.Equal(t, 2, draft.Version)

	// Only one draft per group.
	resp = postJSON(t, env.app, "/workflows/groups/"+created.GroupID+"/create-draft", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, env.app, "/workflows/"+created.ID+"/archive", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIHandlers_PublishInvalidWorkflow(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	request := createDraftRequest()
	request.Edges = nil // tag node left unreachable

	created := decodeJSON[models.WorkflowDefinition](t, postJSON(t, env.app, "/workflows", request))

	resp := postJSON(t, env.app, "/workflows/"+created.ID+"/publish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	request := createDraftRequest()
	request.Edges = nil

	created := decodeJSON[models.WorkflowDefinition](t, postJSON(t, env.app, "/workflows", request))

	resp := postJSON(t, env.app, "/workflows/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeJSON[workflow.ValidationResult](t, resp)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
}

func publishWorkflowWithDelay(t *testing.T, env *apiEnv) *models.WorkflowDefinition {
	t.Helper()

	request := web.CreateWorkflowRequest{
		OrganizationID: "org-1",
		Name:           "Slow flow",
		Nodes: []*models.Node{
			{ID: "n-trigger", Type: models.NodeTypeTrigger, Config: json.RawMessage(`{"trigger_type": "contact_created"}`)},
			{ID: "n-delay", Type: models.NodeTypeDelay, Config: json.RawMessage(`{"duration_minutes": 60}`)},
			{ID: "n-tag", Type: models.NodeTypeAddTag, Config: json.RawMessage(`{"tag_id": "tag-welcome"}`)},
		},
		Edges: []*models.Edge{
			{Source: "n-trigger", Target: "n-delay"},
			{Source: "n-delay", Target: "n-tag"},
		},
	}

	created := decodeJSON[models.WorkflowDefinition](t, postJSON(t, env.app, "/workflows", request))

	resp := postJSON(t, env.app, "/workflows/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return decodeJSON[*models.WorkflowDefinition](t, resp)
}

func TestAPIHandlers_TriggerAndCancelRun(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	published := publishWorkflowWithDelay(t, env)

	resp := postJSON(t, env.app, "/workflows/"+published.ID+"/trigger", web.TriggerRunRequest{SubjectID: "contact-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeJSON[models.RunInstance](t, resp)
	assert.Equal(t, "contact-1", run.SubjectID)

	// The run suspended on the delay node, so a second trigger conflicts.
	resp = postJSON(t, env.app, "/workflows/"+published.ID+"/trigger", web.TriggerRunRequest{SubjectID: "contact-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, env.app, "/runs/"+run.ID+"/cancel", web.CancelRunRequest{CancelledBy: "ops@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled := decodeJSON[models.RunInstance](t, resp)
	assert.Equal(t, models.RunStateCancelled, cancelled.State)

	// Cancelling a terminal run is a conflict.
	resp = postJSON(t, env.app, "/runs/"+run.ID+"/cancel", web.CancelRunRequest{CancelledBy: "ops@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_PauseAndResumeRun(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	published := publishWorkflowWithDelay(t, env)

	resp := postJSON(t, env.app, "/workflows/"+published.ID+"/trigger", web.TriggerRunRequest{SubjectID: "contact-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeJSON[models.RunInstance](t, resp)

	resp = postJSON(t, env.app, "/runs/"+run.ID+"/pause", web.PauseRunRequest{PausedBy: "ops@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	paused := decodeJSON[models.RunInstance](t, resp)
	assert.Equal(t, models.RunStateSuspended, paused.State)
	assert.Nil(t, paused.ResumeAt)

	resp = postJSON(t, env.app, "/runs/"+run.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resumed := decodeJSON[models.RunInstance](t, resp)
	require.NotNil(t, resumed.ResumeAt)
	assert.False(t, resumed.ResumeAt.After(time.Now().UTC()))

	// A cancelled run can be neither paused nor resumed.
	resp = postJSON(t, env.app, "/runs/"+run.ID+"/cancel", web.CancelRunRequest{CancelledBy: "ops@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, env.app, "/runs/"+run.ID+"/pause", web.PauseRunRequest{PausedBy: "ops@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_GetRunTrail(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	published := publishWorkflowWithDelay(t, env)

	resp := postJSON(t, env.app, "/workflows/"+published.ID+"/trigger", web.TriggerRunRequest{SubjectID: "contact-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	run := decodeJSON[models.RunInstance](t, resp)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil)
	getResp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	trail := decodeJSON[audit.RunTrail](t, getResp)
	assert.Equal(t, run.ID, trail.Run.ID)
	assert.Equal(t, models.RunStateSuspended, trail.Run.State)
	require.NotEmpty(t, trail.Records)
	assert.Equal(t, "n-delay", trail.Records[len(trail.Records)-1].NodeID)

	req = httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	getResp, err = env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestAPIHandlers_GetSubjectRuns(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	published := publishWorkflowWithDelay(t, env)

	resp := postJSON(t, env.app, "/workflows/"+published.ID+"/trigger", web.TriggerRunRequest{SubjectID: "contact-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/subjects/contact-1/runs?organization_id=org-1", nil)
	getResp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var payload struct {
		Runs []*models.RunInstance `json:"runs"`
	}

	body, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Len(t, payload.Runs, 1)

	// organization_id is mandatory for tenant scoping.
	req = httptest.NewRequest(http.MethodGet, "/subjects/contact-1/runs", nil)
	getResp, err = env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, getResp.StatusCode)
}

func TestAPIHandlers_ListWorkflows(t *testing.T) {
	env := setupTestApp(t)
	env.allowEverything()

	first := createDraftRequest()
	second := createDraftRequest()
	second.Name = "Other flow"
	second.OrganizationID = "org-2"

	postJSON(t, env.app, "/workflows", first)
	postJSON(t, env.app, "/workflows", second)

	req := httptest.NewRequest(http.MethodGet, "/workflows/?organization_id=org-1", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workflows []*models.WorkflowDefinition `json:"workflows"`
	}

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Workflows, 1)
	assert.Equal(t, "org-1", payload.Workflows[0].OrganizationID)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
