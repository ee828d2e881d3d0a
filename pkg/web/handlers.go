package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dripflow/dripflow/pkg/audit"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/registry"
	"github.com/dripflow/dripflow/pkg/workflow"
)

// APIHandlers implements the operator API endpoints.
type APIHandlers struct {
	persistence    persistence.Persistence
	publishing     *workflow.PublishingService
	graphValidator *workflow.Validator
	matcher        *workflow.TriggerMatcher
	executor       *workflow.Executor
	audit          *audit.Service
	registry       *registry.Registry
	validate       *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	publishing *workflow.PublishingService,
	graphValidator *workflow.Validator,
	matcher *workflow.TriggerMatcher,
	executor *workflow.Executor,
	auditService *audit.Service,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence:    store,
		publishing:     publishing,
		graphValidator: graphValidator,
		matcher:        matcher,
		executor:       executor,
		audit:          auditService,
		registry:       reg,
		validate:       validate,
	}
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	opts, err := h.parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	workflows, err := h.persistence.Workflows().List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) parseListOptions(c fiber.Ctx) (*persistence.ListWorkflowsOptions, error) {
	opts := &persistence.ListWorkflowsOptions{
		OrganizationID: c.Query("organization_id"),
		GroupID:        c.Query("group_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		opts.Status = &status
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	return opts, nil
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if len(req.Graph) > 0 {
		nodes, edges, err := models.ParseBuilderGraph(req.Graph)
		if err != nil {
			return badRequest(c, err.Error())
		}

		req.Nodes, req.Edges = nodes, edges
	}

	created, err := h.publishing.Create(c.Context(), req.OrganizationID, req.Name, req.Nodes, req.Edges)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	found, err := h.persistence.Workflows().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if len(req.Graph) > 0 {
		nodes, edges, err := models.ParseBuilderGraph(req.Graph)
		if err != nil {
			return badRequest(c, err.Error())
		}

		req.Nodes, req.Edges = nodes, edges
	}

	updated, err := h.publishing.UpdateDraft(c.Context(), id, req.Name, req.Nodes, req.Edges)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	published, err := h.publishing.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	archived, err := h.publishing.Archive(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

// ValidateWorkflow dry-runs validation for the builder: issues come back as
// data, never as an error status.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	found, err := h.persistence.Workflows().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.graphValidator.Validate(c.Context(), found)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateDraftFromPublished(c fiber.Ctx) error {
	groupID := c.Params("groupId")
	if groupID == "" {
		return badRequest(c, "Workflow group ID is required")
	}

	draft, err := h.publishing.NewDraft(c.Context(), groupID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

// TriggerRun starts a run for one subject outside event matching. The
// active-run guarantee still applies.
func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.matcher.TriggerManually(c.Context(), id, req.SubjectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	runs, err := h.audit.WorkflowRuns(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

// GetRun returns a run with its full execution trail.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	trail, err := h.audit.RunTrail(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trail)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req CancelRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.persistence.Runs().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if run.IsTerminal() {
		return conflict(c, "run_not_active", "run is already in a terminal state")
	}

	cancelled, err := h.executor.Cancel(c.Context(), id, req.CancelledBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cancelled)
}

func (h *APIHandlers) PauseRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req PauseRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	paused, err := h.executor.Pause(c.Context(), id, req.PausedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(paused)
}

func (h *APIHandlers) ResumeRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	resumed, err := h.executor.Unpause(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resumed)
}

func (h *APIHandlers) GetSubjectRuns(c fiber.Ctx) error {
	subjectID := c.Params("subjectId")
	if subjectID == "" {
		return badRequest(c, "Subject ID is required")
	}

	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	runs, err := h.audit.SubjectHistory(c.Context(), organizationID, subjectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	storageErr := h.persistence.HealthCheck(c.Context())
	if storageErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	storage := "ok"
	if storageErr != nil {
		storage = storageErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"storage": storage,
			"actions": h.registry.AvailableActions(),
		},
		"timestamp": time.Now().UTC(),
	})
}
