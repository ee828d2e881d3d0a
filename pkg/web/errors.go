package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine and persistence errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsRunNotFound(err):
		return notFound(c, "run not found")

	case persistence.IsPublishedWorkflowNotFound(err):
		return notFound(c, "published workflow not found")

	case persistence.IsDraftWorkflowNotFound(err):
		return notFound(c, "draft workflow not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsActiveRunExists(err):
		return conflict(c, "active_run_exists", "subject already has an active run for this workflow")

	case errors.Is(err, persistence.ErrWorkflowAlreadyExists):
		return conflict(c, "draft_exists", "workflow group already has a draft")

	case errors.Is(err, workflow.ErrNotDraft):
		return conflict(c, "not_a_draft", "only draft workflows can be edited or published")

	case errors.Is(err, workflow.ErrNotPublished):
		return conflict(c, "not_published", "only published workflows can be archived")

	case errors.Is(err, workflow.ErrRunNotSuspended):
		return conflict(c, "run_not_suspended", "only runs waiting on a delay can be paused or resumed")

	case errors.Is(err, workflow.ErrWorkflowInvalid):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("workflow_invalid").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	default:
		return internalError(c, err)
	}
}
