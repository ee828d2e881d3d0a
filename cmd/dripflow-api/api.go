// Package main provides the dripflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dripflow/dripflow/pkg/audit"
	"github.com/dripflow/dripflow/pkg/cmd"
	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/otelhelper"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/registry"
	"github.com/dripflow/dripflow/pkg/web"
	"github.com/dripflow/dripflow/pkg/workflow"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	collaborators cmd.Collaborators
	validate      *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	bus eventbus.EventBus,
	collaborators cmd.Collaborators,
) *API {
	return &API{
		logger:        logger,
		persistence:   store,
		registry:      reg,
		eventBus:      bus,
		collaborators: collaborators,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App(ctx context.Context) (*fiber.App, error) {
	tracer, err := otelhelper.NewTracer(ctx, "dripflow-api")
	if err != nil {
		return nil, err
	}

	graphValidator := workflow.NewValidator(a.logger, a.registry,
		a.collaborators.Pipeline, a.collaborators.Messaging, a.collaborators.Webhooks)
	publishing := workflow.NewPublishingService(a.logger, a.persistence, graphValidator)
	executor := workflow.NewExecutor(a.logger, a.persistence, a.registry,
		a.collaborators.Pipeline, a.eventBus, tracer)
	matcher := workflow.NewTriggerMatcher(a.logger, a.persistence, executor)
	auditService := audit.NewService(a.logger, a.persistence)

	handlers := web.NewAPIHandlers(a.persistence, publishing, graphValidator,
		matcher, executor, auditService, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dripflow API")
	})

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

	return app, nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
