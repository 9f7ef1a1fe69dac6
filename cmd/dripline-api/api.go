// Package main provides the Dripline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/web"
	"github.com/dripline/dripline/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	segments    protocol.SegmentDirectory
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	segments protocol.SegmentDirectory,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		segments:    segments,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sched := scheduler.NewScheduler(a.persistence.QueueRepository(), a.logger)
	tracker := workflow.NewTracker(a.persistence, sched, a.eventBus, a.logger)
	service := workflow.NewService(a.persistence, a.registry, sched, tracker, a.segments, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(service, sched, a.persistence, a.registry, a.eventBus, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dripline API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/test", handlers.TestWorkflow)
	w.Get("/:id/analytics", handlers.GetWorkflowAnalytics)

	e := app.Group("/executions")
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)

	app.Post("/triggers/fire", handlers.FireTrigger)
	app.Get("/queue/metrics", handlers.GetQueueMetrics)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
