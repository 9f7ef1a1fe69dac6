// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/workflow"
)

type APIHandlers struct {
	service     *workflow.Service
	scheduler   *scheduler.Scheduler
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validator   *validator.Validate
}

func NewAPIHandlers(
	service *workflow.Service,
	sched *scheduler.Scheduler,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		service:     service,
		scheduler:   sched,
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		validator:   validate,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.service.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	found, err := h.service.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.service.Create(c.Context(), &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Steps:       req.Steps,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
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

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.service.Update(c.Context(), &models.Workflow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Steps:       req.Steps,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ActivateWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	activated, err := h.service.Activate(c.Context(), id, req.RegisterExisting)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(activated)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req PauseWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	paused, cancelled, err := h.service.Pause(c.Context(), id, req.CancelPending)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflow": paused, "cancelled_executions": cancelled})
}

func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TestWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.DryRun != nil && !*req.DryRun {
		execution, err := h.service.TestLive(c.Context(), id, req.SubscriberID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"execution_id": execution.ID})
	}

	report, err := h.service.Test(c.Context(), id, req.SubscriberID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetWorkflowAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return badRequest(c, "Invalid 'from' timestamp: "+err.Error())
	}

	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return badRequest(c, "Invalid 'to' timestamp: "+err.Error())
	}

	analytics, err := h.service.Analytics(c.Context(), id, from, to)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(analytics)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	opts, err := h.parseListExecutionsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.persistence.ExecutionRepository().List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  result.Executions,
		"total_count": result.TotalCount,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.ExecutionRepository().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetQueueMetrics(c fiber.Ctx) error {
	metrics, err := h.scheduler.Metrics(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(metrics)
}

// FireTrigger publishes a trigger occurrence onto the event bus. It is the
// operator-facing entry point; production trigger sources publish directly.
func (h *APIHandlers) FireTrigger(c fiber.Ctx) error {
	var req FireTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	fired := events.TriggerFired{
		BaseEvent: events.BaseEvent{
			ID:        eventID,
			Type:      events.TriggerFiredEvent,
			Timestamp: time.Now().UTC(),
		},
		TriggerKind:  req.Kind,
		SegmentID:    req.SegmentID,
		EventType:    req.EventType,
		SubscriberID: req.SubscriberID,
	}

	if err := h.eventBus.Publish(c.Context(), eventID, fired); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": eventID})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	serviceCheck, svcOk := h.service.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Dripline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && svcOk {
		status = "healthy"
		message = "Dripline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": serviceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) parseListExecutionsOptions(c fiber.Ctx) (*persistence.ListExecutionsOptions, error) {
	opts := &persistence.ListExecutionsOptions{
		WorkflowID:   c.Query("workflow_id"),
		SubscriberID: c.Query("subscriber_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		opts.Status = &status
	}

	var err error

	if opts.From, err = parseTimeQuery(c, "from"); err != nil {
		return nil, err
	}

	if opts.To, err = parseTimeQuery(c, "to"); err != nil {
		return nil, err
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		if opts.Limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, err
		}
	}

	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if opts.Offset, err = strconv.Atoi(offsetStr); err != nil {
			return nil, err
		}
	}

	return opts, nil
}

func parseTimeQuery(c fiber.Ctx, name string) (*time.Time, error) {
	value := c.Query(name)
	if value == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}
