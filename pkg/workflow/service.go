package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/scheduler"
)

// registerExistingEventID is the synthetic trigger event id used when
// activation admits current segment members. It is constant per
// (workflow, subscriber), so re-activations never re-admit anyone.
const registerExistingEventID = "register-existing"

// Service is the workflow lifecycle API: definition CRUD, activation,
// pausing and dry-run testing.
type Service struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	tracker     *Tracker
	segments    protocol.SegmentDirectory
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewService creates the workflow service.
func NewService(
	p persistence.Persistence,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	tracker *Tracker,
	segments protocol.SegmentDirectory,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		persistence: p,
		registry:    reg,
		scheduler:   sched,
		tracker:     tracker,
		segments:    segments,
		publisher:   publisher,
		validator:   validator.New(),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Service) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every workflow definition.
func (s *Service) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().List(ctx)
}

// Get returns one workflow by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create validates and stores a new workflow as a draft.
func (s *Service) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ActivatedAt = nil

	if err := s.validate(workflow); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Info("Workflow created", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// Update replaces the definition of a draft or paused workflow. Active
// workflows are immutable; archived ones are read-only.
func (s *Service) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := s.persistence.WorkflowRepository().GetByID(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, &ServiceError{Op: "Update", Err: ErrWorkflowArchived}
	}

	if !existing.Editable() {
		return nil, &ServiceError{Op: "Update", Err: ErrCannotModifyActive}
	}

	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.ActivatedAt = existing.ActivatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.validate(workflow); err != nil {
		return nil, err
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow definition. Active workflows must be paused
// first.
func (s *Service) Delete(ctx context.Context, id string) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.Status == models.WorkflowStatusActive {
		return &ServiceError{Op: "Delete", Err: ErrCannotDeleteActive}
	}

	return s.persistence.WorkflowRepository().Delete(ctx, id)
}

// Activate makes a workflow executable. Every reachable step must be fully
// configured. Executions suspended by a previous pause are re-enqueued; when
// registerExisting is set and the workflow has a segment trigger, current
// segment members are admitted as well.
func (s *Service) Activate(ctx context.Context, id string, registerExisting bool) (*models.Workflow, error) {
	workflows := s.persistence.WorkflowRepository()

	workflow, err := workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusActive {
		return nil, &ServiceError{Op: "Activate", Err: ErrAlreadyActive}
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, &ServiceError{Op: "Activate", Err: ErrWorkflowArchived}
	}

	if err := workflow.ValidateGraph(); err != nil {
		return nil, err
	}

	if unconfigured := workflow.UnconfiguredSteps(); len(unconfigured) > 0 {
		return nil, &NotConfiguredError{WorkflowID: workflow.ID, StepIDs: unconfigured}
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = now
	workflow.ActivatedAt = &now

	if err := workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	resumed, err := s.resumeSuspended(ctx, workflow)
	if err != nil {
		return nil, err
	}

	registered := 0

	if registerExisting && workflow.Trigger.Kind == models.TriggerKindSegmentJoined {
		registered, err = s.registerExistingSubscribers(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	s.publish(ctx, workflow.ID, events.WorkflowActivated{
		BaseEvent:          s.baseEvent(events.WorkflowActivatedEvent, workflow.ID),
		RegisteredExisting: registered,
	})

	s.logger.Info("Workflow activated",
		"workflow_id", workflow.ID,
		"resumed", resumed,
		"registered_existing", registered)

	return workflow, nil
}

// Pause stops a workflow from admitting or running subscribers. With
// cancelPending, in-flight executions are cancelled and their queue items
// removed; without it they stay suspended until the next activation.
func (s *Service) Pause(ctx context.Context, id string, cancelPending bool) (*models.Workflow, int, error) {
	workflows := s.persistence.WorkflowRepository()

	workflow, err := workflows.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, 0, &ServiceError{Op: "Pause", Err: ErrNotActive}
	}

	workflow.Status = models.WorkflowStatusPaused
	workflow.UpdatedAt = time.Now().UTC()

	if err := workflows.Save(ctx, workflow); err != nil {
		return nil, 0, fmt.Errorf("failed to save workflow: %w", err)
	}

	cancelled := 0

	if cancelPending {
		executions, err := s.persistence.ExecutionRepository().ListByWorkflowAndStatus(ctx, workflow.ID,
			models.ExecutionStatusPending,
			models.ExecutionStatusWaitingDelay,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list pending executions: %w", err)
		}

		for _, execution := range executions {
			if err := s.tracker.CancelExecution(ctx, execution); err != nil {
				return nil, cancelled, err
			}

			cancelled++
		}
	}

	s.publish(ctx, workflow.ID, events.WorkflowPaused{
		BaseEvent:        s.baseEvent(events.WorkflowPausedEvent, workflow.ID),
		CancelledPending: cancelled,
	})

	s.logger.Info("Workflow paused",
		"workflow_id", workflow.ID,
		"cancel_pending", cancelPending,
		"cancelled", cancelled)

	return workflow, cancelled, nil
}

func (s *Service) validate(workflow *models.Workflow) error {
	if err := s.validator.StructPartial(workflow, "Name"); err != nil {
		return &ServiceError{Op: "validate", Message: err.Error(), Err: ErrInvalidRequest}
	}

	if s.registry != nil {
		for _, step := range workflow.Steps {
			if err := s.registry.ValidateStep(step); err != nil {
				return &ServiceError{Op: "validate", Message: err.Error(), Err: ErrInvalidRequest}
			}
		}
	}

	return workflow.ValidateGraph()
}

// resumeSuspended re-enqueues executions left suspended by a pause without
// cancellation. Delayed executions keep their original due time.
func (s *Service) resumeSuspended(ctx context.Context, workflow *models.Workflow) (int, error) {
	suspended, err := s.persistence.ExecutionRepository().ListByWorkflowAndStatus(ctx, workflow.ID,
		models.ExecutionStatusPending,
		models.ExecutionStatusWaitingDelay,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list suspended executions: %w", err)
	}

	now := time.Now().UTC()

	for _, execution := range suspended {
		dueAt := now
		if execution.ScheduledAt != nil {
			dueAt = *execution.ScheduledAt
		}

		if err := s.scheduler.Enqueue(ctx, execution, dueAt); err != nil {
			return 0, err
		}
	}

	return len(suspended), nil
}

func (s *Service) registerExistingSubscribers(ctx context.Context, workflow *models.Workflow) (int, error) {
	if s.segments == nil {
		return 0, nil
	}

	subscriberIDs, err := s.segments.SubscribersOf(ctx, workflow.Trigger.SegmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list segment %s members: %w", workflow.Trigger.SegmentID, err)
	}

	registered := 0

	for _, subscriberID := range subscriberIDs {
		_, created, err := s.tracker.StartExecution(ctx, workflow, subscriberID, registerExistingEventID)
		if err != nil {
			return registered, err
		}

		if created {
			registered++
		}
	}

	return registered, nil
}

func (s *Service) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}
