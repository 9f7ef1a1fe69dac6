package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/scheduler"
)

// Tracker owns execution lifecycle writes: it creates executions
// idempotently, schedules them, and cancels them. Workers mutate running
// executions through the Engine; everything else goes through the Tracker.
type Tracker struct {
	persistence persistence.Persistence
	scheduler   *scheduler.Scheduler
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewTracker creates a tracker.
func NewTracker(p persistence.Persistence, s *scheduler.Scheduler, publisher eventbus.EventPublisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		persistence: p,
		scheduler:   s,
		publisher:   publisher,
		logger:      logger.With("module", "tracker"),
	}
}

// StartExecution creates and enqueues an execution for the subscriber, or
// returns the existing one when the (workflow, subscriber, trigger event)
// triple was already admitted. The bool reports whether a new execution was
// created.
func (t *Tracker) StartExecution(ctx context.Context, workflow *models.Workflow, subscriberID, triggerEventID string) (*models.Execution, bool, error) {
	execution := models.NewExecution(uuid.New().String(), workflow, subscriberID, triggerEventID)

	executions := t.persistence.ExecutionRepository()

	if err := executions.Create(ctx, execution); err != nil {
		if persistence.IsExecutionExists(err) {
			existing, getErr := executions.GetByTriggerEvent(ctx, workflow.ID, subscriberID, triggerEventID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to resolve existing execution: %w", getErr)
			}

			t.logger.Debug("Trigger event already admitted, skipping",
				"workflow_id", workflow.ID,
				"subscriber_id", subscriberID,
				"trigger_event_id", triggerEventID)

			return existing, false, nil
		}

		return nil, false, fmt.Errorf("failed to create execution: %w", err)
	}

	if err := t.scheduler.Enqueue(ctx, execution, time.Now().UTC()); err != nil {
		return nil, false, err
	}

	t.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:    t.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		SubscriberID: subscriberID,
		EntryStepID:  execution.CurrentStepID,
	})

	t.logger.Info("Execution started",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"subscriber_id", subscriberID)

	return execution, true, nil
}

// CancelExecution stops a non-terminal execution and drops its queue item.
func (t *Tracker) CancelExecution(ctx context.Context, execution *models.Execution) error {
	if err := execution.Cancel(time.Now().UTC()); err != nil {
		return err
	}

	if err := t.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist cancellation of %s: %w", execution.ID, err)
	}

	if err := t.scheduler.Cancel(ctx, execution.ID); err != nil {
		return fmt.Errorf("failed to remove queue item of %s: %w", execution.ID, err)
	}

	t.publish(ctx, execution.ID, events.ExecutionCancelled{
		BaseEvent:    t.baseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		SubscriberID: execution.SubscriberID,
	})

	return nil
}

func (t *Tracker) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (t *Tracker) publish(ctx context.Context, key string, event eventbus.Event) {
	if t.publisher == nil {
		return
	}

	if err := t.publisher.Publish(ctx, key, event); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}
