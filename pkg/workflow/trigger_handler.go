package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// TriggerHandler consumes TriggerFired events from the bus and admits
// subscribers into every active workflow whose trigger matches. Execution
// creation is idempotent on the event id, so redelivered bus messages never
// double-admit.
type TriggerHandler struct {
	persistence persistence.Persistence
	tracker     *Tracker
	logger      *slog.Logger
}

// NewTriggerHandler creates a trigger handler.
func NewTriggerHandler(p persistence.Persistence, tracker *Tracker, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{
		persistence: p,
		tracker:     tracker,
		logger:      logger.With("module", "trigger_handler"),
	}
}

// Start registers the handler and begins consuming.
func (h *TriggerHandler) Start(ctx context.Context, bus eventbus.EventBus) error {
	if err := bus.Handle(events.TriggerFiredEvent, h.handleTriggerFired); err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}

func (h *TriggerHandler) handleTriggerFired(ctx context.Context, event any) error {
	fired, ok := event.(*events.TriggerFired)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	if fired.SubscriberID == "" {
		h.logger.WarnContext(ctx, "Trigger event without subscriber, ignoring", "event_id", fired.ID)

		return nil
	}

	workflows, err := h.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusActive {
			continue
		}

		if !workflow.Trigger.Matches(fired.TriggerKind, fired.SegmentID, fired.EventType) {
			continue
		}

		if _, created, err := h.tracker.StartExecution(ctx, workflow, fired.SubscriberID, fired.ID); err != nil {
			return err
		} else if created {
			h.logger.InfoContext(ctx, "Trigger admitted subscriber",
				"workflow_id", workflow.ID,
				"subscriber_id", fired.SubscriberID,
				"trigger_kind", fired.TriggerKind)
		}
	}

	return nil
}
