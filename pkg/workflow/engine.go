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
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/scheduler"
)

// maxStepsPerExecution caps the number of recorded step attempts. Graphs can
// contain cycles through condition branches; the cap turns a runaway loop
// into a failed execution instead of an immortal one.
const maxStepsPerExecution = 100

// Engine processes claimed queue items: it runs the execution's current step
// and applies the step result to execution and queue state. One queue item
// drives one step; advancing re-enqueues the execution immediately.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(
	p persistence.Persistence,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		registry:    reg,
		scheduler:   sched,
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
	}
}

// Process runs the current step of the item's execution. A returned error
// means infrastructure failure; the worker releases the item with backoff.
func (e *Engine) Process(ctx context.Context, item *models.QueueItem) error {
	logger := e.logger.With("execution_id", item.ExecutionID, "workflow_id", item.WorkflowID)

	executions := e.persistence.ExecutionRepository()

	execution, err := executions.GetByID(ctx, item.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "Queue item references missing execution, dropping")

			return e.scheduler.Complete(ctx, item)
		}

		return fmt.Errorf("failed to load execution: %w", err)
	}

	if execution.Status.Terminal() {
		// Cancelled or finished while the item was in flight.
		logger.DebugContext(ctx, "Execution already terminal, dropping item", "status", execution.Status)

		return e.scheduler.Complete(ctx, item)
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return e.failExecution(ctx, execution, item, "workflow definition no longer exists")
		}

		return fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow.Status != models.WorkflowStatusActive {
		// Paused without cancellation: drop the item and leave the execution
		// suspended. Activation re-enqueues it.
		logger.InfoContext(ctx, "Workflow not active, suspending execution", "workflow_status", workflow.Status)

		return e.scheduler.Complete(ctx, item)
	}

	if len(execution.History) >= maxStepsPerExecution {
		return e.failExecution(ctx, execution, item, fmt.Sprintf("execution exceeded %d steps", maxStepsPerExecution))
	}

	now := time.Now().UTC()

	if err := execution.Start(now); err != nil {
		return err
	}

	if err := executions.Update(ctx, execution); err != nil {
		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	step, ok := workflow.StepByID(execution.CurrentStepID)
	if !ok {
		return e.failExecution(ctx, execution, item, fmt.Sprintf("step %q not found in workflow", execution.CurrentStepID))
	}

	executor, err := e.registry.ExecutorFor(step.Kind)
	if err != nil {
		return e.failExecution(ctx, execution, item, err.Error())
	}

	scope := protocol.StepScope{Execution: execution, Workflow: workflow, Now: now}

	result, err := executor.Execute(ctx, step, scope, logger.With("step_id", step.ID, "step_kind", step.Kind))
	if err != nil {
		// Infrastructure failure. Return the execution to the queue so the
		// released item finds it claimable again.
		if retryErr := execution.Retry(now); retryErr != nil {
			return retryErr
		}

		if updateErr := executions.Update(ctx, execution); updateErr != nil {
			return fmt.Errorf("failed to reset execution after step error: %w", updateErr)
		}

		return fmt.Errorf("step %s failed: %w", step.ID, err)
	}

	return e.applyResult(ctx, execution, workflow, step, result, item, now)
}

// Abandon terminally fails an execution whose queue item exhausted its retry
// budget.
func (e *Engine) Abandon(ctx context.Context, item *models.QueueItem, reason string) error {
	executions := e.persistence.ExecutionRepository()

	execution, err := executions.GetByID(ctx, item.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil
		}

		return err
	}

	if execution.Status.Terminal() {
		return nil
	}

	if err := execution.Fail("retry budget exhausted: "+reason, time.Now().UTC()); err != nil {
		return err
	}

	if err := executions.Update(ctx, execution); err != nil {
		return err
	}

	e.publishFailed(ctx, execution, execution.CurrentStepID, execution.Error)

	return nil
}

func (e *Engine) applyResult(
	ctx context.Context,
	execution *models.Execution,
	workflow *models.Workflow,
	step *models.Step,
	result models.StepResult,
	item *models.QueueItem,
	startedAt time.Time,
) error {
	now := time.Now().UTC()

	execution.RecordStep(models.StepRecord{
		StepID:     step.ID,
		Kind:       step.Kind,
		Outcome:    result.Outcome(),
		StartedAt:  startedAt,
		FinishedAt: now,
		Error:      result.Reason,
	})

	switch result.Kind {
	case models.StepResultAdvance, models.StepResultBranch:
		if step.Kind == models.StepKindSendEmail && step.SendEmail != nil {
			e.publish(ctx, execution.ID, events.EmailSent{
				BaseEvent:    e.baseEvent(events.EmailSentEvent, workflow.ID),
				ExecutionID:  execution.ID,
				SubscriberID: execution.SubscriberID,
				StepID:       step.ID,
				TemplateID:   step.SendEmail.TemplateID,
			})
		}

		if result.NextStepID == "" {
			return e.completeExecution(ctx, execution, item, now)
		}

		if err := execution.AdvanceTo(result.NextStepID); err != nil {
			return err
		}

		if cancelled, err := e.persistIfNotCancelled(ctx, execution, item); cancelled || err != nil {
			return err
		}

		// Re-enqueue immediately; the upsert resets the claimed item.
		return e.scheduler.Enqueue(ctx, execution, now)

	case models.StepResultDefer:
		if result.NextStepID == "" {
			// Trailing delay with no follow-up step: nothing to wake for.
			return e.completeExecution(ctx, execution, item, now)
		}

		if err := execution.Defer(result.NextStepID, result.DueAt); err != nil {
			return err
		}

		if cancelled, err := e.persistIfNotCancelled(ctx, execution, item); cancelled || err != nil {
			return err
		}

		return e.scheduler.Enqueue(ctx, execution, result.DueAt)

	case models.StepResultFail:
		if !result.Retryable {
			return e.failExecution(ctx, execution, item, result.Reason)
		}

		exhausted, retryAt, err := e.scheduler.Release(ctx, item)
		if err != nil {
			return err
		}

		if exhausted {
			return e.failExecutionInPlace(ctx, execution, "retry budget exhausted: "+result.Reason, now)
		}

		if err := execution.Retry(retryAt); err != nil {
			return err
		}

		if cancelled, err := e.persistIfNotCancelled(ctx, execution, nil); cancelled || err != nil {
			return err
		}

		e.logger.WarnContext(ctx, "Step failed, retry scheduled",
			"execution_id", execution.ID,
			"step_id", step.ID,
			"retry_at", retryAt,
			"reason", result.Reason)

		return nil

	default:
		return e.failExecution(ctx, execution, item, fmt.Sprintf("unknown step result kind %q", result.Kind))
	}
}

// persistIfNotCancelled re-checks the stored execution before overwriting it.
// A pause with cancellation can land between our load and this write; the
// check keeps the cancel from being silently resurrected. When cancelled, the
// claimed item (if given) is dropped.
func (e *Engine) persistIfNotCancelled(ctx context.Context, execution *models.Execution, item *models.QueueItem) (bool, error) {
	executions := e.persistence.ExecutionRepository()

	fresh, err := executions.GetByID(ctx, execution.ID)
	if err != nil {
		return false, err
	}

	if fresh.Status == models.ExecutionStatusCancelled {
		e.logger.InfoContext(ctx, "Execution cancelled mid-step, discarding result", "execution_id", execution.ID)

		if item != nil {
			if err := e.scheduler.Complete(ctx, item); err != nil {
				return true, err
			}
		}

		return true, nil
	}

	if err := executions.Update(ctx, execution); err != nil {
		return false, err
	}

	return false, nil
}

func (e *Engine) completeExecution(ctx context.Context, execution *models.Execution, item *models.QueueItem, now time.Time) error {
	if err := execution.Complete(now); err != nil {
		return err
	}

	if cancelled, err := e.persistIfNotCancelled(ctx, execution, item); cancelled || err != nil {
		return err
	}

	if err := e.scheduler.Complete(ctx, item); err != nil {
		return err
	}

	e.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:    e.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		SubscriberID: execution.SubscriberID,
		Duration:     execution.Duration(),
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"duration", execution.Duration())

	return nil
}

func (e *Engine) failExecution(ctx context.Context, execution *models.Execution, item *models.QueueItem, reason string) error {
	if err := e.failExecutionInPlace(ctx, execution, reason, time.Now().UTC()); err != nil {
		return err
	}

	return e.scheduler.Complete(ctx, item)
}

func (e *Engine) failExecutionInPlace(ctx context.Context, execution *models.Execution, reason string, now time.Time) error {
	if err := execution.Fail(reason, now); err != nil {
		return err
	}

	if err := e.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	e.publishFailed(ctx, execution, execution.CurrentStepID, reason)

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"reason", reason)

	return nil
}

func (e *Engine) publishFailed(ctx context.Context, execution *models.Execution, stepID, reason string) {
	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:    e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		SubscriberID: execution.SubscriberID,
		StepID:       stepID,
		Error:        reason,
	})
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}
