// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/dripline/dripline/pkg/models"
)

type EventType string

// Topic is the single bus topic all lifecycle events flow through.
const Topic = "dripline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trigger events.
	TriggerFiredEvent EventType = "trigger.fired"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Delivery events.
	EmailSentEvent EventType = "email.sent"

	// Workflow lifecycle events.
	WorkflowActivatedEvent EventType = "workflow.activated"
	WorkflowPausedEvent    EventType = "workflow.paused"

	// Ticket escalation events.
	TicketEscalatedEvent EventType = "ticket.escalated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TriggerFired announces an external occurrence a workflow may react to:
// a subscriber joined a segment, a tracked event was recorded, or an
// operator fired a manual trigger. The event ID doubles as the idempotency
// key for execution creation.
type TriggerFired struct {
	BaseEvent

	TriggerKind  models.TriggerKind `json:"trigger_kind"`
	SegmentID    string             `json:"segment_id,omitempty"`
	EventType    string             `json:"event_type,omitempty"`
	SubscriberID string             `json:"subscriber_id"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
	EntryStepID  string `json:"entry_step_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID  string        `json:"execution_id"`
	SubscriberID string        `json:"subscriber_id"`
	Duration     time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
	StepID       string `json:"step_id,omitempty"`
	Error        string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type EmailSent struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	SubscriberID string `json:"subscriber_id"`
	StepID       string `json:"step_id"`
	TemplateID   string `json:"template_id"`
}

func (e EmailSent) GetType() EventType {
	return EmailSentEvent
}

type WorkflowActivated struct {
	BaseEvent

	RegisteredExisting int `json:"registered_existing"`
}

func (e WorkflowActivated) GetType() EventType {
	return WorkflowActivatedEvent
}

type WorkflowPaused struct {
	BaseEvent

	CancelledPending int `json:"cancelled_pending"`
}

func (e WorkflowPaused) GetType() EventType {
	return WorkflowPausedEvent
}

type TicketEscalated struct {
	BaseEvent

	TicketID string `json:"ticket_id"`
	RuleID   string `json:"rule_id"`
	Priority string `json:"priority"`
}

func (e TicketEscalated) GetType() EventType {
	return TicketEscalatedEvent
}
