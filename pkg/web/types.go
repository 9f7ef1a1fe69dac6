package web

import (
	"github.com/dripline/dripline/pkg/models"
)

// CreateWorkflowRequest is the payload for creating a workflow draft.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Trigger     models.Trigger `json:"trigger"`
	Steps       []*models.Step `json:"steps"`
}

// UpdateWorkflowRequest replaces a workflow definition.
type UpdateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Trigger     models.Trigger `json:"trigger"`
	Steps       []*models.Step `json:"steps"`
}

// ActivateWorkflowRequest controls activation behavior.
type ActivateWorkflowRequest struct {
	// RegisterExisting admits current segment members on activation.
	RegisterExisting bool `json:"register_existing"`
}

// PauseWorkflowRequest controls pause behavior.
type PauseWorkflowRequest struct {
	// CancelPending cancels in-flight executions instead of suspending them.
	CancelPending bool `json:"cancel_pending"`
}

// TestWorkflowRequest tests a workflow for one subscriber. DryRun defaults
// to true; set it to false to admit the subscriber as a real execution.
type TestWorkflowRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	DryRun       *bool  `json:"dry_run"`
}

// FireTriggerRequest publishes a trigger occurrence onto the bus.
type FireTriggerRequest struct {
	Kind         models.TriggerKind `json:"kind"          validate:"required"`
	SegmentID    string             `json:"segment_id"`
	EventType    string             `json:"event_type"`
	SubscriberID string             `json:"subscriber_id" validate:"required"`
	// EventID is the idempotency key; omitted, one is generated and the
	// occurrence is treated as unique.
	EventID string `json:"event_id"`
}
