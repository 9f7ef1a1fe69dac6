// Package persistence provides the data storage abstraction for workflows,
// executions and the scheduling queue.
package persistence

import (
	"context"
	"time"

	"github.com/dripline/dripline/pkg/models"
)

// Persistence bundles the repositories backing the engine. The workflow
// definition is read-mostly during execution; workers mutate only execution
// and queue records, and only through the operations below.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	QueueRepository() QueueRepository
	DeliveryRepository() DeliveryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ListExecutionsOptions filters and paginates execution listings.
type ListExecutionsOptions struct {
	WorkflowID   string
	SubscriberID string
	Status       *models.ExecutionStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// ExecutionListResult is a page of executions plus the unpaginated total.
type ExecutionListResult struct {
	Executions []*models.Execution
	TotalCount int64
}

// ExecutionRepository stores execution records. Create enforces the
// uniqueness invariant: at most one execution per
// (workflow, subscriber, trigger event) triple.
type ExecutionRepository interface {
	// Create persists a new execution. It returns ErrExecutionExists when an
	// execution for the same (workflow, subscriber, trigger event) triple is
	// already present.
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// GetByTriggerEvent resolves the execution for an idempotency triple.
	GetByTriggerEvent(ctx context.Context, workflowID, subscriberID, triggerEventID string) (*models.Execution, error)
	Update(ctx context.Context, execution *models.Execution) error
	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)
	// ListByWorkflowAndStatus returns every execution of a workflow in one of
	// the given statuses; used by pause(cancelPending) and analytics.
	ListByWorkflowAndStatus(ctx context.Context, workflowID string, statuses ...models.ExecutionStatus) ([]*models.Execution, error)
}

// QueueRepository is the durable, time-aware work queue. It keeps at most
// one item per execution; Enqueue upserts on the execution id.
type QueueRepository interface {
	// Enqueue inserts the item or reschedules the existing item for the same
	// execution. The written DueAt is authoritative.
	Enqueue(ctx context.Context, item *models.QueueItem) error
	// Claim atomically claims up to limit items with DueAt <= now that carry
	// no live lease, setting a lease of the given duration owned by workerID.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration, workerID string) ([]*models.QueueItem, error)
	// Complete removes a finished item.
	Complete(ctx context.Context, itemID string) error
	// Release returns a claimed item to the queue, due again at retryAt with
	// an incremented attempt count.
	Release(ctx context.Context, itemID string, retryAt time.Time) error
	// RemoveByExecution drops the pending item of an execution, if any.
	// Used when executions are cancelled.
	RemoveByExecution(ctx context.Context, executionID string) error
	Metrics(ctx context.Context, now time.Time) (*models.QueueMetrics, error)
}

// DeliveryRepository records send markers keyed by (execution, step). The
// queue guarantees at-least-once processing, so the send executor claims a
// marker before handing the message to the transport; a reclaimed item finds
// the marker and skips the duplicate send.
type DeliveryRepository interface {
	// MarkSent atomically claims the send marker. It returns false when the
	// marker was already claimed by an earlier attempt.
	MarkSent(ctx context.Context, executionID, stepID string) (bool, error)
	// ClearSent releases a claimed marker after a transient send failure so
	// the retry can attempt the send again.
	ClearSent(ctx context.Context, executionID, stepID string) error
}
