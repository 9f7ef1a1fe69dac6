// Package memory provides an in-memory persistence implementation used for
// tests and local development.
package memory

import (
	"context"

	"github.com/dripline/dripline/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	queue      *QueueRepository
	deliveries *DeliveryRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  NewWorkflowRepository(),
		executions: NewExecutionRepository(),
		queue:      NewQueueRepository(),
		deliveries: NewDeliveryRepository(),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queue
}

func (p *Persistence) DeliveryRepository() persistence.DeliveryRepository {
	return p.deliveries
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
