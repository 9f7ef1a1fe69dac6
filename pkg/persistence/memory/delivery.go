package memory

import (
	"context"
	"sync"
)

// DeliveryRepository keeps send markers in memory.
type DeliveryRepository struct {
	mu   sync.Mutex
	sent map[string]bool
}

// NewDeliveryRepository creates an empty delivery ledger.
func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{sent: make(map[string]bool)}
}

// MarkSent claims the (execution, step) send marker, returning false when a
// previous attempt already claimed it.
func (r *DeliveryRepository) MarkSent(_ context.Context, executionID, stepID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := executionID + ":" + stepID
	if r.sent[key] {
		return false, nil
	}

	r.sent[key] = true

	return true, nil
}

// ClearSent releases a marker after a transient send failure.
func (r *DeliveryRepository) ClearSent(_ context.Context, executionID, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sent, executionID+":"+stepID)

	return nil
}
