package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// QueueRepository is the in-memory work queue. A single mutex makes every
// claim atomic, which is what upholds the at-most-one-active-worker
// guarantee in tests and single-process deployments.
type QueueRepository struct {
	mu          sync.Mutex
	items       map[string]*models.QueueItem // keyed by item id
	byExecution map[string]string            // execution id -> item id
}

// NewQueueRepository creates an empty queue.
func NewQueueRepository() *QueueRepository {
	return &QueueRepository{
		items:       make(map[string]*models.QueueItem),
		byExecution: make(map[string]string),
	}
}

func (r *QueueRepository) Enqueue(_ context.Context, item *models.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One item per execution: a re-enqueue replaces the existing schedule.
	if existingID, ok := r.byExecution[item.ExecutionID]; ok {
		existing := r.items[existingID]
		existing.DueAt = item.DueAt
		existing.Attempts = item.Attempts
		existing.LeaseUntil = nil
		existing.ClaimedBy = ""

		return nil
	}

	copied := *item
	r.items[item.ID] = &copied
	r.byExecution[item.ExecutionID] = item.ID

	return nil
}

func (r *QueueRepository) Claim(_ context.Context, now time.Time, limit int, lease time.Duration, workerID string) ([]*models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eligible := make([]*models.QueueItem, 0)

	for _, item := range r.items {
		if item.Due(now) && !item.Leased(now) {
			eligible = append(eligible, item)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].DueAt.Before(eligible[j].DueAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*models.QueueItem, 0, len(eligible))

	for _, item := range eligible {
		leaseUntil := now.Add(lease)
		item.LeaseUntil = &leaseUntil
		item.ClaimedBy = workerID

		copied := *item
		claimed = append(claimed, &copied)
	}

	return claimed, nil
}

func (r *QueueRepository) Complete(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return persistence.ErrQueueItemNotFound
	}

	delete(r.byExecution, item.ExecutionID)
	delete(r.items, itemID)

	return nil
}

func (r *QueueRepository) Release(_ context.Context, itemID string, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return persistence.ErrQueueItemNotFound
	}

	item.DueAt = retryAt
	item.Attempts++
	item.LeaseUntil = nil
	item.ClaimedBy = ""

	return nil
}

func (r *QueueRepository) RemoveByExecution(_ context.Context, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	itemID, ok := r.byExecution[executionID]
	if !ok {
		return nil
	}

	delete(r.byExecution, executionID)
	delete(r.items, itemID)

	return nil
}

func (r *QueueRepository) Metrics(_ context.Context, now time.Time) (*models.QueueMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := &models.QueueMetrics{}

	var oldest *time.Time

	for _, item := range r.items {
		metrics.Pending++

		if item.Leased(now) {
			continue
		}

		if item.Due(now) {
			metrics.Overdue++
		}

		if oldest == nil || item.DueAt.Before(*oldest) {
			dueAt := item.DueAt
			oldest = &dueAt
		}
	}

	if oldest != nil && oldest.Before(now) {
		metrics.OldestUnclaimedAge = now.Sub(*oldest)
	}

	return metrics, nil
}
