package models

import "time"

// QueueItem is one scheduled, time-gated unit of pending work tied to one
// execution. The queue holds at most one item per in-flight execution, which
// is what prevents two workers from driving the same execution concurrently.
type QueueItem struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	WorkflowID  string     `json:"workflow_id"`
	DueAt       time.Time  `json:"due_at"`
	Attempts    int        `json:"attempts"`
	LeaseUntil  *time.Time `json:"lease_until,omitempty"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Leased reports whether the item is currently claimed by a live lease.
func (q *QueueItem) Leased(now time.Time) bool {
	return q.LeaseUntil != nil && q.LeaseUntil.After(now)
}

// Due reports whether the item is eligible for pickup. DueAt is
// authoritative: an item must never be claimed before it.
func (q *QueueItem) Due(now time.Time) bool {
	return !q.DueAt.After(now)
}

// QueueMetrics is the operator-facing queue health snapshot.
type QueueMetrics struct {
	Pending            int           `json:"pending"`
	Overdue            int           `json:"overdue"`
	OldestUnclaimedAge time.Duration `json:"oldest_unclaimed_age"`
}
