// Package scheduler drives the durable scheduling queue: it enqueues
// execution work items, claims due items under a lease, and applies the
// retry backoff policy when items are released back to the queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

const (
	// DefaultMaxAttempts bounds retries of a single queue item before the
	// execution is failed terminally.
	DefaultMaxAttempts = 5

	baseRetryDelay = 5 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// Scheduler owns queue writes. All enqueueing and release decisions go
// through it so the backoff policy lives in one place.
type Scheduler struct {
	queue       persistence.QueueRepository
	logger      *slog.Logger
	maxAttempts int
}

// NewScheduler creates a scheduler over the given queue repository.
func NewScheduler(queue persistence.QueueRepository, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:       queue,
		logger:      logger.With("module", "scheduler"),
		maxAttempts: DefaultMaxAttempts,
	}
}

// Enqueue schedules the execution to run at dueAt. The queue keeps one item
// per execution, so enqueueing an already queued execution reschedules it.
func (s *Scheduler) Enqueue(ctx context.Context, execution *models.Execution, dueAt time.Time) error {
	item := &models.QueueItem{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		DueAt:       dueAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("failed to enqueue execution %s: %w", execution.ID, err)
	}

	s.logger.Debug("Enqueued execution",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"due_at", item.DueAt)

	return nil
}

// Claim atomically claims up to limit due items for workerID under lease.
func (s *Scheduler) Claim(ctx context.Context, limit int, lease time.Duration, workerID string) ([]*models.QueueItem, error) {
	return s.queue.Claim(ctx, time.Now().UTC(), limit, lease, workerID)
}

// Complete removes a finished item from the queue. A cancellation can remove
// the item while a worker still holds its claim, so a missing item is not an
// error.
func (s *Scheduler) Complete(ctx context.Context, item *models.QueueItem) error {
	if err := s.queue.Complete(ctx, item.ID); err != nil && !errors.Is(err, persistence.ErrQueueItemNotFound) {
		return err
	}

	return nil
}

// Release returns a claimed item to the queue with backoff, or reports
// exhaustion when the item already burned its attempt budget. Exhausted items
// are removed; the caller fails the execution.
func (s *Scheduler) Release(ctx context.Context, item *models.QueueItem) (exhausted bool, retryAt time.Time, err error) {
	// Attempts counts prior failed attempts; this failure makes one more.
	if item.Attempts+1 >= s.maxAttempts {
		if err := s.queue.Complete(ctx, item.ID); err != nil {
			return false, time.Time{}, fmt.Errorf("failed to drop exhausted item %s: %w", item.ID, err)
		}

		s.logger.Warn("Queue item exhausted retry budget",
			"execution_id", item.ExecutionID,
			"attempts", item.Attempts)

		return true, time.Time{}, nil
	}

	retryAt = time.Now().UTC().Add(RetryDelay(item.Attempts))
	if err := s.queue.Release(ctx, item.ID, retryAt); err != nil {
		return false, time.Time{}, fmt.Errorf("failed to release item %s: %w", item.ID, err)
	}

	s.logger.Debug("Released queue item for retry",
		"execution_id", item.ExecutionID,
		"attempts", item.Attempts,
		"retry_at", retryAt)

	return false, retryAt, nil
}

// Cancel drops the pending item of an execution, if any.
func (s *Scheduler) Cancel(ctx context.Context, executionID string) error {
	return s.queue.RemoveByExecution(ctx, executionID)
}

// Metrics returns a point-in-time snapshot of queue depth and lag.
func (s *Scheduler) Metrics(ctx context.Context) (*models.QueueMetrics, error) {
	return s.queue.Metrics(ctx, time.Now().UTC())
}

// RetryDelay is the bounded exponential backoff for the given completed
// attempt count: base * 2^attempts, capped.
func RetryDelay(attempts int) time.Duration {
	delay := baseRetryDelay
	for range attempts {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return delay
}
