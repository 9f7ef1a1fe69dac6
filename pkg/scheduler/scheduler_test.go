package scheduler_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/scheduler"
)

func newScheduler() (*scheduler.Scheduler, *memory.QueueRepository) {
	queue := memory.NewQueueRepository()

	return scheduler.NewScheduler(queue, slog.Default()), queue
}

func pendingExecution(id string) *models.Execution {
	return &models.Execution{
		ID:         id,
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusPending,
	}
}

func TestRetryDelay(t *testing.T) {
	for attempts, want := range map[int]time.Duration{
		0: 5 * time.Second,
		1: 10 * time.Second,
		2: 20 * time.Second,
		3: 40 * time.Second,
		6: 5 * time.Minute,
		9: 5 * time.Minute, // capped
	} {
		assert.Equal(t, want, scheduler.RetryDelay(attempts), "attempts=%d", attempts)
	}
}

func TestScheduler_EnqueueAndClaim(t *testing.T) {
	sched, _ := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC().Add(-time.Second)))
	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e2"), time.Now().UTC().Add(time.Hour)))

	claimed, err := sched.Claim(t.Context(), 10, 30*time.Second, "w1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "e1", claimed[0].ExecutionID)
}

func TestScheduler_ReleaseBacksOff(t *testing.T) {
	sched, _ := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))

	claimed, err := sched.Claim(t.Context(), 1, 30*time.Second, "w1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	exhausted, retryAt, err := sched.Release(t.Context(), claimed[0])
	require.NoError(t, err)
	assert.False(t, exhausted)
	assert.WithinDuration(t, time.Now().UTC().Add(scheduler.RetryDelay(0)), retryAt, 2*time.Second)
}

func TestScheduler_ReleaseReportsExhaustion(t *testing.T) {
	sched, queue := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))

	claimed, err := sched.Claim(t.Context(), 1, 30*time.Second, "w1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	item := claimed[0]
	item.Attempts = scheduler.DefaultMaxAttempts - 1

	exhausted, _, err := sched.Release(t.Context(), item)
	require.NoError(t, err)
	assert.True(t, exhausted)

	// The exhausted item is gone.
	remaining, err := queue.Claim(t.Context(), time.Now().UTC().Add(time.Hour), 10, time.Second, "w1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestScheduler_CompleteIsIdempotent(t *testing.T) {
	sched, _ := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))

	claimed, err := sched.Claim(t.Context(), 1, 30*time.Second, "w1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, sched.Complete(t.Context(), claimed[0]))
	// A cancellation may have removed the item already.
	require.NoError(t, sched.Complete(t.Context(), claimed[0]))
}

func TestScheduler_CancelRemovesExecutionItem(t *testing.T) {
	sched, _ := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))
	require.NoError(t, sched.Cancel(t.Context(), "e1"))

	claimed, err := sched.Claim(t.Context(), 10, 30*time.Second, "w1")
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestScheduler_Metrics(t *testing.T) {
	sched, _ := newScheduler()

	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC().Add(-time.Minute)))
	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e2"), time.Now().UTC().Add(time.Hour)))

	metrics, err := sched.Metrics(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Pending)
	assert.Equal(t, 1, metrics.Overdue)
}
