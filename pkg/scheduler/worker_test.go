package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/scheduler"
)

// stubProcessor records what the worker hands it and stops the worker after
// the first item, keeping the poll loop deterministic.
type stubProcessor struct {
	mu        sync.Mutex
	processed []string
	abandoned []string
	fail      error
	stop      context.CancelFunc
}

func (p *stubProcessor) Process(_ context.Context, item *models.QueueItem) error {
	p.mu.Lock()
	p.processed = append(p.processed, item.ExecutionID)
	p.mu.Unlock()

	p.stop()

	return p.fail
}

func (p *stubProcessor) Abandon(_ context.Context, item *models.QueueItem, _ string) error {
	p.mu.Lock()
	p.abandoned = append(p.abandoned, item.ExecutionID)
	p.mu.Unlock()

	return nil
}

func runWorker(t *testing.T, sched *scheduler.Scheduler, processor *stubProcessor) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	processor.stop = cancel

	worker := scheduler.NewWorker("w-test", sched, processor, otel.Tracer("test"), slog.Default(), scheduler.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
	})

	err := worker.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorker_ProcessesDueItems(t *testing.T) {
	sched, _ := newScheduler()
	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))

	processor := &stubProcessor{}
	runWorker(t, sched, processor)

	assert.Equal(t, []string{"e1"}, processor.processed)
}

func TestWorker_ReleasesFailedItemsWithBackoff(t *testing.T) {
	sched, queue := newScheduler()
	require.NoError(t, sched.Enqueue(t.Context(), pendingExecution("e1"), time.Now().UTC()))

	processor := &stubProcessor{fail: errors.New("persistence down")}
	runWorker(t, sched, processor)

	assert.Empty(t, processor.abandoned)

	// The item is back in the queue with one more attempt on the clock.
	items, err := queue.Claim(t.Context(), time.Now().UTC().Add(time.Hour), 10, time.Second, "w2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
}

func TestWorker_AbandonsExhaustedItems(t *testing.T) {
	sched, queue := newScheduler()

	require.NoError(t, queue.Enqueue(t.Context(), &models.QueueItem{
		ID:          "i1",
		ExecutionID: "e1",
		WorkflowID:  "wf-1",
		DueAt:       time.Now().UTC(),
		Attempts:    scheduler.DefaultMaxAttempts - 1,
	}))

	processor := &stubProcessor{fail: errors.New("persistence down")}
	runWorker(t, sched, processor)

	assert.Equal(t, []string{"e1"}, processor.abandoned)

	items, err := queue.Claim(t.Context(), time.Now().UTC().Add(time.Hour), 10, time.Second, "w2")
	require.NoError(t, err)
	assert.Empty(t, items)
}
