package workflow_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/channels/gochannel"
	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/workflow"
)

func newTriggerBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func fireTrigger(t *testing.T, bus eventbus.EventBus, eventID, subscriberID string) {
	t.Helper()

	err := bus.Publish(t.Context(), eventID, events.TriggerFired{
		BaseEvent: events.BaseEvent{
			ID:        eventID,
			Type:      events.TriggerFiredEvent,
			Timestamp: time.Now().UTC(),
		},
		TriggerKind:  models.TriggerKindSegmentJoined,
		SegmentID:    "seg-new",
		SubscriberID: subscriberID,
	})
	require.NoError(t, err)
}

// executionCount is polled from assert.Eventually, so it must not fail the
// test itself.
func executionCount(t *testing.T, f *engineFixture, workflowID string) int64 {
	result, err := f.persistence.ExecutionRepository().List(t.Context(), persistence.ListExecutionsOptions{WorkflowID: workflowID})
	if err != nil {
		return -1
	}

	return result.TotalCount
}

func TestTriggerHandler_AdmitsMatchingSubscribers(t *testing.T) {
	f := newEngineFixture(t)

	active := delayThenEmailWorkflow()
	f.saveWorkflow(t, active)

	// A paused workflow with the same trigger must not admit anyone.
	paused := delayThenEmailWorkflow()
	paused.ID = "wf-paused"
	paused.Status = models.WorkflowStatusPaused
	f.saveWorkflow(t, paused)

	// An active workflow listening on a different segment.
	other := delayThenEmailWorkflow()
	other.ID = "wf-other"
	other.Trigger.SegmentID = "seg-other"
	f.saveWorkflow(t, other)

	bus := newTriggerBus(t)
	handler := workflow.NewTriggerHandler(f.persistence, f.tracker, slog.Default())
	require.NoError(t, handler.Start(t.Context(), bus))

	fireTrigger(t, bus, "evt-1", "sub-1")

	assert.Eventually(t, func() bool {
		return executionCount(t, f, active.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(0), executionCount(t, f, paused.ID))
	assert.Equal(t, int64(0), executionCount(t, f, other.ID))
}

func TestTriggerHandler_RedeliveryIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)

	active := delayThenEmailWorkflow()
	f.saveWorkflow(t, active)

	bus := newTriggerBus(t)
	handler := workflow.NewTriggerHandler(f.persistence, f.tracker, slog.Default())
	require.NoError(t, handler.Start(t.Context(), bus))

	fireTrigger(t, bus, "evt-1", "sub-1")
	fireTrigger(t, bus, "evt-1", "sub-1")
	fireTrigger(t, bus, "evt-2", "sub-1")

	assert.Eventually(t, func() bool {
		return executionCount(t, f, active.ID) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Still two after the duplicate settles.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), executionCount(t, f, active.ID))
}
