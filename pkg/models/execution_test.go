package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecution(t *testing.T) *Execution {
	t.Helper()

	return NewExecution("exec-1", validWorkflow(), "sub-1", "evt-1")
}

func TestNewExecution_StartsPendingAtEntry(t *testing.T) {
	execution := newTestExecution(t)

	assert.Equal(t, ExecutionStatusPending, execution.Status)
	assert.Equal(t, "wait", execution.CurrentStepID)
	assert.Nil(t, execution.StartedAt)
}

func TestExecution_HappyPathTransitions(t *testing.T) {
	execution := newTestExecution(t)
	now := time.Now().UTC()

	require.NoError(t, execution.Start(now))
	assert.Equal(t, ExecutionStatusRunning, execution.Status)
	require.NotNil(t, execution.StartedAt)

	dueAt := now.Add(24 * time.Hour)
	require.NoError(t, execution.Defer("welcome", dueAt))
	assert.Equal(t, ExecutionStatusWaitingDelay, execution.Status)
	assert.Equal(t, "welcome", execution.CurrentStepID)
	require.NotNil(t, execution.ScheduledAt)
	assert.Equal(t, dueAt, *execution.ScheduledAt)

	require.NoError(t, execution.Start(dueAt))
	require.NoError(t, execution.Complete(dueAt.Add(time.Second)))
	assert.Equal(t, ExecutionStatusCompleted, execution.Status)
	assert.Nil(t, execution.ScheduledAt)
	require.NotNil(t, execution.FinishedAt)
}

func TestExecution_StartKeepsFirstStartedAt(t *testing.T) {
	execution := newTestExecution(t)
	first := time.Now().UTC()

	require.NoError(t, execution.Start(first))
	require.NoError(t, execution.AdvanceTo("welcome"))
	require.NoError(t, execution.Start(first.Add(time.Minute)))

	assert.Equal(t, first, *execution.StartedAt)
}

func TestExecution_TerminalStatesAreAbsorbing(t *testing.T) {
	now := time.Now().UTC()

	completed := newTestExecution(t)
	require.NoError(t, completed.Start(now))
	require.NoError(t, completed.Complete(now))

	var invalid *InvalidTransitionError

	err := completed.Start(now)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ExecutionStatusCompleted, invalid.From)

	require.Error(t, completed.Cancel(now))
	require.Error(t, completed.Fail("nope", now))

	cancelled := newTestExecution(t)
	require.NoError(t, cancelled.Cancel(now))
	require.Error(t, cancelled.Start(now))
}

func TestExecution_InvalidTransitions(t *testing.T) {
	execution := newTestExecution(t)
	now := time.Now().UTC()

	// Pending cannot defer or complete without running first.
	require.Error(t, execution.Defer("welcome", now))
	require.Error(t, execution.Complete(now))
}

func TestExecution_ReclaimAfterWorkerCrash(t *testing.T) {
	// A worker that dies mid-step leaves the stored status at running. Once
	// the queue lease expires, the next claimant starts the step again.
	execution := newTestExecution(t)
	first := time.Now().UTC()

	require.NoError(t, execution.Start(first))
	require.NoError(t, execution.Start(first.Add(time.Minute)))

	assert.Equal(t, ExecutionStatusRunning, execution.Status)
	assert.Equal(t, first, *execution.StartedAt)
}

func TestExecution_FailFromPending(t *testing.T) {
	// Retry exhaustion fails an execution that was queued, not running.
	execution := newTestExecution(t)

	require.NoError(t, execution.Fail("retry budget exhausted", time.Now().UTC()))
	assert.Equal(t, ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "retry budget exhausted", execution.Error)
}

func TestExecution_CancelFromWaitingDelay(t *testing.T) {
	execution := newTestExecution(t)
	now := time.Now().UTC()

	require.NoError(t, execution.Start(now))
	require.NoError(t, execution.Defer("welcome", now.Add(time.Hour)))
	require.NoError(t, execution.Cancel(now))

	assert.Equal(t, ExecutionStatusCancelled, execution.Status)
	assert.Nil(t, execution.ScheduledAt)
}

func TestExecution_RetryKeepsCurrentStep(t *testing.T) {
	execution := newTestExecution(t)
	now := time.Now().UTC()

	require.NoError(t, execution.Start(now))

	retryAt := now.Add(10 * time.Second)
	require.NoError(t, execution.Retry(retryAt))

	assert.Equal(t, ExecutionStatusPending, execution.Status)
	assert.Equal(t, "wait", execution.CurrentStepID)
	assert.Equal(t, retryAt, *execution.ScheduledAt)
}

func TestExecution_HistoryAndVisited(t *testing.T) {
	execution := newTestExecution(t)
	now := time.Now().UTC()

	execution.RecordStep(StepRecord{StepID: "wait", Kind: StepKindDelay, Outcome: StepOutcomeDeferred, StartedAt: now, FinishedAt: now})
	execution.RecordStep(StepRecord{StepID: "welcome", Kind: StepKindSendEmail, Outcome: StepOutcomeCompleted, StartedAt: now, FinishedAt: now})

	assert.Len(t, execution.History, 2)
	assert.True(t, execution.Visited("wait"))
	assert.False(t, execution.Visited("check"))
}

func TestExecution_Duration(t *testing.T) {
	execution := newTestExecution(t)

	assert.Zero(t, execution.Duration())

	start := time.Now().UTC()
	require.NoError(t, execution.Start(start))
	require.NoError(t, execution.Complete(start.Add(90 * time.Second)))

	assert.Equal(t, 90*time.Second, execution.Duration())
}
