package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/workflow"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

// seedAnalyticsData stores a fixed population of executions:
//
//	day 1: two completed (5m and 15m wall time)
//	day 2: one failed, one cancelled, one still pending
func seedAnalyticsData(t *testing.T, f *serviceFixture, workflowID string) {
	t.Helper()

	day1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)

	record := func(outcome models.StepOutcome) []models.StepRecord {
		return []models.StepRecord{{
			StepID:  "welcome",
			Kind:    models.StepKindSendEmail,
			Outcome: outcome,
		}}
	}

	executions := []*models.Execution{
		{
			ID: "e1", WorkflowID: workflowID, SubscriberID: "s1", TriggerEventID: "t1",
			Status:    models.ExecutionStatusCompleted,
			History:   record(models.StepOutcomeCompleted),
			CreatedAt: day1, StartedAt: timePtr(day1), FinishedAt: timePtr(day1.Add(5 * time.Minute)),
		},
		{
			ID: "e2", WorkflowID: workflowID, SubscriberID: "s2", TriggerEventID: "t2",
			Status:    models.ExecutionStatusCompleted,
			History:   record(models.StepOutcomeCompleted),
			CreatedAt: day1.Add(time.Hour), StartedAt: timePtr(day1), FinishedAt: timePtr(day1.Add(15 * time.Minute)),
		},
		{
			ID: "e3", WorkflowID: workflowID, SubscriberID: "s3", TriggerEventID: "t3",
			Status:    models.ExecutionStatusFailed,
			History:   record(models.StepOutcomeFailed),
			CreatedAt: day2, StartedAt: timePtr(day2), FinishedAt: timePtr(day2.Add(time.Minute)),
		},
		{
			ID: "e4", WorkflowID: workflowID, SubscriberID: "s4", TriggerEventID: "t4",
			Status:    models.ExecutionStatusCancelled,
			CreatedAt: day2, FinishedAt: timePtr(day2.Add(time.Minute)),
		},
		{
			ID: "e5", WorkflowID: workflowID, SubscriberID: "s5", TriggerEventID: "t5",
			Status:    models.ExecutionStatusPending,
			CreatedAt: day2,
		},
	}

	for _, execution := range executions {
		require.NoError(t, f.persistence.ExecutionRepository().Create(t.Context(), execution))
	}
}

func TestService_AnalyticsAggregatesOutcomes(t *testing.T) {
	f := newServiceFixture(t)

	wf := delayThenEmailWorkflow()
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), wf))
	seedAnalyticsData(t, f, wf.ID)

	analytics, err := f.service.Analytics(t.Context(), wf.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, analytics.Entered)
	assert.Equal(t, 2, analytics.Completed)
	assert.Equal(t, 1, analytics.Failed)
	assert.Equal(t, 1, analytics.Cancelled)
	assert.Equal(t, 1, analytics.Active)
	assert.InDelta(t, 0.4, analytics.SuccessRate, 0.0001)
	assert.Equal(t, 10*time.Minute, analytics.AvgExecutionTime)

	require.Len(t, analytics.StepPerformance, 1)
	assert.Equal(t, "welcome", analytics.StepPerformance[0].StepID)
	assert.Equal(t, 3, analytics.StepPerformance[0].Entered)
	assert.Equal(t, 2, analytics.StepPerformance[0].Completed)
	assert.Equal(t, 1, analytics.StepPerformance[0].Failed)

	require.Len(t, analytics.Timeline, 2)
	assert.Equal(t, "2026-08-01", analytics.Timeline[0].Date)
	assert.Equal(t, 2, analytics.Timeline[0].Entered)
	assert.Equal(t, 2, analytics.Timeline[0].Completed)
	assert.Equal(t, "2026-08-02", analytics.Timeline[1].Date)
	assert.Equal(t, 3, analytics.Timeline[1].Entered)
	assert.Equal(t, 1, analytics.Timeline[1].Failed)
}

func TestService_AnalyticsIsDeterministic(t *testing.T) {
	f := newServiceFixture(t)

	wf := delayThenEmailWorkflow()
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), wf))
	seedAnalyticsData(t, f, wf.ID)

	first, err := f.service.Analytics(t.Context(), wf.ID, nil, nil)
	require.NoError(t, err)

	second, err := f.service.Analytics(t.Context(), wf.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestService_AnalyticsHonorsTimeRange(t *testing.T) {
	f := newServiceFixture(t)

	wf := delayThenEmailWorkflow()
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), wf))
	seedAnalyticsData(t, f, wf.ID)

	from := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	analytics, err := f.service.Analytics(t.Context(), wf.ID, &from, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, analytics.Entered)
	assert.Equal(t, 0, analytics.Completed)
	assert.Equal(t, float64(0), analytics.SuccessRate)
}

func TestService_AnalyticsUnknownWorkflow(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Analytics(t.Context(), "wf-ghost", nil, nil)
	assert.True(t, workflow.IsNotFoundError(err), "expected not found, got %v", err)
}
