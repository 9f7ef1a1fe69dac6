package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

func execution(id, workflowID, subscriberID, triggerEventID string) *models.Execution {
	return &models.Execution{
		ID:             id,
		WorkflowID:     workflowID,
		SubscriberID:   subscriberID,
		TriggerEventID: triggerEventID,
		Status:         models.ExecutionStatusPending,
		CurrentStepID:  "step-1",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestExecutionRepository_CreateRejectsDuplicateTriple(t *testing.T) {
	repo := NewExecutionRepository()

	require.NoError(t, repo.Create(t.Context(), execution("e1", "wf-1", "sub-1", "evt-1")))

	err := repo.Create(t.Context(), execution("e2", "wf-1", "sub-1", "evt-1"))
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionExists(err))

	// Different trigger event admits the same subscriber again.
	require.NoError(t, repo.Create(t.Context(), execution("e3", "wf-1", "sub-1", "evt-2")))
}

func TestExecutionRepository_GetByTriggerEvent(t *testing.T) {
	repo := NewExecutionRepository()

	require.NoError(t, repo.Create(t.Context(), execution("e1", "wf-1", "sub-1", "evt-1")))

	found, err := repo.GetByTriggerEvent(t.Context(), "wf-1", "sub-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "e1", found.ID)

	_, err = repo.GetByTriggerEvent(t.Context(), "wf-1", "sub-1", "evt-9")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_UpdateIsolation(t *testing.T) {
	repo := NewExecutionRepository()

	original := execution("e1", "wf-1", "sub-1", "evt-1")
	require.NoError(t, repo.Create(t.Context(), original))

	// Mutating the caller's copy must not leak into the store.
	original.Status = models.ExecutionStatusFailed

	stored, err := repo.GetByID(t.Context(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)

	stored.Status = models.ExecutionStatusRunning
	require.NoError(t, repo.Update(t.Context(), stored))

	fresh, err := repo.GetByID(t.Context(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, fresh.Status)
}

func TestExecutionRepository_ListFiltersAndPaginates(t *testing.T) {
	repo := NewExecutionRepository()

	for i, spec := range []struct {
		id, workflow, subscriber string
		status                   models.ExecutionStatus
	}{
		{"e1", "wf-1", "sub-1", models.ExecutionStatusCompleted},
		{"e2", "wf-1", "sub-2", models.ExecutionStatusPending},
		{"e3", "wf-1", "sub-1", models.ExecutionStatusFailed},
		{"e4", "wf-2", "sub-1", models.ExecutionStatusCompleted},
	} {
		exec := execution(spec.id, spec.workflow, spec.subscriber, "evt-"+spec.id)
		exec.Status = spec.status
		exec.CreatedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(t.Context(), exec))
	}

	byWorkflow, err := repo.List(t.Context(), persistence.ListExecutionsOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), byWorkflow.TotalCount)

	completed := models.ExecutionStatusCompleted
	bySubscriberAndStatus, err := repo.List(t.Context(), persistence.ListExecutionsOptions{
		SubscriberID: "sub-1",
		Status:       &completed,
	})
	require.NoError(t, err)
	require.Len(t, bySubscriberAndStatus.Executions, 2)

	page, err := repo.List(t.Context(), persistence.ListExecutionsOptions{WorkflowID: "wf-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Len(t, page.Executions, 1)

	from := time.Date(2026, 8, 1, 1, 30, 0, 0, time.UTC)
	recent, err := repo.List(t.Context(), persistence.ListExecutionsOptions{WorkflowID: "wf-1", From: &from})
	require.NoError(t, err)
	require.Len(t, recent.Executions, 1)
	assert.Equal(t, "e3", recent.Executions[0].ID)
}

func TestExecutionRepository_ListByWorkflowAndStatus(t *testing.T) {
	repo := NewExecutionRepository()

	pending := execution("e1", "wf-1", "sub-1", "evt-1")
	waiting := execution("e2", "wf-1", "sub-2", "evt-2")
	waiting.Status = models.ExecutionStatusWaitingDelay
	done := execution("e3", "wf-1", "sub-3", "evt-3")
	done.Status = models.ExecutionStatusCompleted

	require.NoError(t, repo.Create(t.Context(), pending))
	require.NoError(t, repo.Create(t.Context(), waiting))
	require.NoError(t, repo.Create(t.Context(), done))

	suspended, err := repo.ListByWorkflowAndStatus(t.Context(), "wf-1",
		models.ExecutionStatusPending, models.ExecutionStatusWaitingDelay)
	require.NoError(t, err)
	assert.Len(t, suspended, 2)
}

func TestDeliveryRepository_MarkAndClear(t *testing.T) {
	repo := NewDeliveryRepository()

	claimed, err := repo.MarkSent(t.Context(), "e1", "s1")
	require.NoError(t, err)
	assert.True(t, claimed)

	duplicate, err := repo.MarkSent(t.Context(), "e1", "s1")
	require.NoError(t, err)
	assert.False(t, duplicate)

	other, err := repo.MarkSent(t.Context(), "e1", "s2")
	require.NoError(t, err)
	assert.True(t, other)

	require.NoError(t, repo.ClearSent(t.Context(), "e1", "s1"))

	reclaimed, err := repo.MarkSent(t.Context(), "e1", "s1")
	require.NoError(t, err)
	assert.True(t, reclaimed)
}
