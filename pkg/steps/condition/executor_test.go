package condition_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/directory"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/steps/condition"
)

func conditionStep(predicate models.Predicate) *models.Step {
	return &models.Step{
		ID:   "check",
		Kind: models.StepKindCondition,
		Condition: &models.ConditionConfig{
			Predicate: predicate,
			TrueNext:  "pro-mail",
			FalseNext: "free-mail",
		},
	}
}

func scopeFor(subscriberID string) protocol.StepScope {
	workflow := &models.Workflow{ID: "wf-1", Name: "Branches"}

	return protocol.StepScope{
		Execution: models.NewExecution("exec-1", workflow, subscriberID, "evt-1"),
		Workflow:  workflow,
		Now:       time.Now().UTC(),
	}
}

func TestExecutor_BranchesOnPredicate(t *testing.T) {
	subscribers := directory.NewStatic()
	subscribers.PutSubscriber("sub-pro", map[string]any{"plan": "pro"})
	subscribers.PutSubscriber("sub-free", map[string]any{"plan": "free"})

	executor := condition.NewExecutor(subscribers)
	step := conditionStep(models.Predicate{Field: "plan", Operator: models.OperatorEquals, Value: "pro"})

	result, err := executor.Execute(t.Context(), step, scopeFor("sub-pro"), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultBranch, result.Kind)
	assert.Equal(t, "pro-mail", result.NextStepID)

	result, err = executor.Execute(t.Context(), step, scopeFor("sub-free"), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "free-mail", result.NextStepID)
}

func TestExecutor_BadPredicateFailsTerminally(t *testing.T) {
	subscribers := directory.NewStatic()
	subscribers.PutSubscriber("sub-1", map[string]any{"plan": "pro"})

	executor := condition.NewExecutor(subscribers)
	step := conditionStep(models.Predicate{Field: "plan", Operator: models.OperatorGreaterThan, Value: "10"})

	result, err := executor.Execute(t.Context(), step, scopeFor("sub-1"), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultFail, result.Kind)
	assert.False(t, result.Retryable)
}

func TestExecutor_MissingSubscriberIsInfraError(t *testing.T) {
	executor := condition.NewExecutor(directory.NewStatic())
	step := conditionStep(models.Predicate{Field: "plan", Operator: models.OperatorEquals, Value: "pro"})

	_, err := executor.Execute(t.Context(), step, scopeFor("sub-ghost"), slog.Default())
	require.Error(t, err)
}
