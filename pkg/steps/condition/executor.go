// Package condition implements the Condition step executor.
package condition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

// Executor evaluates a subscriber predicate and picks the matching branch.
// Evaluation is a pure function of subscriber state, so re-running after a
// crash or lease expiry is safe.
type Executor struct {
	subscribers protocol.SubscriberDirectory
}

// NewExecutor creates the Condition executor.
func NewExecutor(subscribers protocol.SubscriberDirectory) *Executor {
	return &Executor{subscribers: subscribers}
}

func (*Executor) Kind() models.StepKind {
	return models.StepKindCondition
}

func (e *Executor) Execute(ctx context.Context, step *models.Step, scope protocol.StepScope, logger *slog.Logger) (models.StepResult, error) {
	if step.Condition == nil {
		return models.Fail("condition step has no configuration", false), nil
	}

	attributes, err := e.subscribers.Attributes(ctx, scope.Execution.SubscriberID)
	if err != nil {
		return models.StepResult{}, fmt.Errorf("failed to load subscriber %s: %w", scope.Execution.SubscriberID, err)
	}

	matched, err := step.Condition.Predicate.Evaluate(attributes)
	if err != nil {
		return models.Fail(fmt.Sprintf("predicate evaluation failed: %v", err), false), nil
	}

	target := step.Condition.FalseNext
	if matched {
		target = step.Condition.TrueNext
	}

	logger.Debug("Condition step evaluated",
		"field", step.Condition.Predicate.Field,
		"operator", step.Condition.Predicate.Operator,
		"matched", matched,
		"next_step_id", target)

	return models.Branch(target), nil
}

// Schema describes the condition payload shape. Empty fields are accepted in
// drafts; completeness is checked at activation.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"predicate": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field": map[string]any{"type": "string"},
					"operator": map[string]any{
						"type": "string",
						"enum": []string{"", "equals", "not_equals", "contains", "greater_than", "less_than"},
					},
					"value": map[string]any{"type": "string"},
				},
			},
			"true_next":  map[string]any{"type": "string"},
			"false_next": map[string]any{"type": "string"},
		},
	}
}
