// Package delay implements the Delay step executor.
package delay

import (
	"context"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

// Executor computes the future due time for a Delay step. It is purely
// deterministic, has no side effects, and never fails except on malformed
// configuration, which activation validation prevents from reaching runtime.
type Executor struct{}

// NewExecutor creates the Delay executor.
func NewExecutor() *Executor {
	return &Executor{}
}

func (*Executor) Kind() models.StepKind {
	return models.StepKindDelay
}

func (*Executor) Execute(_ context.Context, step *models.Step, scope protocol.StepScope, logger *slog.Logger) (models.StepResult, error) {
	if step.Delay == nil {
		return models.Fail("delay step has no configuration", false), nil
	}

	if err := step.Delay.Validate(); err != nil {
		return models.Fail(err.Error(), false), nil
	}

	dueAt := scope.Now.Add(step.Delay.Interval())

	logger.Debug("Delay step scheduling resumption",
		"duration", step.Delay.Duration,
		"unit", step.Delay.Unit,
		"due_at", dueAt)

	return models.Defer(step.NextStepID(), dueAt), nil
}

// Schema describes the delay payload shape. Zero values are accepted so a
// draft can hold a half-configured step; completeness is checked at
// activation.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{"type": "integer", "minimum": 0},
			"unit":     map[string]any{"type": "string", "enum": []string{"", "minutes", "hours", "days"}},
		},
	}
}
