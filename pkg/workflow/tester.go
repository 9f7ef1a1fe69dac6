package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

// TestStepReport is one step of a dry run.
type TestStepReport struct {
	StepID  string             `json:"step_id"`
	Kind    models.StepKind    `json:"kind"`
	Outcome models.StepOutcome `json:"outcome"`
	// Detail describes what the step would do: the branch taken, the wake
	// time of a delay, the failure reason.
	Detail string `json:"detail,omitempty"`
}

// TestReport is the result of walking a workflow for one subscriber without
// side effects.
type TestReport struct {
	WorkflowID   string           `json:"workflow_id"`
	SubscriberID string           `json:"subscriber_id"`
	Steps        []TestStepReport `json:"steps"`
	Completed    bool             `json:"completed"`
	Error        string           `json:"error,omitempty"`
}

// TestLive admits the subscriber into the workflow for real: a normal
// execution is created and queued, side effects included. The workflow must
// be active.
func (s *Service) TestLive(ctx context.Context, id, subscriberID string) (*models.Execution, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, &ServiceError{Op: "TestLive", Err: ErrNotActive}
	}

	execution, _, err := s.tracker.StartExecution(ctx, workflow, subscriberID, "test-"+uuid.New().String())
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// Test dry-runs the workflow for a subscriber: every step executes with side
// effects suppressed, delays resolve instantly, and the walked path is
// reported. The workflow does not need to be active.
func (s *Service) Test(ctx context.Context, id, subscriberID string) (*TestReport, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := workflow.ValidateGraph(); err != nil {
		return nil, err
	}

	report := &TestReport{WorkflowID: workflow.ID, SubscriberID: subscriberID}

	entry := workflow.EntryStep()
	if entry == nil {
		report.Completed = true

		return report, nil
	}

	// A throwaway execution gives executors the scope they expect; nothing
	// here is persisted.
	execution := models.NewExecution(uuid.New().String(), workflow, subscriberID, "dry-run")
	now := time.Now().UTC()

	logger := s.logger.With("workflow_id", workflow.ID, "subscriber_id", subscriberID, "dry_run", true)

	currentStepID := entry.ID

	for steps := 0; currentStepID != ""; steps++ {
		if steps >= maxStepsPerExecution {
			report.Error = fmt.Sprintf("dry run exceeded %d steps", maxStepsPerExecution)

			return report, nil
		}

		step, ok := workflow.StepByID(currentStepID)
		if !ok {
			report.Error = fmt.Sprintf("step %q not found", currentStepID)

			return report, nil
		}

		executor, err := s.registry.ExecutorFor(step.Kind)
		if err != nil {
			report.Error = err.Error()

			return report, nil
		}

		scope := protocol.StepScope{Execution: execution, Workflow: workflow, Now: now, DryRun: true}

		result, err := executor.Execute(ctx, step, scope, logger.With("step_id", step.ID))
		if err != nil {
			return nil, fmt.Errorf("dry run of step %s failed: %w", step.ID, err)
		}

		entry := TestStepReport{StepID: step.ID, Kind: step.Kind, Outcome: result.Outcome()}

		switch result.Kind {
		case models.StepResultDefer:
			entry.Detail = fmt.Sprintf("would wake at %s", result.DueAt.Format(time.RFC3339))
			// Delays resolve instantly in a dry run.
			now = result.DueAt
		case models.StepResultBranch:
			entry.Detail = fmt.Sprintf("branched to %q", result.NextStepID)
		case models.StepResultFail:
			entry.Detail = result.Reason
		}

		report.Steps = append(report.Steps, entry)

		if result.Kind == models.StepResultFail {
			report.Error = result.Reason

			return report, nil
		}

		execution.CurrentStepID = result.NextStepID
		currentStepID = result.NextStepID
	}

	report.Completed = true

	return report, nil
}
