// Package models defines the core domain models for marketing automation workflows.
package models

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable, edits rejected
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Editable, not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Retired, read-only
)

// Workflow is a trigger plus a graph of steps that subscribers run through.
// Steps form a linear chain via Next references, with optional branching out
// of Condition steps. The first step in Steps is the entry step.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"                validate:"required"`
	Trigger     Trigger        `json:"trigger"`
	Steps       []*Step        `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
}

// Editable reports whether step edits are currently allowed.
// Active workflows are immutable; pause or keep as draft to edit.
func (w *Workflow) Editable() bool {
	return w.Status == WorkflowStatusDraft || w.Status == WorkflowStatusPaused
}

// EntryStep returns the entry step of the graph, or nil for an empty workflow.
func (w *Workflow) EntryStep() *Step {
	if len(w.Steps) == 0 {
		return nil
	}

	return w.Steps[0]
}

// StepByID looks a step up by its id.
func (w *Workflow) StepByID(id string) (*Step, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// ValidateGraph checks the structural invariants of the step graph and
// returns a ValidationError listing every violation, not just the first.
// Structure only: incomplete step configuration is legal in a draft and is
// enforced at activation through UnconfiguredSteps.
func (w *Workflow) ValidateGraph() error {
	var violations []string

	if err := w.Trigger.Validate(); err != nil {
		violations = append(violations, err.Error())
	}

	if len(w.Steps) == 0 {
		violations = append(violations, "workflow must have at least one step")

		return &ValidationError{Violations: violations}
	}

	ids := make(map[string]bool, len(w.Steps))

	for _, step := range w.Steps {
		if step.ID == "" {
			violations = append(violations, "step id must not be empty")

			continue
		}

		if ids[step.ID] {
			violations = append(violations, fmt.Sprintf("duplicate step id %q", step.ID))
		}

		ids[step.ID] = true
	}

	for _, step := range w.Steps {
		for _, target := range step.Targets() {
			if !ids[target] {
				violations = append(violations, fmt.Sprintf("step %q references unknown step %q", step.ID, target))
			}
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	return nil
}

// ReachableSteps returns the set of step ids reachable from the entry step.
func (w *Workflow) ReachableSteps() map[string]bool {
	reachable := make(map[string]bool)

	entry := w.EntryStep()
	if entry == nil {
		return reachable
	}

	stack := []string{entry.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if reachable[id] {
			continue
		}

		reachable[id] = true

		if step, ok := w.StepByID(id); ok {
			stack = append(stack, step.Targets()...)
		}
	}

	return reachable
}

// UnconfiguredSteps returns the ids of reachable steps whose configuration is
// incomplete. A workflow with any unconfigured reachable step cannot be
// activated.
func (w *Workflow) UnconfiguredSteps() []string {
	var unconfigured []string

	reachable := w.ReachableSteps()

	for _, step := range w.Steps {
		if reachable[step.ID] && !step.Configured() {
			unconfigured = append(unconfigured, step.ID)
		}
	}

	return unconfigured
}

// ValidationError reports one or more structural violations in a workflow
// definition. It is surfaced at create/update/activate time and never causes
// a runtime failure.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid workflow: " + strings.Join(e.Violations, "; ")
}
