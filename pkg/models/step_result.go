package models

import "time"

// StepResultKind discriminates what a step executor asked the engine to do.
type StepResultKind string

const (
	StepResultAdvance StepResultKind = "advance" // Synchronous completion, run next step now
	StepResultDefer   StepResultKind = "defer"   // Suspend until DueAt, then run next step
	StepResultBranch  StepResultKind = "branch"  // Condition picked NextStepID
	StepResultFail    StepResultKind = "fail"    // Step failed; Retryable decides retry vs terminal
)

// StepResult is the outcome of a single step execution. NextStepID == ""
// means the step was terminal and the execution completes.
type StepResult struct {
	Kind       StepResultKind `json:"kind"`
	NextStepID string         `json:"next_step_id,omitempty"`
	DueAt      time.Time      `json:"due_at,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Retryable  bool           `json:"retryable,omitempty"`
}

// Advance completes the step synchronously; the caller re-enqueues
// immediately.
func Advance(nextStepID string) StepResult {
	return StepResult{Kind: StepResultAdvance, NextStepID: nextStepID}
}

// Defer schedules the next step at a future time; used by Delay steps.
func Defer(nextStepID string, dueAt time.Time) StepResult {
	return StepResult{Kind: StepResultDefer, NextStepID: nextStepID, DueAt: dueAt}
}

// Branch routes to the branch target chosen by a Condition step.
func Branch(nextStepID string) StepResult {
	return StepResult{Kind: StepResultBranch, NextStepID: nextStepID}
}

// Fail reports a step failure. Retryable failures are retried with bounded
// backoff; non-retryable ones fail the execution immediately.
func Fail(reason string, retryable bool) StepResult {
	return StepResult{Kind: StepResultFail, Reason: reason, Retryable: retryable}
}

// Outcome maps the result to the history outcome recorded for the step.
func (r StepResult) Outcome() StepOutcome {
	switch r.Kind {
	case StepResultDefer:
		return StepOutcomeDeferred
	case StepResultBranch:
		return StepOutcomeBranched
	case StepResultFail:
		return StepOutcomeFailed
	default:
		return StepOutcomeCompleted
	}
}
