package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the state of one subscriber's run through a workflow.
type ExecutionStatus string

const (
	ExecutionStatusPending      ExecutionStatus = "pending"       // Runnable, waiting for a worker claim
	ExecutionStatusRunning      ExecutionStatus = "running"       // Claimed, a worker is executing the current step
	ExecutionStatusWaitingDelay ExecutionStatus = "waiting_delay" // Suspended until ScheduledAt
	ExecutionStatusCompleted    ExecutionStatus = "completed"     // Ran off the end of the graph
	ExecutionStatusFailed       ExecutionStatus = "failed"        // A step raised a non-retryable error
	ExecutionStatusCancelled    ExecutionStatus = "cancelled"     // Workflow paused with cancellation
)

// Terminal reports whether no transitions leave the status.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// executionTransitions is the allowed state machine. Any transition not in
// this table is rejected with InvalidTransitionError.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {
		ExecutionStatusRunning,
		ExecutionStatusCancelled,
		ExecutionStatusFailed, // retry budget exhausted while queued
	},
	ExecutionStatusRunning: {
		ExecutionStatusRunning, // re-entry after a worker crash left the status at running
		ExecutionStatusPending, // advance to next step, or retryable failure
		ExecutionStatusWaitingDelay,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
	ExecutionStatusWaitingDelay: {ExecutionStatusRunning, ExecutionStatusPending, ExecutionStatusCancelled},
}

// StepOutcome is the recorded result of one step in an execution's history.
type StepOutcome string

const (
	StepOutcomeCompleted StepOutcome = "completed"
	StepOutcomeDeferred  StepOutcome = "deferred"
	StepOutcomeBranched  StepOutcome = "branched"
	StepOutcomeFailed    StepOutcome = "failed"
)

// StepRecord is one append-only history entry of a completed step attempt.
type StepRecord struct {
	StepID     string      `json:"step_id"`
	Kind       StepKind    `json:"kind"`
	Outcome    StepOutcome `json:"outcome"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Error      string      `json:"error,omitempty"`
}

// Execution is one subscriber's single run through a workflow, created once
// per (workflow, subscriber, trigger event). Workers mutate it only through
// the transition methods below; direct status writes are not allowed.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	SubscriberID   string          `json:"subscriber_id"`
	TriggerEventID string          `json:"trigger_event_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentStepID  string          `json:"current_step_id"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	History        []StepRecord    `json:"history"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// NewExecution creates a pending execution positioned at the entry step.
func NewExecution(id string, workflow *Workflow, subscriberID, triggerEventID string) *Execution {
	exec := &Execution{
		ID:             id,
		WorkflowID:     workflow.ID,
		SubscriberID:   subscriberID,
		TriggerEventID: triggerEventID,
		Status:         ExecutionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	if entry := workflow.EntryStep(); entry != nil {
		exec.CurrentStepID = entry.ID
	}

	return exec
}

// InvalidTransitionError reports a state transition outside the machine.
type InvalidTransitionError struct {
	ExecutionID string
	From        ExecutionStatus
	To          ExecutionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("execution %s: invalid transition %s -> %s", e.ExecutionID, e.From, e.To)
}

func (e *Execution) transition(to ExecutionStatus) error {
	for _, allowed := range executionTransitions[e.Status] {
		if allowed == to {
			e.Status = to

			return nil
		}
	}

	return &InvalidTransitionError{ExecutionID: e.ID, From: e.Status, To: to}
}

// Start marks the execution claimed by a worker. Starting an already running
// execution is legal: a worker that dies mid-step leaves the stored status at
// running, and the queue lease guarantees no live worker still holds it, so
// the reclaiming worker re-enters the step.
func (e *Execution) Start(now time.Time) error {
	if err := e.transition(ExecutionStatusRunning); err != nil {
		return err
	}

	if e.StartedAt == nil {
		startedAt := now
		e.StartedAt = &startedAt
	}

	e.ScheduledAt = nil

	return nil
}

// AdvanceTo moves the execution to the next step, immediately runnable.
func (e *Execution) AdvanceTo(stepID string) error {
	if err := e.transition(ExecutionStatusPending); err != nil {
		return err
	}

	e.CurrentStepID = stepID
	e.ScheduledAt = nil

	return nil
}

// Defer suspends the execution until dueAt, positioned at stepID.
func (e *Execution) Defer(stepID string, dueAt time.Time) error {
	if err := e.transition(ExecutionStatusWaitingDelay); err != nil {
		return err
	}

	e.CurrentStepID = stepID
	e.ScheduledAt = &dueAt

	return nil
}

// Retry returns the execution to the queue after a retryable step failure,
// keeping the current step.
func (e *Execution) Retry(retryAt time.Time) error {
	if err := e.transition(ExecutionStatusPending); err != nil {
		return err
	}

	e.ScheduledAt = &retryAt

	return nil
}

// Complete marks the execution finished: it ran off the end of the graph.
func (e *Execution) Complete(now time.Time) error {
	if err := e.transition(ExecutionStatusCompleted); err != nil {
		return err
	}

	e.ScheduledAt = nil
	finishedAt := now
	e.FinishedAt = &finishedAt

	return nil
}

// Fail marks the execution terminally failed with the given reason.
func (e *Execution) Fail(reason string, now time.Time) error {
	if err := e.transition(ExecutionStatusFailed); err != nil {
		return err
	}

	e.Error = reason
	e.ScheduledAt = nil
	finishedAt := now
	e.FinishedAt = &finishedAt

	return nil
}

// Cancel stops the execution. Only valid from non-terminal states.
func (e *Execution) Cancel(now time.Time) error {
	if err := e.transition(ExecutionStatusCancelled); err != nil {
		return err
	}

	e.ScheduledAt = nil
	finishedAt := now
	e.FinishedAt = &finishedAt

	return nil
}

// RecordStep appends a history entry. History is append-only and ordered.
func (e *Execution) RecordStep(record StepRecord) {
	e.History = append(e.History, record)
}

// Visited reports whether the execution's history contains the step id.
func (e *Execution) Visited(stepID string) bool {
	for _, record := range e.History {
		if record.StepID == stepID {
			return true
		}
	}

	return false
}

// Duration returns the wall time between start and finish, zero while the
// execution is still in flight.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}

	return e.FinishedAt.Sub(*e.StartedAt)
}
