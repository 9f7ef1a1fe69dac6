package models

import (
	"fmt"
	"time"
)

// StepKind discriminates the closed set of step variants.
type StepKind string

const (
	StepKindDelay     StepKind = "delay"
	StepKindSendEmail StepKind = "send_email"
	StepKindCondition StepKind = "condition"
)

// DelayUnit is the time unit of a Delay step.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// maxDelayPerUnit bounds the duration value accepted per unit.
var maxDelayPerUnit = map[DelayUnit]int{
	DelayUnitMinutes: 1440,
	DelayUnitHours:   720,
	DelayUnitDays:    365,
}

// DelayConfig suspends an execution for a fixed duration. The suspension is
// pure data: the worker records a future due time and releases all resources.
type DelayConfig struct {
	Duration int       `json:"duration"`
	Unit     DelayUnit `json:"unit"`
}

// Interval converts the configured duration to a time.Duration.
func (c DelayConfig) Interval() time.Duration {
	switch c.Unit {
	case DelayUnitMinutes:
		return time.Duration(c.Duration) * time.Minute
	case DelayUnitHours:
		return time.Duration(c.Duration) * time.Hour
	case DelayUnitDays:
		return time.Duration(c.Duration) * 24 * time.Hour
	default:
		return 0
	}
}

// Validate checks the duration against the per-unit bounds.
func (c DelayConfig) Validate() error {
	limit, ok := maxDelayPerUnit[c.Unit]
	if !ok {
		return fmt.Errorf("unknown delay unit %q", c.Unit)
	}

	if c.Duration < 1 || c.Duration > limit {
		return fmt.Errorf("delay duration must be between 1 and %d %s, got %d", limit, c.Unit, c.Duration)
	}

	return nil
}

// SendEmailConfig renders a template and sends it to the subscriber.
type SendEmailConfig struct {
	TemplateID      string `json:"template_id"`
	SubjectTemplate string `json:"subject_template"`
	FromOverride    string `json:"from_override,omitempty"`
}

// Validate checks required fields.
func (c SendEmailConfig) Validate() error {
	if c.TemplateID == "" {
		return fmt.Errorf("send_email step requires template_id")
	}

	if c.SubjectTemplate == "" {
		return fmt.Errorf("send_email step requires subject_template")
	}

	return nil
}

// ConditionConfig branches the execution on a subscriber predicate.
// Both branch targets must resolve within the workflow.
type ConditionConfig struct {
	Predicate Predicate `json:"predicate"`
	TrueNext  string    `json:"true_next"`
	FalseNext string    `json:"false_next"`
}

// Validate checks the predicate and branch targets.
func (c ConditionConfig) Validate() error {
	if err := c.Predicate.Validate(); err != nil {
		return err
	}

	if c.TrueNext == "" || c.FalseNext == "" {
		return fmt.Errorf("condition step requires both true_next and false_next")
	}

	return nil
}

// Step is one node of a workflow graph: a closed tagged variant with exactly
// one payload populated according to Kind. Next is the follow-up step for
// delay and send_email steps; nil marks a terminal step. Condition steps
// route through their branch targets instead.
type Step struct {
	ID        string           `json:"id"`
	Name      string           `json:"name,omitempty"`
	Kind      StepKind         `json:"kind"`
	Delay     *DelayConfig     `json:"delay,omitempty"`
	SendEmail *SendEmailConfig `json:"send_email,omitempty"`
	Condition *ConditionConfig `json:"condition,omitempty"`
	Next      *string          `json:"next,omitempty"`
}

// Configured reports whether the step's required fields are present and
// valid. Unconfigured steps block workflow activation.
func (s *Step) Configured() bool {
	return len(s.configViolations()) == 0
}

// Targets returns every outgoing step reference.
func (s *Step) Targets() []string {
	if s.Kind == StepKindCondition {
		if s.Condition == nil {
			return nil
		}

		return []string{s.Condition.TrueNext, s.Condition.FalseNext}
	}

	if s.Next != nil && *s.Next != "" {
		return []string{*s.Next}
	}

	return nil
}

// NextStepID returns the linear follow-up step id, or "" for terminal steps.
func (s *Step) NextStepID() string {
	if s.Next == nil {
		return ""
	}

	return *s.Next
}

func (s *Step) configViolations() []string {
	var violations []string

	badVariant := func(payload string) string {
		return fmt.Sprintf("step %q: kind %s requires a %s payload", s.ID, s.Kind, payload)
	}

	switch s.Kind {
	case StepKindDelay:
		if s.Delay == nil {
			violations = append(violations, badVariant("delay"))
		} else if err := s.Delay.Validate(); err != nil {
			violations = append(violations, fmt.Sprintf("step %q: %v", s.ID, err))
		}
	case StepKindSendEmail:
		if s.SendEmail == nil {
			violations = append(violations, badVariant("send_email"))
		} else if err := s.SendEmail.Validate(); err != nil {
			violations = append(violations, fmt.Sprintf("step %q: %v", s.ID, err))
		}
	case StepKindCondition:
		if s.Condition == nil {
			violations = append(violations, badVariant("condition"))
		} else if err := s.Condition.Validate(); err != nil {
			violations = append(violations, fmt.Sprintf("step %q: %v", s.ID, err))
		}
	default:
		violations = append(violations, fmt.Sprintf("step %q: unknown kind %q", s.ID, s.Kind))
	}

	return violations
}
