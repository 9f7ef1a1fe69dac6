// Package escalation implements priority-ordered escalation rules for
// support tickets. It is a smaller sibling of the workflow engine: rules
// play the role of steps, with matching conditions instead of a graph and a
// per-ticket application cap instead of a scheduling queue.
package escalation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// Application records one rule firing against a ticket.
type Application struct {
	RuleID    string    `json:"rule_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// Ticket is the slice of support ticket state the escalation engine reads
// and mutates. Ticket CRUD lives outside the engine.
type Ticket struct {
	ID             string        `json:"id"`
	Priority       string        `json:"priority"`
	Status         TicketStatus  `json:"status"`
	AssignedTo     string        `json:"assigned_to,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastResponseAt *time.Time    `json:"last_response_at,omitempty"`
	Applications   []Application `json:"applications"`
}

// Applied counts how often the rule already fired against this ticket.
func (t *Ticket) Applied(ruleID string) int {
	count := 0

	for _, application := range t.Applications {
		if application.RuleID == ruleID {
			count++
		}
	}

	return count
}

// Conditions gate a rule. Zero-valued fields do not constrain.
type Conditions struct {
	// Priority matches the ticket's current priority exactly.
	Priority string `json:"priority,omitempty"`
	// OpenFor requires the ticket to have been open at least this long.
	OpenFor time.Duration `json:"open_for,omitempty"`
	// NoResponseFor requires the last agent response (or ticket creation,
	// if none) to be at least this old.
	NoResponseFor time.Duration `json:"no_response_for,omitempty"`
}

// Actions describe what an escalation does. Zero-valued fields do nothing.
type Actions struct {
	AssignTo    string   `json:"assign_to,omitempty"`
	SetPriority string   `json:"set_priority,omitempty"`
	Notify      []string `json:"notify,omitempty"`
}

// Rule is one escalation rule. Priority orders evaluation, lowest first.
// MaxApplications caps how often the rule may fire per ticket over the
// ticket's lifetime; zero means once.
type Rule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	Enabled         bool       `json:"enabled"`
	Conditions      Conditions `json:"conditions"`
	Actions         Actions    `json:"actions"`
	MaxApplications int        `json:"max_applications"`
}

func (r *Rule) maxApplications() int {
	if r.MaxApplications <= 0 {
		return 1
	}

	return r.MaxApplications
}

// Matches reports whether the rule's conditions hold for the ticket at now.
func (r *Rule) Matches(ticket *Ticket, now time.Time) bool {
	if ticket.Status == TicketStatusResolved || ticket.Status == TicketStatusClosed {
		return false
	}

	if r.Conditions.Priority != "" && ticket.Priority != r.Conditions.Priority {
		return false
	}

	if r.Conditions.OpenFor > 0 && now.Sub(ticket.CreatedAt) < r.Conditions.OpenFor {
		return false
	}

	if r.Conditions.NoResponseFor > 0 {
		since := ticket.CreatedAt
		if ticket.LastResponseAt != nil {
			since = *ticket.LastResponseAt
		}

		if now.Sub(since) < r.Conditions.NoResponseFor {
			return false
		}
	}

	return true
}

// Notifier receives escalation notifications. Delivery is external.
type Notifier interface {
	NotifyEscalation(ctx context.Context, ticket *Ticket, rule *Rule, recipients []string) error
}

// Engine evaluates rules against tickets.
type Engine struct {
	rules     []*Rule
	notifier  Notifier
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewEngine creates an engine over a fixed rule set.
func NewEngine(rules []*Rule, notifier Notifier, publisher eventbus.EventPublisher, logger *slog.Logger) *Engine {
	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Engine{
		rules:     sorted,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.With("module", "escalation"),
	}
}

// Evaluate applies every matching rule to the ticket in priority order,
// mutating it in place, and returns the rules that fired. A rule whose
// lifetime application cap is reached is skipped. Rules see the effects of
// earlier rules in the same pass: a rule that raises the priority can make a
// later rule match.
func (e *Engine) Evaluate(ctx context.Context, ticket *Ticket, now time.Time) ([]*Rule, error) {
	var fired []*Rule

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		if ticket.Applied(rule.ID) >= rule.maxApplications() {
			continue
		}

		if !rule.Matches(ticket, now) {
			continue
		}

		if err := e.apply(ctx, ticket, rule, now); err != nil {
			return fired, err
		}

		fired = append(fired, rule)
	}

	return fired, nil
}

func (e *Engine) apply(ctx context.Context, ticket *Ticket, rule *Rule, now time.Time) error {
	if rule.Actions.AssignTo != "" {
		ticket.AssignedTo = rule.Actions.AssignTo
	}

	if rule.Actions.SetPriority != "" {
		ticket.Priority = rule.Actions.SetPriority
	}

	ticket.Applications = append(ticket.Applications, Application{RuleID: rule.ID, AppliedAt: now})

	if len(rule.Actions.Notify) > 0 && e.notifier != nil {
		if err := e.notifier.NotifyEscalation(ctx, ticket, rule, rule.Actions.Notify); err != nil {
			return err
		}
	}

	e.publishEscalated(ctx, ticket, rule, now)

	e.logger.InfoContext(ctx, "Escalation rule applied",
		"ticket_id", ticket.ID,
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"priority", ticket.Priority)

	return nil
}

func (e *Engine) publishEscalated(ctx context.Context, ticket *Ticket, rule *Rule, now time.Time) {
	if e.publisher == nil {
		return
	}

	event := events.TicketEscalated{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.TicketEscalatedEvent,
			Timestamp: now,
		},
		TicketID: ticket.ID,
		RuleID:   rule.ID,
		Priority: ticket.Priority,
	}

	if err := e.publisher.Publish(ctx, ticket.ID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish escalation event", "error", err)
	}
}
