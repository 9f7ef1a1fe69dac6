// Package sendemail implements the SendEmail step executor.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
)

// Executor renders a template and hands it to the external send capability.
// The queue delivers work at least once, so the executor claims a
// per-(execution, step) send marker before sending: a reclaimed queue item
// finds the marker and skips the duplicate send.
type Executor struct {
	renderer    protocol.Renderer
	sender      protocol.Sender
	subscribers protocol.SubscriberDirectory
	deliveries  persistence.DeliveryRepository
}

// NewExecutor creates the SendEmail executor.
func NewExecutor(
	renderer protocol.Renderer,
	sender protocol.Sender,
	subscribers protocol.SubscriberDirectory,
	deliveries persistence.DeliveryRepository,
) *Executor {
	return &Executor{
		renderer:    renderer,
		sender:      sender,
		subscribers: subscribers,
		deliveries:  deliveries,
	}
}

func (*Executor) Kind() models.StepKind {
	return models.StepKindSendEmail
}

func (e *Executor) Execute(ctx context.Context, step *models.Step, scope protocol.StepScope, logger *slog.Logger) (models.StepResult, error) {
	if step.SendEmail == nil {
		return models.Fail("send_email step has no configuration", false), nil
	}

	execution := scope.Execution

	attributes, err := e.subscribers.Attributes(ctx, execution.SubscriberID)
	if err != nil {
		// Subscriber store unavailable is an infrastructure failure; the
		// worker's outer loop retries the whole item.
		return models.StepResult{}, fmt.Errorf("failed to load subscriber %s: %w", execution.SubscriberID, err)
	}

	email, _ := attributes["email"].(string)
	if email == "" {
		return models.Fail("subscriber has no email address", false), nil
	}

	rendered, err := e.renderer.Render(ctx, step.SendEmail.TemplateID, step.SendEmail.SubjectTemplate, attributes)
	if err != nil {
		return models.Fail(fmt.Sprintf("failed to render template %s: %v", step.SendEmail.TemplateID, err), false), nil
	}

	if scope.DryRun {
		logger.Info("Dry run: would send email",
			"template_id", step.SendEmail.TemplateID,
			"to", email,
			"subject", rendered.Subject)

		return models.Advance(step.NextStepID()), nil
	}

	claimed, err := e.deliveries.MarkSent(ctx, execution.ID, step.ID)
	if err != nil {
		return models.StepResult{}, fmt.Errorf("failed to claim send marker: %w", err)
	}

	if !claimed {
		logger.Warn("Duplicate send suppressed",
			"execution_id", execution.ID,
			"step_id", step.ID)

		return models.Advance(step.NextStepID()), nil
	}

	if err := e.sender.Send(ctx, email, rendered.Subject, rendered.Body, step.SendEmail.FromOverride); err != nil {
		if protocol.IsPermanentSendError(err) {
			return models.Fail(fmt.Sprintf("recipient rejected: %v", err), false), nil
		}

		// Release the marker so the retry is allowed to send.
		if clearErr := e.deliveries.ClearSent(ctx, execution.ID, step.ID); clearErr != nil {
			return models.StepResult{}, fmt.Errorf("failed to release send marker after transient failure: %w", clearErr)
		}

		return models.Fail(fmt.Sprintf("transient send failure: %v", err), true), nil
	}

	logger.Info("Email sent",
		"template_id", step.SendEmail.TemplateID,
		"to", email,
		"subject", rendered.Subject)

	return models.Advance(step.NextStepID()), nil
}

// Schema describes the send_email payload shape. Empty fields are accepted
// in drafts; completeness is checked at activation.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template_id":      map[string]any{"type": "string"},
			"subject_template": map[string]any{"type": "string"},
			"from_override":    map[string]any{"type": "string"},
		},
	}
}
