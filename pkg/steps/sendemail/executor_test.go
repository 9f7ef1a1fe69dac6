package sendemail_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/directory"
	"github.com/dripline/dripline/pkg/mail"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/steps/sendemail"
)

type fixture struct {
	executor   *sendemail.Executor
	sender     *mail.CaptureSender
	deliveries *memory.DeliveryRepository
	scope      protocol.StepScope
	step       *models.Step
}

func setup(t *testing.T) *fixture {
	t.Helper()

	subscribers := directory.NewStatic()
	subscribers.PutSubscriber("sub-1", map[string]any{
		"email":      "ana@example.com",
		"first_name": "Ana",
	})

	renderer := mail.NewTemplateRenderer(map[string]string{
		"tpl-welcome": "Hello {{.first_name}}, welcome aboard!",
	})

	sender := mail.NewCaptureSender()
	deliveries := memory.NewDeliveryRepository()

	workflow := &models.Workflow{ID: "wf-1", Name: "Welcome"}
	execution := models.NewExecution("exec-1", workflow, "sub-1", "evt-1")

	return &fixture{
		executor:   sendemail.NewExecutor(renderer, sender, subscribers, deliveries),
		sender:     sender,
		deliveries: deliveries,
		scope: protocol.StepScope{
			Execution: execution,
			Workflow:  workflow,
			Now:       time.Now().UTC(),
		},
		step: &models.Step{
			ID:   "welcome",
			Kind: models.StepKindSendEmail,
			SendEmail: &models.SendEmailConfig{
				TemplateID:      "tpl-welcome",
				SubjectTemplate: "Welcome, {{.first_name}}!",
			},
		},
	}
}

func TestExecutor_SendsRenderedEmail(t *testing.T) {
	f := setup(t)

	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultAdvance, result.Kind)

	messages := f.sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ana@example.com", messages[0].To)
	assert.Equal(t, "Welcome, Ana!", messages[0].Subject)
	assert.Equal(t, "Hello Ana, welcome aboard!", messages[0].Body)
}

func TestExecutor_DuplicateClaimSuppressesSecondSend(t *testing.T) {
	f := setup(t)

	_, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)

	// A reclaimed queue item re-runs the step; the marker suppresses it.
	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultAdvance, result.Kind)

	assert.Len(t, f.sender.Messages(), 1)
}

func TestExecutor_TransientFailureReleasesMarker(t *testing.T) {
	f := setup(t)
	f.sender.Fail = errors.New("smtp timeout")

	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultFail, result.Kind)
	assert.True(t, result.Retryable)

	// The retry must be allowed to send.
	f.sender.Fail = nil

	retried, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultAdvance, retried.Kind)
	assert.Len(t, f.sender.Messages(), 1)
}

func TestExecutor_PermanentRejectionFailsTerminally(t *testing.T) {
	f := setup(t)
	f.sender.Fail = &protocol.SendError{Permanent: true, Err: errors.New("recipient suppressed")}

	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultFail, result.Kind)
	assert.False(t, result.Retryable)
}

func TestExecutor_MissingTemplateFailsTerminally(t *testing.T) {
	f := setup(t)
	f.step.SendEmail.TemplateID = "tpl-ghost"

	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultFail, result.Kind)
	assert.False(t, result.Retryable)
	assert.Empty(t, f.sender.Messages())
}

func TestExecutor_MissingSubscriberIsInfraError(t *testing.T) {
	f := setup(t)
	f.scope.Execution.SubscriberID = "sub-ghost"

	_, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.Error(t, err)
}

func TestExecutor_DryRunSendsNothing(t *testing.T) {
	f := setup(t)
	f.scope.DryRun = true

	result, err := f.executor.Execute(t.Context(), f.step, f.scope, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, models.StepResultAdvance, result.Kind)
	assert.Empty(t, f.sender.Messages())

	// No marker claimed either: a later real run must still send.
	claimed, err := f.deliveries.MarkSent(t.Context(), "exec-1", "welcome")
	require.NoError(t, err)
	assert.True(t, claimed)
}
