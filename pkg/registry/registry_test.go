package registry_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/steps/delay"
	"github.com/dripline/dripline/pkg/steps/sendemail"
)

func newRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterExecutor(delay.NewExecutor(), delay.Schema())

	return reg
}

func TestRegistry_ExecutorFor(t *testing.T) {
	reg := newRegistry()

	executor, err := reg.ExecutorFor(models.StepKindDelay)
	require.NoError(t, err)
	assert.Equal(t, models.StepKindDelay, executor.Kind())

	_, err = reg.ExecutorFor(models.StepKindSendEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_ValidateStep(t *testing.T) {
	reg := newRegistry()

	valid := &models.Step{
		ID:    "wait",
		Kind:  models.StepKindDelay,
		Delay: &models.DelayConfig{Duration: 2, Unit: models.DelayUnitDays},
	}
	require.NoError(t, reg.ValidateStep(valid))

	// A draft step without its payload is accepted.
	unconfigured := &models.Step{ID: "wait", Kind: models.StepKindDelay}
	require.NoError(t, reg.ValidateStep(unconfigured))

	badUnit := &models.Step{
		ID:    "wait",
		Kind:  models.StepKindDelay,
		Delay: &models.DelayConfig{Duration: 2, Unit: models.DelayUnit("fortnights")},
	}
	err := reg.ValidateStep(badUnit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid delay configuration")

	unknown := &models.Step{ID: "x", Kind: models.StepKind("webhook")}
	err = reg.ValidateStep(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestRegistry_Kinds(t *testing.T) {
	reg := newRegistry()
	reg.RegisterExecutor(sendemail.NewExecutor(nil, nil, nil, nil), sendemail.Schema())

	assert.ElementsMatch(t, []models.StepKind{models.StepKindDelay, models.StepKindSendEmail}, reg.Kinds())
}

func TestRegistry_HealthCheck(t *testing.T) {
	empty := registry.NewRegistry(slog.Default())
	_, healthy := empty.HealthCheck()
	assert.False(t, healthy)

	_, healthy = newRegistry().HealthCheck()
	assert.True(t, healthy)
}
