package cmd

import (
	"log/slog"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/steps/condition"
	"github.com/dripline/dripline/pkg/steps/delay"
	"github.com/dripline/dripline/pkg/steps/sendemail"
)

// NewRegistry creates a registry with the native step executors registered.
func NewRegistry(
	logger *slog.Logger,
	renderer protocol.Renderer,
	sender protocol.Sender,
	subscribers protocol.SubscriberDirectory,
	deliveries persistence.DeliveryRepository,
) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterExecutor(delay.NewExecutor(), delay.Schema())
	reg.RegisterExecutor(sendemail.NewExecutor(renderer, sender, subscribers, deliveries), sendemail.Schema())
	reg.RegisterExecutor(condition.NewExecutor(subscribers), condition.Schema())

	return reg
}
