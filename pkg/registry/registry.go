// Package registry holds the step executors known to the engine and the
// JSON schemas their configurations are validated against.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

// Registry maps step kinds to their executors and config schemas.
type Registry struct {
	logger    *slog.Logger
	executors map[models.StepKind]protocol.StepExecutor
	schemas   map[models.StepKind]map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[models.StepKind]protocol.StepExecutor),
		schemas:   make(map[models.StepKind]map[string]any),
	}
}

// RegisterExecutor registers an executor and the schema of its step payload.
func (r *Registry) RegisterExecutor(executor protocol.StepExecutor, schema map[string]any) {
	r.executors[executor.Kind()] = executor
	r.schemas[executor.Kind()] = schema

	r.logger.Debug("Registered step executor", "kind", executor.Kind())
}

// ExecutorFor resolves the executor for a step kind.
func (r *Registry) ExecutorFor(kind models.StepKind) (protocol.StepExecutor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("step kind %q not registered", kind)
	}

	return executor, nil
}

// Kinds returns the registered step kinds.
func (r *Registry) Kinds() []models.StepKind {
	kinds := make([]models.StepKind, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}

	return kinds
}

// ValidateStep validates a step's variant payload against the registered
// schema for its kind. This catches malformed raw payloads at the API
// boundary before the structural graph validation runs. A missing payload is
// accepted: drafts may carry steps awaiting configuration, and activation
// enforces completeness.
func (r *Registry) ValidateStep(step *models.Step) error {
	schema, ok := r.schemas[step.Kind]
	if !ok {
		return fmt.Errorf("step %q: unknown kind %q", step.ID, step.Kind)
	}

	var payload any

	switch step.Kind {
	case models.StepKindDelay:
		payload = step.Delay
	case models.StepKindSendEmail:
		payload = step.SendEmail
	case models.StepKindCondition:
		payload = step.Condition
	}

	if payload == nil || isNilPointer(payload) {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("step %q: schema validation failed: %w", step.ID, err)
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			return fmt.Errorf("step %q: invalid %s configuration: %s", step.ID, step.Kind, desc)
		}
	}

	return nil
}

// HealthCheck reports whether the registry carries at least one executor.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.executors) == 0 {
		return "No step executors registered", false
	}

	return fmt.Sprintf("%d step executors registered", len(r.executors)), true
}

func isNilPointer(payload any) bool {
	raw, err := json.Marshal(payload)

	return err == nil && string(raw) == "null"
}
