// Package protocol defines the interfaces between the workflow engine, its
// pluggable step executors, and the external collaborators it delegates to.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dripline/dripline/pkg/models"
)

// StepScope is the per-invocation context handed to a step executor.
type StepScope struct {
	Execution *models.Execution
	Workflow  *models.Workflow
	// Now is the scheduling reference time. Executors use it instead of
	// time.Now so delayed due times are deterministic under test.
	Now time.Time
	// DryRun suppresses external side effects; executors report what they
	// would do without sending or scheduling anything.
	DryRun bool
}

// StepExecutor runs one step kind. Executors must be safe to re-run with the
// same inputs: the queue guarantees at-least-once delivery, so a crashed
// worker's step may execute again after the lease expires.
type StepExecutor interface {
	Kind() models.StepKind
	Execute(ctx context.Context, step *models.Step, scope StepScope, logger *slog.Logger) (models.StepResult, error)
}
