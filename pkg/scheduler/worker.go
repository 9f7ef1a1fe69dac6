package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/otelhelper"
)

const (
	// DefaultPollInterval is how often a worker asks the queue for due items.
	DefaultPollInterval = 1 * time.Second
	// DefaultClaimLimit is the claim batch size per poll.
	DefaultClaimLimit = 10
	// DefaultLease must comfortably exceed a single step execution. An
	// expired lease makes the item claimable again, so a too-short lease
	// turns slow steps into duplicate claims.
	DefaultLease = 30 * time.Second
)

// Processor handles one claimed queue item end to end. Process returns an
// error only on infrastructure failure; the worker then releases the item
// back to the queue with backoff. Abandon is called when the item exhausts
// its retry budget.
type Processor interface {
	Process(ctx context.Context, item *models.QueueItem) error
	Abandon(ctx context.Context, item *models.QueueItem, reason string) error
}

// WorkerConfig tunes the poll loop. Zero values fall back to defaults.
type WorkerConfig struct {
	PollInterval time.Duration
	ClaimLimit   int
	Lease        time.Duration
}

// Worker polls the queue for due items and hands them to the processor.
// Multiple workers may poll the same queue; the claim lease keeps any item
// with at most one active worker.
type Worker struct {
	id        string
	scheduler *Scheduler
	processor Processor
	tracer    trace.Tracer
	logger    *slog.Logger
	config    WorkerConfig
}

// NewWorker creates a worker with the given identity.
func NewWorker(id string, scheduler *Scheduler, processor Processor, tracer trace.Tracer, logger *slog.Logger, config WorkerConfig) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	if config.ClaimLimit <= 0 {
		config.ClaimLimit = DefaultClaimLimit
	}

	if config.Lease <= 0 {
		config.Lease = DefaultLease
	}

	return &Worker{
		id:        id,
		scheduler: scheduler,
		processor: processor,
		tracer:    tracer,
		logger:    logger.With("module", "worker", "worker_id", id),
		config:    config,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Worker started",
		"poll_interval", w.config.PollInterval,
		"claim_limit", w.config.ClaimLimit,
		"lease", w.config.Lease)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.poll(ctx)

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Worker stopping")

			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	items, err := w.scheduler.Claim(ctx, w.config.ClaimLimit, w.config.Lease, w.id)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to claim queue items", "error", err)

		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}

		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *models.QueueItem) {
	spanCtx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.process_item",
		attribute.String(otelhelper.QueueItemIDKey, item.ID),
		attribute.String(otelhelper.ExecutionIDKey, item.ExecutionID),
		attribute.String(otelhelper.WorkflowIDKey, item.WorkflowID),
		attribute.Int(otelhelper.AttemptKey, item.Attempts),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	err := w.processor.Process(spanCtx, item)
	if err == nil {
		return
	}

	otelhelper.SetError(span, err)
	w.logger.ErrorContext(spanCtx, "Failed to process queue item",
		"execution_id", item.ExecutionID,
		"attempts", item.Attempts,
		"error", err)

	exhausted, retryAt, releaseErr := w.scheduler.Release(spanCtx, item)
	if releaseErr != nil {
		// The lease will expire and another worker will pick the item up.
		w.logger.ErrorContext(spanCtx, "Failed to release queue item", "error", releaseErr)

		return
	}

	if exhausted {
		if abandonErr := w.processor.Abandon(spanCtx, item, err.Error()); abandonErr != nil {
			w.logger.ErrorContext(spanCtx, "Failed to abandon execution",
				"execution_id", item.ExecutionID,
				"error", abandonErr)
		}

		return
	}

	w.logger.WarnContext(spanCtx, "Queue item scheduled for retry",
		"execution_id", item.ExecutionID,
		"retry_at", retryAt)
}
