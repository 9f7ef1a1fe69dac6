package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// MetricsReporter periodically logs queue depth and lag so operators can
// watch for backlog growth without an external metrics pipeline.
type MetricsReporter struct {
	scheduler *Scheduler
	logger    *slog.Logger
	schedule  string
	cron      *cron.Cron
}

// NewMetricsReporter creates a reporter on the given cron schedule, e.g.
// "@every 5s".
func NewMetricsReporter(scheduler *Scheduler, logger *slog.Logger, schedule string) *MetricsReporter {
	if schedule == "" {
		schedule = "@every 5s"
	}

	return &MetricsReporter{
		scheduler: scheduler,
		logger:    logger.With("module", "queue_metrics"),
		schedule:  schedule,
		cron:      cron.New(),
	}
}

// Start begins reporting until Stop is called.
func (r *MetricsReporter) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.report(ctx)
	})
	if err != nil {
		return err
	}

	r.cron.Start()

	return nil
}

// Stop halts reporting, waiting for an in-flight report to finish.
func (r *MetricsReporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *MetricsReporter) report(ctx context.Context) {
	metrics, err := r.scheduler.Metrics(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to collect queue metrics", "error", err)

		return
	}

	r.logger.InfoContext(ctx, "Queue metrics",
		"pending", metrics.Pending,
		"overdue", metrics.Overdue,
		"oldest_unclaimed_age", metrics.OldestUnclaimedAge)
}
