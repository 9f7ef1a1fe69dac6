package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/dripline/dripline/pkg/cmd"
	"github.com/dripline/dripline/pkg/directory"
	"github.com/dripline/dripline/pkg/log"
	"github.com/dripline/dripline/pkg/mail"
	"github.com/dripline/dripline/pkg/otelhelper"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "dripline-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to process scheduled workflow steps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory:// or redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to poll the queue for due work",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "lease",
				Usage:   "Claim lease duration for queue items",
				Value:   scheduler.DefaultLease,
				Sources: cli.EnvVars("CLAIM_LEASE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("dripline-worker").With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing Dripline Worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	subscribers := directory.NewStatic()
	renderer := mail.NewTemplateRenderer(nil)
	sender := mail.NewLogSender(logger)
	registry := cmd.NewRegistry(logger, renderer, sender, subscribers, persistence.DeliveryRepository())

	tracer, err := otelhelper.NewTracer(ctx, "dripline-worker")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)

		tracer = otel.Tracer("dripline-worker")
	}

	sched := scheduler.NewScheduler(persistence.QueueRepository(), logger)
	tracker := workflow.NewTracker(persistence, sched, eventBus, logger)
	engine := workflow.NewEngine(persistence, registry, sched, eventBus, logger)

	triggerHandler := workflow.NewTriggerHandler(persistence, tracker, logger)
	if err := triggerHandler.Start(ctx, eventBus); err != nil {
		return err
	}

	reporter := scheduler.NewMetricsReporter(sched, logger, "@every 5s")
	if err := reporter.Start(ctx); err != nil {
		return err
	}
	defer reporter.Stop()

	worker := scheduler.NewWorker(workerID, sched, engine, tracer, logger, scheduler.WorkerConfig{
		PollInterval: command.Duration("poll-interval"),
		Lease:        command.Duration("lease"),
	})

	err = worker.Run(ctx)
	if errors.Is(err, context.Canceled) {
		// Give in-flight claims a moment to settle before teardown.
		time.Sleep(100 * time.Millisecond)

		return nil
	}

	return err
}
