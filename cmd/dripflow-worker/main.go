// Package main provides the dripflow background worker: CRM event matching,
// run execution, delay scheduling and audit retention.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dripflow/dripflow/pkg/audit"
	"github.com/dripflow/dripflow/pkg/cmd"
	"github.com/dripflow/dripflow/pkg/log"
	"github.com/dripflow/dripflow/pkg/otelhelper"
	"github.com/dripflow/dripflow/pkg/receivers/queue"
	"github.com/dripflow/dripflow/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "dripflow-worker",
		Usage:                 "Consume CRM events and execute automation runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or a directory path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "crm-data-dir",
				Usage:   "Directory for the local CRM collaborator data",
				Value:   "./data/crm",
				Sources: cli.EnvVars("CRM_DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the stream receiver (disabled when empty)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-stream",
				Usage:   "Redis stream carrying CRM events",
				Sources: cli.EnvVars("REDIS_STREAM"),
			},
			&cli.DurationFlag{
				Name:    "retention-age",
				Usage:   "Age after which execution records of finished runs are purged",
				Value:   audit.DefaultRetentionAge,
				Sources: cli.EnvVars("RETENTION_AGE"),
			},
			&cli.StringFlag{
				Name:    "retention-schedule",
				Usage:   "Cron schedule for the retention sweep",
				Value:   audit.DefaultRetentionSchedule,
				Sources: cli.EnvVars("RETENTION_SCHEDULE"),
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

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("worker").Error("dripflow-worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Dripflow Worker")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "dripflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	crmBus, err := cmd.NewCRMEventBus(command.String("event-bus"), "dripflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := crmBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close crm event bus", "error", err)
		}
	}()

	tracer, err := otelhelper.NewTracer(ctx, "dripflow-worker")
	if err != nil {
		return err
	}

	collaborators := cmd.NewLocalCollaborators(command.String("crm-data-dir"), logger)
	reg := cmd.NewRegistry(logger, collaborators)

	executor := workflow.NewExecutor(logger, store, reg, collaborators.Pipeline, eventBus, tracer)
	matcher := workflow.NewTriggerMatcher(logger, store, executor)
	scheduler := workflow.NewScheduler(logger, store, executor)

	retention, err := audit.NewRetention(logger, store,
		command.Duration("retention-age"), command.String("retention-schedule"))
	if err != nil {
		return err
	}

	var receiver *queue.Receiver

	if addr := command.String("redis-addr"); addr != "" {
		receiver, err = queue.NewReceiver(queue.Config{
			Addr:     addr,
			Stream:   command.String("redis-stream"),
			Consumer: workerID,
		}, crmBus, logger)
		if err != nil {
			return err
		}
	}

	worker := NewWorker(workerID, crmBus, eventBus, matcher, scheduler, retention, receiver, logger)

	return worker.Start(ctx)
}
