package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dripflow/dripflow/pkg/audit"
	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/events"
	"github.com/dripflow/dripflow/pkg/receivers/queue"
	"github.com/dripflow/dripflow/pkg/workflow"
)

// Worker runs the engine's background half: the CRM event consumer feeding
// the trigger matcher, the delay scheduler and the audit retention sweep.
type Worker struct {
	id           string
	crmBus       eventbus.CRMEventBus
	lifecycleBus eventbus.EventBus
	matcher      *workflow.TriggerMatcher
	scheduler    *workflow.Scheduler
	retention    *audit.Retention
	receiver     *queue.Receiver
	logger       *slog.Logger
}

func NewWorker(
	id string,
	crmBus eventbus.CRMEventBus,
	lifecycleBus eventbus.EventBus,
	matcher *workflow.TriggerMatcher,
	scheduler *workflow.Scheduler,
	retention *audit.Retention,
	receiver *queue.Receiver,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		crmBus:       crmBus,
		lifecycleBus: lifecycleBus,
		matcher:      matcher,
		scheduler:    scheduler,
		retention:    retention,
		receiver:     receiver,
		logger:       logger.With("module", "worker"),
	}
}

// subscribeLifecycle logs terminal run events so operators can watch outcomes
// without tailing the store.
func (w *Worker) subscribeLifecycle(ctx context.Context) error {
	if err := w.lifecycleBus.Handle(events.RunFailedEvent, func(ctx context.Context, event any) error {
		if failed, ok := event.(*events.RunFailed); ok {
			w.logger.WarnContext(ctx, "Run failed",
				"run_id", failed.RunID,
				"workflow_id", failed.WorkflowID,
				"node_id", failed.NodeID,
				"error", failed.Error)
		}

		return nil
	}); err != nil {
		return err
	}

	if err := w.lifecycleBus.Handle(events.RunCompletedEvent, func(ctx context.Context, event any) error {
		if completed, ok := event.(*events.RunCompleted); ok {
			w.logger.InfoContext(ctx, "Run completed",
				"run_id", completed.RunID,
				"workflow_id", completed.WorkflowID,
				"nodes_executed", completed.NodesExecuted)
		}

		return nil
	}); err != nil {
		return err
	}

	return w.lifecycleBus.Subscribe(ctx)
}

// Start wires the subscriptions and blocks until a termination signal or
// context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.InfoContext(ctx, "Starting worker")

	if err := w.crmBus.HandleCRMEvents(w.matcher.OnEvent); err != nil {
		return err
	}

	if err := w.crmBus.SubscribeToCRMEvents(ctx); err != nil {
		return err
	}

	if err := w.subscribeLifecycle(ctx); err != nil {
		return err
	}

	if w.receiver != nil {
		if err := w.receiver.Start(ctx); err != nil {
			return err
		}
	}

	go func() {
		if err := w.scheduler.Start(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Scheduler stopped", "error", err)
		}
	}()

	if err := w.retention.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		w.logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		w.logger.InfoContext(ctx, "Context cancelled, shutting down")
	}

	return w.stop(ctx, cancel)
}

func (w *Worker) stop(ctx context.Context, cancel context.CancelFunc) error {
	cancel()

	if w.receiver != nil {
		if err := w.receiver.Stop(context.WithoutCancel(ctx)); err != nil {
			w.logger.Error("Failed to stop queue receiver", "error", err)
		}
	}

	if err := w.retention.Stop(context.WithoutCancel(ctx)); err != nil {
		w.logger.Error("Failed to stop retention sweeper", "error", err)
	}

	w.logger.Info("Worker stopped")

	return nil
}
