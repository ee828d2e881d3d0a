package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/events"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/otelhelper"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/protocol"
	"github.com/dripflow/dripflow/pkg/registry"
)

const (
	defaultMaxAttempts   = 5
	defaultBaseBackoff   = time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultActionTimeout = 10 * time.Second
)

// ErrRunNotSuspended indicates a pause or unpause was attempted on a run that
// is not waiting on a delay.
var ErrRunNotSuspended = errors.New("run is not suspended")

// ErrRunNotResumable indicates a resume was attempted on a run that is not in
// a resumable position.
var ErrRunNotResumable = errors.New("run is not resumable")

// Executor advances runs through their workflow graph one node at a time.
// Every node outcome is persisted before the run moves on, so a crashed
// worker resumes exactly where the log left off.
type Executor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	pipeline    protocol.PipelineService
	eventBus    eventbus.EventBus
	tracer      trace.Tracer

	maxAttempts   int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	actionTimeout time.Duration
}

// NewExecutor creates a new run executor.
func NewExecutor(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	pipeline protocol.PipelineService,
	bus eventbus.EventBus,
	tracer trace.Tracer,
) *Executor {
	return &Executor{
		logger:        logger.With("module", "executor"),
		persistence:   store,
		registry:      reg,
		pipeline:      pipeline,
		eventBus:      bus,
		tracer:        tracer,
		maxAttempts:   defaultMaxAttempts,
		baseBackoff:   defaultBaseBackoff,
		maxBackoff:    defaultMaxBackoff,
		actionTimeout: defaultActionTimeout,
	}
}

// WithRetryPolicy overrides the action retry policy, mainly for tests.
func (e *Executor) WithRetryPolicy(maxAttempts int, baseBackoff, maxBackoff time.Duration) *Executor {
	e.maxAttempts = maxAttempts
	e.baseBackoff = baseBackoff
	e.maxBackoff = maxBackoff

	return e
}

// Execute runs a freshly created run from its trigger node until it
// completes, suspends on a delay, or fails.
func (e *Executor) Execute(ctx context.Context, run *models.RunInstance) error {
	graph, err := e.loadGraph(ctx, run)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.SubjectIDKey, run.SubjectID),
	)
	defer span.End()

	e.publish(ctx, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, run),
		TriggeredBy: run.TriggeredBy,
	})

	if err := e.advance(ctx, graph, run); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// Resume continues a claimed run whose delay has elapsed. The claim already
// moved the run back to running; this steps past the delay node and keeps
// advancing.
func (e *Executor) Resume(ctx context.Context, run *models.RunInstance) error {
	if run.State != models.RunStateRunning || run.CurrentNodeID == "" {
		return fmt.Errorf("run %s in state %s: %w", run.ID, run.State, ErrRunNotResumable)
	}

	graph, err := e.loadGraph(ctx, run)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run.resume",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.NodeIDKey, run.CurrentNodeID),
	)
	defer span.End()

	e.publish(ctx, events.RunResumed{
		BaseEvent: events.NewBaseEvent(events.RunResumedEvent, run),
		NodeID:    run.CurrentNodeID,
	})

	// The suspended position is the delay node itself; the delay is done,
	// so move to its successor before advancing.
	next, ok := graph.Next(run.CurrentNodeID, models.EdgeHandleDefault)
	if !ok {
		return e.complete(ctx, graph, run)
	}

	run.CurrentNodeID = next
	run.UpdatedAt = time.Now().UTC()

	claimed, err := e.persistence.Runs().UpdateActiveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save resumed run: %w", err)
	}

	if !claimed {
		e.logger.Info("Run no longer running, stopping resume", "run_id", run.ID)

		return nil
	}

	if err := e.advance(ctx, graph, run); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// Pause parks a delay-suspended run indefinitely: its due date is cleared so
// the scheduler never picks it up. The remaining delay is forfeited; Unpause
// makes the run due immediately.
func (e *Executor) Pause(ctx context.Context, runID, pausedBy string) (*models.RunInstance, error) {
	run, err := e.persistence.Runs().GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run for pause: %w", err)
	}

	if run.State != models.RunStateSuspended {
		return nil, fmt.Errorf("run %s in state %s: %w", runID, run.State, ErrRunNotSuspended)
	}

	run.ResumeAt = nil
	run.UpdatedAt = time.Now().UTC()

	if err := e.persistence.Runs().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save paused run: %w", err)
	}

	e.logger.Info("Paused run", "run_id", run.ID, "paused_by", pausedBy)

	return run, nil
}

// Unpause makes a suspended run due now; the next scheduler sweep claims and
// resumes it.
func (e *Executor) Unpause(ctx context.Context, runID string) (*models.RunInstance, error) {
	run, err := e.persistence.Runs().GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run for unpause: %w", err)
	}

	if run.State != models.RunStateSuspended {
		return nil, fmt.Errorf("run %s in state %s: %w", runID, run.State, ErrRunNotSuspended)
	}

	now := time.Now().UTC()
	run.ResumeAt = &now
	run.UpdatedAt = now

	if err := e.persistence.Runs().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save unpaused run: %w", err)
	}

	e.logger.Info("Unpaused run", "run_id", run.ID)

	return run, nil
}

// Cancel stops an active run. Terminal runs cannot be cancelled.
func (e *Executor) Cancel(ctx context.Context, runID, cancelledBy string) (*models.RunInstance, error) {
	run, err := e.persistence.Runs().GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run for cancellation: %w", err)
	}

	if err := run.TransitionTo(models.RunStateCancelled); err != nil {
		return nil, fmt.Errorf("cannot cancel run %s: %w", runID, err)
	}

	if err := e.persistence.Runs().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save cancelled run: %w", err)
	}

	e.publish(ctx, events.RunCancelled{
		BaseEvent:   events.NewBaseEvent(events.RunCancelledEvent, run),
		CancelledBy: cancelledBy,
	})

	e.logger.Info("Cancelled run", "run_id", run.ID, "cancelled_by", cancelledBy)

	return run, nil
}

func (e *Executor) loadGraph(ctx context.Context, run *models.RunInstance) (*models.Graph, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow for run %s: %w", run.ID, err)
	}

	graph, err := models.Compile(workflow)
	if err != nil {
		return nil, fmt.Errorf("workflow %s graph is invalid: %w", run.WorkflowID, err)
	}

	return graph, nil
}

// advance walks the graph from the run's current node. It returns when the
// run reaches a terminal state or suspends on a delay.
func (e *Executor) advance(ctx context.Context, graph *models.Graph, run *models.RunInstance) error {
	for {
		node, ok := graph.NodeByID(run.CurrentNodeID)
		if !ok {
			err := fmt.Errorf("current node %s not in workflow graph", run.CurrentNodeID)
			e.record(ctx, run, run.CurrentNodeID, "", 1, models.OutcomeFailed, err.Error())

			return e.fail(ctx, graph, run, run.CurrentNodeID, err)
		}

		var (
			next    string
			hasNext bool
		)

		switch node.Node.Type {
		case models.NodeTypeTrigger:
			next, hasNext = graph.Next(node.Node.ID, models.EdgeHandleDefault)

		case models.NodeTypeCondition:
			handle, err := e.evaluateCondition(ctx, run, node)
			if err != nil {
				e.record(ctx, run, node.Node.ID, node.Node.Type, 1, models.OutcomeFailed, err.Error())

				return e.fail(ctx, graph, run, node.Node.ID, err)
			}

			next, hasNext = graph.Next(node.Node.ID, handle)

		case models.NodeTypeDelay:
			return e.suspend(ctx, run, node)

		default:
			if err := e.executeAction(ctx, run, node); err != nil {
				return e.fail(ctx, graph, run, node.Node.ID, err)
			}

			next, hasNext = graph.Next(node.Node.ID, models.EdgeHandleDefault)
		}

		if !hasNext {
			return e.complete(ctx, graph, run)
		}

		run.CurrentNodeID = next
		run.UpdatedAt = time.Now().UTC()

		ok, err := e.persistence.Runs().UpdateActiveRun(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to save run position: %w", err)
		}

		if !ok {
			e.logger.Info("Run no longer running, stopping advance", "run_id", run.ID)

			return nil
		}
	}
}

// evaluateCondition fetches the subject fresh and evaluates the predicate,
// so decisions reflect changes made by earlier nodes in this run.
func (e *Executor) evaluateCondition(ctx context.Context, run *models.RunInstance, node *models.GraphNode) (models.EdgeHandle, error) {
	config, ok := node.Config.(*models.ConditionConfig)
	if !ok {
		return "", fmt.Errorf("condition node %s: unexpected config type %T", node.Node.ID, node.Config)
	}

	subject, err := e.pipeline.GetSubject(ctx, run.OrganizationID, run.SubjectID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch subject %s: %w", run.SubjectID, err)
	}

	matched, err := config.Evaluate(subject)
	if err != nil {
		return "", fmt.Errorf("condition node %s: %w", node.Node.ID, err)
	}

	e.record(ctx, run, node.Node.ID, node.Node.Type, 1, models.OutcomeSuccess, "")

	e.logger.Debug("Evaluated condition",
		"run_id", run.ID,
		"node_id", node.Node.ID,
		"matched", matched)

	if matched {
		return models.EdgeHandleTrue, nil
	}

	return models.EdgeHandleFalse, nil
}

// suspend parks the run on the delay node as a persisted continuation. The
// scheduler picks it back up when the resume time passes.
func (e *Executor) suspend(ctx context.Context, run *models.RunInstance, node *models.GraphNode) error {
	config, ok := node.Config.(*models.DelayConfig)
	if !ok {
		return fmt.Errorf("delay node %s: unexpected config type %T", node.Node.ID, node.Config)
	}

	resumeAt := time.Now().UTC().Add(time.Duration(config.DurationMinutes) * time.Minute)

	if err := run.Suspend(resumeAt); err != nil {
		return fmt.Errorf("failed to suspend run %s: %w", run.ID, err)
	}

	ok, err := e.persistence.Runs().UpdateActiveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save suspended run: %w", err)
	}

	if !ok {
		e.logger.Info("Run no longer running, dropping suspension", "run_id", run.ID)

		return nil
	}

	e.record(ctx, run, node.Node.ID, node.Node.Type, 1, models.OutcomeSuccess, "")

	e.publish(ctx, events.RunSuspended{
		BaseEvent: events.NewBaseEvent(events.RunSuspendedEvent, run),
		NodeID:    node.Node.ID,
		ResumeAt:  resumeAt,
	})

	e.logger.Info("Suspended run",
		"run_id", run.ID,
		"node_id", node.Node.ID,
		"resume_at", resumeAt)

	return nil
}

// executeAction runs an action node with retries and per-attempt audit
// records. Attempt numbering continues from the log so a worker crash between
// attempts never resets the count.
func (e *Executor) executeAction(ctx context.Context, run *models.RunInstance, node *models.GraphNode) error {
	// send_email and webhook are not naturally idempotent; a prior success
	// record means the effect already happened, so skip instead of repeating.
	succeeded, err := e.persistence.ExecutionLog().HasSucceeded(ctx, run.ID, node.Node.ID)
	if err != nil {
		return fmt.Errorf("failed to check execution log: %w", err)
	}

	if succeeded {
		e.record(ctx, run, node.Node.ID, node.Node.Type, 0, models.OutcomeSkipped, "")

		e.logger.Info("Skipping already-executed node",
			"run_id", run.ID,
			"node_id", node.Node.ID)

		return nil
	}

	action, err := e.registry.CreateAction(node.Node.Type, node.Config)
	if err != nil {
		return fmt.Errorf("failed to create action for node %s: %w", node.Node.ID, err)
	}

	attempt, err := e.persistence.ExecutionLog().LastAttempt(ctx, run.ID, node.Node.ID)
	if err != nil {
		return fmt.Errorf("failed to read last attempt: %w", err)
	}

	remaining := e.maxAttempts - attempt
	if remaining <= 0 {
		return fmt.Errorf("node %s exhausted its %d attempts", node.Node.ID, e.maxAttempts)
	}

	backoff := retry.WithMaxRetries(uint64(remaining-1),
		retry.WithCappedDuration(e.maxBackoff, retry.NewExponential(e.baseBackoff)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		attemptErr := e.attemptAction(ctx, run, node, action, attempt)
		if attemptErr == nil {
			return nil
		}

		if protocol.IsRetryable(attemptErr) {
			return retry.RetryableError(attemptErr)
		}

		return attemptErr
	})
	if err != nil {
		return fmt.Errorf("node %s failed after %d attempts: %w", node.Node.ID, attempt, err)
	}

	return nil
}

// attemptAction performs one attempt with a fresh subject and a bounded
// timeout, and appends the outcome to the execution log.
func (e *Executor) attemptAction(ctx context.Context, run *models.RunInstance, node *models.GraphNode, action protocol.Action, attempt int) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.NodeIDKey, node.Node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Node.Type)),
		attribute.Int(otelhelper.AttemptKey, attempt),
	)
	defer span.End()

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	subject, err := e.pipeline.GetSubject(actionCtx, run.OrganizationID, run.SubjectID)
	if err != nil {
		err = fmt.Errorf("failed to fetch subject %s: %w", run.SubjectID, err)
		e.record(ctx, run, node.Node.ID, node.Node.Type, attempt, models.OutcomeFailed, err.Error())
		otelhelper.SetError(span, err)

		return err
	}

	if err := action.Execute(actionCtx, run, subject, e.logger); err != nil {
		e.record(ctx, run, node.Node.ID, node.Node.Type, attempt, models.OutcomeFailed, err.Error())
		otelhelper.SetError(span, err)

		return err
	}

	e.record(ctx, run, node.Node.ID, node.Node.Type, attempt, models.OutcomeSuccess, "")

	return nil
}

func (e *Executor) complete(ctx context.Context, graph *models.Graph, run *models.RunInstance) error {
	if err := run.TransitionTo(models.RunStateCompleted); err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}

	ok, err := e.persistence.Runs().UpdateActiveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save completed run: %w", err)
	}

	if !ok {
		e.logger.Info("Run no longer running, dropping completion", "run_id", run.ID)

		return nil
	}

	records, err := e.persistence.ExecutionLog().RecordsByRun(ctx, run.ID)
	if err != nil {
		records = nil
	}

	e.publish(ctx, events.RunCompleted{
		BaseEvent:     events.NewBaseEvent(events.RunCompletedEvent, run),
		NodesExecuted: len(records),
		Duration:      time.Since(run.StartedAt),
	})

	e.logger.Info("Completed run",
		"run_id", run.ID,
		"workflow_id", graph.WorkflowID(),
		"duration", time.Since(run.StartedAt))

	return nil
}

// fail marks the run failed. A failed action never advances the run; the
// failure is terminal for this run but not for the event.
func (e *Executor) fail(ctx context.Context, graph *models.Graph, run *models.RunInstance, nodeID string, cause error) error {
	if err := run.TransitionTo(models.RunStateFailed); err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", run.ID, err)
	}

	ok, err := e.persistence.Runs().UpdateActiveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save failed run: %w", err)
	}

	if !ok {
		e.logger.Info("Run no longer running, dropping failure", "run_id", run.ID)

		return nil
	}

	e.publish(ctx, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run),
		NodeID:    nodeID,
		Error:     cause.Error(),
	})

	e.logger.Error("Run failed",
		"run_id", run.ID,
		"workflow_id", graph.WorkflowID(),
		"node_id", nodeID,
		"error", cause)

	return nil
}

// record appends to the execution log. The log is an audit trail; failing to
// write it is logged but never interrupts the run.
func (e *Executor) record(ctx context.Context, run *models.RunInstance, nodeID string, nodeType models.NodeType, attempt int, outcome models.Outcome, errMsg string) {
	entry := &models.NodeExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RunID:      run.ID,
		NodeID:     nodeID,
		Attempt:    attempt,
		Outcome:    outcome,
		Error:      errMsg,
		ExecutedAt: time.Now().UTC(),
	}

	if err := e.persistence.ExecutionLog().Append(ctx, entry); err != nil {
		e.logger.Error("Failed to append execution record",
			"run_id", run.ID,
			"node_id", nodeID,
			"error", err)
	}

	e.publish(ctx, events.NodeExecuted{
		BaseEvent: events.NewBaseEvent(events.NodeExecutedEvent, run),
		NodeID:    nodeID,
		NodeType:  nodeType,
		Attempt:   attempt,
		Outcome:   outcome,
		Error:     errMsg,
	})
}

func (e *Executor) publish(ctx context.Context, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, e.eventBus.GenerateID(), event); err != nil {
		e.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
