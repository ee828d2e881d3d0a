package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 100
	defaultSweepWorkers  = 8
)

// Scheduler resumes suspended runs whose delay has elapsed. Due runs are
// found by polling the store, so pending delays survive process restarts;
// the optimistic claim keeps concurrent workers from resuming the same run.
type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *Executor

	interval  time.Duration
	batchSize int
	workers   int
}

// NewScheduler creates a new delay scheduler.
func NewScheduler(logger *slog.Logger, store persistence.Persistence, executor *Executor) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler"),
		persistence: store,
		executor:    executor,
		interval:    defaultSweepInterval,
		batchSize:   defaultSweepBatch,
		workers:     defaultSweepWorkers,
	}
}

// WithInterval overrides the sweep interval, mainly for tests.
func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	s.interval = interval

	return s
}

// Start sweeps immediately and then on every tick until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting delay scheduler", "interval", s.interval)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping delay scheduler")

			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep claims and resumes every due run, fanning out across a bounded
// worker pool.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.persistence.Runs().DueRuns(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error("Failed to query due runs", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.Debug("Found due runs", "count", len(due))

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, s.workers)

	for _, run := range due {
		semaphore <- struct{}{}

		waitGroup.Add(1)

		go func(run *models.RunInstance) {
			defer waitGroup.Done()
			defer func() { <-semaphore }()

			s.resume(ctx, run)
		}(run)
	}

	waitGroup.Wait()
}

func (s *Scheduler) resume(ctx context.Context, run *models.RunInstance) {
	claimed, err := s.persistence.Runs().ClaimRun(ctx, run.ID)
	if err != nil {
		s.logger.Error("Failed to claim run", "run_id", run.ID, "error", err)

		return
	}

	if !claimed {
		// Another worker got there first, or the run was cancelled while
		// suspended.
		s.logger.Debug("Run no longer claimable", "run_id", run.ID)

		return
	}

	claimedRun, err := s.persistence.Runs().GetByID(ctx, run.ID)
	if err != nil {
		s.logger.Error("Failed to reload claimed run", "run_id", run.ID, "error", err)

		return
	}

	if err := s.executor.Resume(ctx, claimedRun); err != nil {
		s.logger.Error("Failed to resume run", "run_id", run.ID, "error", err)
	}
}
