package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dripflow/dripflow/pkg/persistence"
)

const (
	// DefaultRetentionAge keeps three months of history for terminal runs.
	DefaultRetentionAge = 90 * 24 * time.Hour

	// DefaultRetentionSchedule purges once a day at 03:00.
	DefaultRetentionSchedule = "0 3 * * *"
)

// Retention purges execution records of terminal runs once their retention
// age has passed. Records of running and suspended runs are never touched;
// the executor still needs them for idempotency checks.
type Retention struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	age         time.Duration
	schedule    string
	cron        *cron.Cron
}

// NewRetention creates a retention sweeper. Zero age and empty schedule fall
// back to the defaults.
func NewRetention(logger *slog.Logger, store persistence.Persistence, age time.Duration, schedule string) (*Retention, error) {
	if age <= 0 {
		age = DefaultRetentionAge
	}

	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return &Retention{
		logger:      logger.With("module", "audit_retention"),
		persistence: store,
		age:         age,
		schedule:    schedule,
	}, nil
}

// Start schedules the purge job. Overlapping sweeps are skipped rather than
// stacked.
func (r *Retention) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.Purge(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "Retention purge failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention purge: %w", err)
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Retention sweeper started",
		"schedule", r.schedule,
		"retention_age", r.age.String())

	return nil
}

// Purge deletes execution records for terminal runs older than the retention
// age. Safe to call directly, the worker runs one sweep at startup.
func (r *Retention) Purge(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.age)

	removed, err := r.persistence.ExecutionLog().PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge execution records: %w", err)
	}

	if removed > 0 {
		r.logger.InfoContext(ctx, "Purged execution records",
			"removed", removed,
			"cutoff", cutoff.Format(time.RFC3339))
	}

	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (r *Retention) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}

	stopCtx := r.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	r.logger.InfoContext(ctx, "Retention sweeper stopped")

	return nil
}
