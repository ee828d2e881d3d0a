package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// ExecutionLogRepository handles node-execution-log database operations. The
// log is append-only; nothing here updates an existing row.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Append inserts a node execution record.
func (er *ExecutionLogRepository) Append(ctx context.Context, record *models.NodeExecutionRecord) error {
	query := `
		INSERT INTO node_execution_log (id, run_id, node_id, attempt, outcome, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := er.db.ExecContext(ctx, query,
		record.ID,
		record.RunID,
		record.NodeID,
		record.Attempt,
		record.Outcome,
		record.Error,
		record.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record for run %s: %w", record.RunID, err)
	}

	return nil
}

// RecordsByRun returns the execution records for a run in execution order.
func (er *ExecutionLogRepository) RecordsByRun(ctx context.Context, runID string) ([]*models.NodeExecutionRecord, error) {
	query := `
		SELECT id, run_id, node_id, attempt, outcome, error, executed_at
		FROM node_execution_log
		WHERE run_id = $1
		ORDER BY executed_at ASC, attempt ASC
	`

	rows, err := er.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records for run %s: %w", runID, err)
	}
	defer rows.Close()

	records := make([]*models.NodeExecutionRecord, 0)

	for rows.Next() {
		var record models.NodeExecutionRecord

		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.NodeID,
			&record.Attempt,
			&record.Outcome,
			&record.Error,
			&record.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution records: %w", err)
	}

	return records, nil
}

// LastAttempt returns the highest attempt recorded for a node in a run.
func (er *ExecutionLogRepository) LastAttempt(ctx context.Context, runID, nodeID string) (int, error) {
	var attempt int

	query := `
		SELECT COALESCE(MAX(attempt), 0)
		FROM node_execution_log
		WHERE run_id = $1 AND node_id = $2
	`

	err := er.db.QueryRowContext(ctx, query, runID, nodeID).Scan(&attempt)
	if err != nil {
		return 0, fmt.Errorf("failed to query last attempt for node %s in run %s: %w", nodeID, runID, err)
	}

	return attempt, nil
}

// HasSucceeded reports whether a success record exists for the node.
func (er *ExecutionLogRepository) HasSucceeded(ctx context.Context, runID, nodeID string) (bool, error) {
	var succeeded bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM node_execution_log
			WHERE run_id = $1 AND node_id = $2 AND outcome = 'success'
		)
	`

	err := er.db.QueryRowContext(ctx, query, runID, nodeID).Scan(&succeeded)
	if err != nil {
		return false, fmt.Errorf("failed to query success record for node %s in run %s: %w", nodeID, runID, err)
	}

	return succeeded, nil
}

// PurgeOlderThan deletes records for terminal runs older than cutoff.
func (er *ExecutionLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM node_execution_log
		USING runs
		WHERE node_execution_log.run_id = runs.id
			AND runs.state IN ('completed', 'failed', 'cancelled')
			AND node_execution_log.executed_at < $1
	`

	result, err := er.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge execution records: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged execution records: %w", err)
	}

	er.logger.DebugContext(ctx, "Purged execution records", "count", purged, "cutoff", cutoff)

	return purged, nil
}
