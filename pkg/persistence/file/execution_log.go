package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// ExecutionLogRepository stores node execution records as one JSON file per
// run, appended in order.
type ExecutionLogRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

func (er *ExecutionLogRepository) dir() string {
	return filepath.Join(er.root, "execution_log")
}

func (er *ExecutionLogRepository) path(runID string) string {
	return filepath.Join(er.dir(), runID+".json")
}

func (er *ExecutionLogRepository) read(runID string) ([]*models.NodeExecutionRecord, error) {
	data, err := os.ReadFile(er.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.NodeExecutionRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read execution log for run %s: %w", runID, err)
	}

	var records []*models.NodeExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt execution log for run %s: %w", runID, err)
	}

	return records, nil
}

func (er *ExecutionLogRepository) write(runID string, records []*models.NodeExecutionRecord) error {
	if err := os.MkdirAll(er.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create execution log directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution log for run %s: %w", runID, err)
	}

	if err := os.WriteFile(er.path(runID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution log for run %s: %w", runID, err)
	}

	return nil
}

func (er *ExecutionLogRepository) Append(_ context.Context, record *models.NodeExecutionRecord) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	records, err := er.read(record.RunID)
	if err != nil {
		return err
	}

	records = append(records, record)

	return er.write(record.RunID, records)
}

func (er *ExecutionLogRepository) RecordsByRun(_ context.Context, runID string) ([]*models.NodeExecutionRecord, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.read(runID)
}

func (er *ExecutionLogRepository) LastAttempt(_ context.Context, runID, nodeID string) (int, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	records, err := er.read(runID)
	if err != nil {
		return 0, err
	}

	last := 0

	for _, record := range records {
		if record.NodeID == nodeID && record.Attempt > last {
			last = record.Attempt
		}
	}

	return last, nil
}

func (er *ExecutionLogRepository) HasSucceeded(_ context.Context, runID, nodeID string) (bool, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	records, err := er.read(runID)
	if err != nil {
		return false, err
	}

	for _, record := range records {
		if record.NodeID == nodeID && record.Outcome == models.OutcomeSuccess {
			return true, nil
		}
	}

	return false, nil
}

// PurgeOlderThan removes log files whose run has reached a terminal state and
// whose most recent record predates the cutoff.
func (er *ExecutionLogRepository) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	root := os.DirFS(er.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return 0, fmt.Errorf("failed to list execution log files: %w", err)
	}

	var purged int64

	for _, file := range jsonFiles {
		runID := file[:len(file)-5]

		records, err := er.read(runID)
		if err != nil {
			return purged, err
		}

		if len(records) == 0 {
			continue
		}

		newest := records[0].ExecutedAt
		for _, record := range records {
			if record.ExecutedAt.After(newest) {
				newest = record.ExecutedAt
			}
		}

		if !newest.Before(cutoff) {
			continue
		}

		if !er.runIsTerminal(runID) {
			continue
		}

		if err := os.Remove(er.path(runID)); err != nil {
			return purged, fmt.Errorf("failed to purge execution log for run %s: %w", runID, err)
		}

		purged += int64(len(records))
	}

	return purged, nil
}

func (er *ExecutionLogRepository) runIsTerminal(runID string) bool {
	data, err := os.ReadFile(filepath.Join(er.root, "runs", runID+".json"))
	if err != nil {
		// Run file gone, nothing left to protect.
		return true
	}

	var run models.RunInstance
	if err := json.Unmarshal(data, &run); err != nil {
		return false
	}

	return run.IsTerminal()
}
