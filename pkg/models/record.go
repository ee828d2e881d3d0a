package models

import "time"

// Outcome classifies one node execution attempt in the audit trail.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // idempotency short-circuit, no side effect performed
)

// NodeExecutionRecord is one append-only audit entry. The (RunID, NodeID,
// Attempt) triple is unique; a success record for a pair suppresses any
// further side effect for that node in that run.
type NodeExecutionRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	NodeID     string    `json:"node_id"`
	Attempt    int       `json:"attempt"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
