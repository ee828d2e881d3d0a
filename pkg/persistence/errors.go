// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrPublishedWorkflowNotFound indicates no published workflow exists for the given group.
	ErrPublishedWorkflowNotFound = errors.New("published workflow not found")

	// ErrDraftWorkflowNotFound indicates no draft workflow exists for the given group.
	ErrDraftWorkflowNotFound = errors.New("draft workflow not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrRunNotFound indicates a run instance was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrActiveRunExists indicates the subject already has a running or
	// suspended run for the workflow.
	ErrActiveRunExists = errors.New("active run already exists for subject")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save")
	WorkflowID string // Workflow ID if applicable
	GroupID    string // Workflow group ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	target := e.WorkflowID
	if e.GroupID != "" {
		target = fmt.Sprintf("group %s", e.GroupID)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, target, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NewWorkflowGroupError creates a new workflow error for group operations.
func NewWorkflowGroupError(op, groupID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:      op,
		GroupID: groupID,
		Err:     err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsPublishedWorkflowNotFound checks if an error indicates a published workflow was not found.
func IsPublishedWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrPublishedWorkflowNotFound)
}

// IsDraftWorkflowNotFound checks if an error indicates a draft workflow was not found.
func IsDraftWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrDraftWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsActiveRunExists checks if an error indicates a dedup conflict on run creation.
func IsActiveRunExists(err error) bool {
	return errors.Is(err, ErrActiveRunExists)
}
