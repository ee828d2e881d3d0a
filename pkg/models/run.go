package models

import (
	"fmt"
	"time"

	"github.com/qmuntal/stateless"
)

// RunState represents the lifecycle state of a run instance.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSuspended RunState = "suspended"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// RunInstance is one execution of a published workflow version against one
// subject. At most one active instance exists per (workflow version, subject).
type RunInstance struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	WorkflowID      string     `json:"workflow_id"` // definition version row id
	WorkflowGroupID string     `json:"workflow_group_id"`
	WorkflowVersion int        `json:"workflow_version"`
	SubjectID       string     `json:"subject_id"`
	CurrentNodeID   string     `json:"current_node_id"`
	State           RunState   `json:"state"`
	TriggeredBy     string     `json:"triggered_by"` // event type or "manual"
	ResumeAt        *time.Time `json:"resume_at,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsActive reports whether the run still occupies the per-subject dedup slot.
func (r *RunInstance) IsActive() bool {
	return r.State == RunStateRunning || r.State == RunStateSuspended
}

// IsTerminal reports whether the run has reached a final state.
func (r *RunInstance) IsTerminal() bool {
	switch r.State {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	case RunStateRunning, RunStateSuspended:
		return false
	default:
		return false
	}
}

// newRunStateMachine encodes the legal transitions:
// running -> suspended | completed | failed | cancelled,
// suspended -> running | cancelled. Terminal states permit nothing.
func newRunStateMachine(current RunState) *stateless.StateMachine {
	sm := stateless.NewStateMachine(current)

	sm.Configure(RunStateRunning).
		Permit(RunStateSuspended, RunStateSuspended).
		Permit(RunStateCompleted, RunStateCompleted).
		Permit(RunStateFailed, RunStateFailed).
		Permit(RunStateCancelled, RunStateCancelled)

	sm.Configure(RunStateSuspended).
		Permit(RunStateRunning, RunStateRunning).
		Permit(RunStateCancelled, RunStateCancelled)

	return sm
}

// TransitionTo moves the run to the next state, rejecting transitions the
// lifecycle does not permit. Terminal transitions stamp CompletedAt; leaving
// the suspended state clears ResumeAt.
func (r *RunInstance) TransitionTo(next RunState) error {
	sm := newRunStateMachine(r.State)
	if err := sm.Fire(next); err != nil {
		return fmt.Errorf("run %s: illegal transition %s -> %s: %w", r.ID, r.State, next, err)
	}

	now := time.Now().UTC()
	r.State = next
	r.UpdatedAt = now

	if next != RunStateSuspended {
		r.ResumeAt = nil
	}

	if r.IsTerminal() {
		r.CompletedAt = &now
	}

	return nil
}

// Suspend parks the run at its current node until resumeAt.
func (r *RunInstance) Suspend(resumeAt time.Time) error {
	if err := r.TransitionTo(RunStateSuspended); err != nil {
		return err
	}

	utc := resumeAt.UTC()
	r.ResumeAt = &utc

	return nil
}
