// Package web provides the HTTP handlers and request types for the operator
// API: workflow lifecycle, run inspection and manual triggering.
package web

import (
	"encoding/json"

	"github.com/dripflow/dripflow/pkg/models"
)

// CreateWorkflowRequest creates a new workflow group with a version-1 draft.
// The graph is accepted either as typed nodes/edges or as the builder's wire
// document under "graph"; graph takes precedence when both are present.
type CreateWorkflowRequest struct {
	OrganizationID string          `json:"organization_id" validate:"required"`
	Name           string          `json:"name"            validate:"required,min=3"`
	Nodes          []*models.Node  `json:"nodes"`
	Edges          []*models.Edge  `json:"edges"`
	Graph          json.RawMessage `json:"graph,omitempty"`
}

// UpdateWorkflowRequest replaces the graph of an editable draft. Name is
// optional; the graph always replaces the stored one wholesale and may be
// given in either form, as on create.
type UpdateWorkflowRequest struct {
	Name  string          `json:"name,omitempty" validate:"omitempty,min=3"`
	Nodes []*models.Node  `json:"nodes"`
	Edges []*models.Edge  `json:"edges"`
	Graph json.RawMessage `json:"graph,omitempty"`
}

// TriggerRunRequest starts a run manually for one subject.
type TriggerRunRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
}

// CancelRunRequest cancels an active run. CancelledBy is recorded on the run
// for the audit trail.
type CancelRunRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
}

// PauseRunRequest pauses a run that is waiting on a delay.
type PauseRunRequest struct {
	PausedBy string `json:"paused_by" validate:"required"`
}
