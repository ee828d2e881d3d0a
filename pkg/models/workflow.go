// Package models defines the core domain models for the workflow automation engine.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition version.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Immutable, executable
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, not executable
)

// WorkflowDefinition is one immutable version of a workflow graph. Each edit of
// a published workflow produces a new row with the same GroupID and a higher
// Version; runs always reference the version row they started on.
type WorkflowDefinition struct {
	ID             string         `json:"id"`
	GroupID        string         `json:"group_id"` // Stable ID linking all versions
	OrganizationID string         `json:"organization_id" validate:"required"`
	Name           string         `json:"name"            validate:"required,min=3"`
	Status         WorkflowStatus `json:"status"`
	Version        int            `json:"version"`
	Nodes          []*Node        `json:"nodes"`
	Edges          []*Edge        `json:"edges"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
}

// TriggerNode returns the definition's trigger node, or nil if absent.
// The validator guarantees exactly one exists before a definition is published.
func (d *WorkflowDefinition) TriggerNode() *Node {
	for _, node := range d.Nodes {
		if node.Type == NodeTypeTrigger {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given ID, or nil.
func (d *WorkflowDefinition) NodeByID(id string) *Node {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// IsExecutable reports whether runs may be created against this version.
func (d *WorkflowDefinition) IsExecutable() bool {
	return d.Status == WorkflowStatusPublished
}
