// Package events defines the CRM event contract and the engine's lifecycle
// event types.
package events

import (
	"errors"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const (
	CRMTopic = "dripflow.crm.events" // inbound CRM domain events
	RunTopic = "dripflow.run.events" // engine lifecycle events
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunSuspendedEvent EventType = "run.suspended"
	RunResumedEvent   EventType = "run.resumed"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"
	NodeExecutedEvent EventType = "node.executed"
)

var (
	ErrMissingEventType    = errors.New("event type is required")
	ErrMissingOrganization = errors.New("organization id is required")
	ErrMissingSubject      = errors.New("subject id is required")
)

// CRMPayload carries the event-type-specific fields of a CRM event.
type CRMPayload struct {
	ToStageID   string         `json:"to_stage_id,omitempty"`
	FromStageID string         `json:"from_stage_id,omitempty"`
	TagID       string         `json:"tag_id,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// CRMEvent is the inbound contract published by the pipeline service whenever
// a contact is created or changes stage/tags.
type CRMEvent struct {
	ID             string              `json:"id"`
	Type           models.CRMEventType `json:"type"`
	OrganizationID string              `json:"organization_id"`
	SubjectID      string              `json:"subject_id"`
	Payload        CRMPayload          `json:"payload"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func (e *CRMEvent) Validate() error {
	if e.Type == "" {
		return ErrMissingEventType
	}

	if e.OrganizationID == "" {
		return ErrMissingOrganization
	}

	if e.SubjectID == "" {
		return ErrMissingSubject
	}

	return nil
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	SubjectID  string    `json:"subject_id,omitempty"`
}

func NewBaseEvent(eventType EventType, run *models.RunInstance) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		SubjectID:  run.SubjectID,
	}
}

type RunStarted struct {
	BaseEvent

	TriggeredBy string `json:"triggered_by"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type RunSuspended struct {
	BaseEvent

	NodeID   string    `json:"node_id"`
	ResumeAt time.Time `json:"resume_at"`
}

func (e RunSuspended) GetType() EventType { return RunSuspendedEvent }

type RunResumed struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e RunResumed) GetType() EventType { return RunResumedEvent }

type RunCompleted struct {
	BaseEvent

	NodesExecuted int           `json:"nodes_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type RunCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (e RunCancelled) GetType() EventType { return RunCancelledEvent }

type NodeExecuted struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
	Attempt  int             `json:"attempt"`
	Outcome  models.Outcome  `json:"outcome"`
	Error    string          `json:"error,omitempty"`
}

func (e NodeExecuted) GetType() EventType { return NodeExecutedEvent }
