package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType is the tagged variant discriminator for workflow nodes.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeSendEmail NodeType = "send_email"
	NodeTypeMoveStage NodeType = "move_stage"
	NodeTypeAddTag    NodeType = "add_tag"
	NodeTypeRemoveTag NodeType = "remove_tag"
	NodeTypeWebhook   NodeType = "webhook"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeCondition NodeType = "condition"
)

// CRMEventType identifies the CRM domain events that can start a workflow.
type CRMEventType string

const (
	CRMEventContactCreated CRMEventType = "contact_created"
	CRMEventStageChanged   CRMEventType = "stage_changed"
	CRMEventTagAdded       CRMEventType = "tag_added"
	CRMEventTagRemoved     CRMEventType = "tag_removed"
)

var ErrUnknownNodeType = errors.New("unknown node type")

// Node is one step in a workflow graph. Config carries the raw variant payload;
// DecodeConfig turns it into the statically typed struct for the node's type.
type Node struct {
	ID     string          `json:"id"   validate:"required"`
	Type   NodeType        `json:"type" validate:"required"`
	Name   string          `json:"name,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// IsAction reports whether the node performs an external side effect when executed.
func (n *Node) IsAction() bool {
	switch n.Type {
	case NodeTypeSendEmail, NodeTypeMoveStage, NodeTypeAddTag, NodeTypeRemoveTag, NodeTypeWebhook:
		return true
	case NodeTypeTrigger, NodeTypeDelay, NodeTypeCondition:
		return false
	default:
		return false
	}
}

// NodeConfig is implemented by every per-variant configuration struct.
type NodeConfig interface {
	Validate() error
}

// TriggerConfig configures the entry node. ToStageID and TagID are optional
// filters: absent matches any event of the trigger type, present requires
// exact equality against the event payload.
type TriggerConfig struct {
	TriggerType CRMEventType `json:"trigger_type"`
	ToStageID   string       `json:"to_stage_id,omitempty"`
	TagID       string       `json:"tag_id,omitempty"`
}

func (c *TriggerConfig) Validate() error {
	switch c.TriggerType {
	case CRMEventContactCreated, CRMEventStageChanged, CRMEventTagAdded, CRMEventTagRemoved:
		return nil
	case "":
		return errors.New("trigger node requires a trigger_type")
	default:
		return fmt.Errorf("unsupported trigger_type %q", c.TriggerType)
	}
}

type SendEmailConfig struct {
	TemplateID  string `json:"template_id"`
	SubjectLine string `json:"subject,omitempty"` // optional template override
}

func (c *SendEmailConfig) Validate() error {
	if c.TemplateID == "" {
		return errors.New("send_email node requires a template_id")
	}

	return nil
}

type MoveStageConfig struct {
	StageID string `json:"stage_id"`
}

func (c *MoveStageConfig) Validate() error {
	if c.StageID == "" {
		return errors.New("move_stage node requires a stage_id")
	}

	return nil
}

// TagConfig is shared by add_tag and remove_tag nodes.
type TagConfig struct {
	TagID string `json:"tag_id"`
}

func (c *TagConfig) Validate() error {
	if c.TagID == "" {
		return errors.New("tag node requires a tag_id")
	}

	return nil
}

type WebhookConfig struct {
	EndpointID string `json:"endpoint_id"`
}

func (c *WebhookConfig) Validate() error {
	if c.EndpointID == "" {
		return errors.New("webhook node requires an endpoint_id")
	}

	return nil
}

type DelayConfig struct {
	DurationMinutes int `json:"duration_minutes"`
}

func (c *DelayConfig) Validate() error {
	if c.DurationMinutes <= 0 {
		return errors.New("delay node requires a positive duration_minutes")
	}

	return nil
}

type ConditionConfig struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
}

func (c *ConditionConfig) Validate() error {
	if c.Field == "" {
		return errors.New("condition node requires a field")
	}

	if !c.Operator.IsValid() {
		return fmt.Errorf("unsupported condition operator %q", c.Operator)
	}

	return nil
}

// DecodeConfig unmarshals the node's raw config into the typed struct for its
// variant and validates the required fields.
func (n *Node) DecodeConfig() (NodeConfig, error) {
	var config NodeConfig

	switch n.Type {
	case NodeTypeTrigger:
		config = &TriggerConfig{}
	case NodeTypeSendEmail:
		config = &SendEmailConfig{}
	case NodeTypeMoveStage:
		config = &MoveStageConfig{}
	case NodeTypeAddTag, NodeTypeRemoveTag:
		config = &TagConfig{}
	case NodeTypeWebhook:
		config = &WebhookConfig{}
	case NodeTypeDelay:
		config = &DelayConfig{}
	case NodeTypeCondition:
		config = &ConditionConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Type)
	}

	if len(n.Config) > 0 {
		if err := json.Unmarshal(n.Config, config); err != nil {
			return nil, fmt.Errorf("node %s: invalid %s config: %w", n.ID, n.Type, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}

	return config, nil
}
