// Package workflow implements the core engine services: graph validation,
// publishing, trigger matching, run execution and the delay scheduler.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
	"github.com/dripflow/dripflow/pkg/registry"
)

// ValidationIssue describes one problem found in a workflow graph.
type ValidationIssue struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// ValidationResult collects every issue found rather than stopping at the
// first, so the builder can surface all problems in one pass.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

func (r *ValidationResult) add(nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validator checks workflow graphs for structural soundness, configuration
// validity and dangling references to CRM entities.
type Validator struct {
	logger    *slog.Logger
	registry  *registry.Registry
	pipeline  protocol.PipelineService
	messaging protocol.MessagingService
	webhooks  protocol.WebhookDispatcher
}

// NewValidator creates a new workflow validator.
func NewValidator(
	logger *slog.Logger,
	reg *registry.Registry,
	pipeline protocol.PipelineService,
	messaging protocol.MessagingService,
	webhooks protocol.WebhookDispatcher,
) *Validator {
	return &Validator{
		logger:    logger.With("module", "validator"),
		registry:  reg,
		pipeline:  pipeline,
		messaging: messaging,
		webhooks:  webhooks,
	}
}

// Validate checks the workflow and returns every issue found. The error
// return is reserved for collaborator failures; an invalid graph is a
// ValidationResult with Valid=false, not an error.
func (v *Validator) Validate(ctx context.Context, workflow *models.WorkflowDefinition) (*ValidationResult, error) {
	result := &ValidationResult{Issues: []ValidationIssue{}}

	configs := v.checkNodes(workflow, result)
	v.checkEdges(workflow, result)
	v.checkTopology(workflow, result)

	if err := v.checkReferences(ctx, workflow, configs, result); err != nil {
		return nil, err
	}

	result.Valid = len(result.Issues) == 0

	v.logger.Debug("Validated workflow",
		"workflow_id", workflow.ID,
		"valid", result.Valid,
		"issues", len(result.Issues))

	return result, nil
}

// checkNodes verifies node identity and configuration, returning the decoded
// configs for nodes that parsed cleanly.
func (v *Validator) checkNodes(workflow *models.WorkflowDefinition, result *ValidationResult) map[string]models.NodeConfig {
	configs := make(map[string]models.NodeConfig, len(workflow.Nodes))
	seen := make(map[string]bool, len(workflow.Nodes))
	triggers := 0

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			result.add("", "node is missing an id")

			continue
		}

		if seen[node.ID] {
			result.add(node.ID, "duplicate node id")

			continue
		}

		seen[node.ID] = true

		if node.IsTrigger() {
			triggers++
		}

		config, err := node.DecodeConfig()
		if err != nil {
			result.add(node.ID, "invalid configuration: %v", err)

			continue
		}

		if err := config.Validate(); err != nil {
			result.add(node.ID, "invalid configuration: %v", err)

			continue
		}

		if node.IsAction() {
			v.checkActionSchema(node, result)
		}

		configs[node.ID] = config
	}

	switch {
	case triggers == 0:
		result.add("", "workflow has no trigger node")
	case triggers > 1:
		result.add("", "workflow has %d trigger nodes, exactly one is allowed", triggers)
	}

	return configs
}

// checkActionSchema validates the raw node config against the JSON schema
// published by the action's factory.
func (v *Validator) checkActionSchema(node *models.Node, result *ValidationResult) {
	schema, ok := v.registry.ActionSchema(node.Type)
	if !ok {
		result.add(node.ID, "action type '%s' is not registered", node.Type)

		return
	}

	raw := node.Config
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	schemaResult, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		result.add(node.ID, "schema validation failed: %v", err)

		return
	}

	for _, issue := range schemaResult.Errors() {
		result.add(node.ID, "%s", issue.String())
	}
}

func (v *Validator) checkEdges(workflow *models.WorkflowDefinition, result *ValidationResult) {
	nodesByID := make(map[string]*models.Node, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		nodesByID[node.ID] = node
	}

	type outgoing struct {
		source string
		handle models.EdgeHandle
	}

	seen := make(map[outgoing]bool, len(workflow.Edges))

	for _, edge := range workflow.Edges {
		source, sourceKnown := nodesByID[edge.Source]
		if !sourceKnown {
			result.add(edge.Source, "edge references unknown source node")
		}

		target, targetKnown := nodesByID[edge.Target]
		if !targetKnown {
			result.add(edge.Target, "edge references unknown target node")
		}

		handle := edge.NormalizedHandle()

		if sourceKnown {
			isBranch := handle == models.EdgeHandleTrue || handle == models.EdgeHandleFalse
			if source.Type == models.NodeTypeCondition && !isBranch {
				result.add(source.ID, "condition outgoing edge must use a true or false handle")
			}

			if source.Type != models.NodeTypeCondition && isBranch {
				result.add(source.ID, "only condition nodes may use branch handles")
			}

			key := outgoing{source: edge.Source, handle: handle}
			if seen[key] {
				result.add(source.ID, "multiple outgoing edges on handle '%s'", handle)
			}

			seen[key] = true
		}

		if targetKnown && target.IsTrigger() {
			result.add(target.ID, "trigger node cannot be an edge target")
		}
	}

	// Every condition must branch both ways so no run can stall on an
	// unmatched evaluation.
	for _, node := range workflow.Nodes {
		if node.Type != models.NodeTypeCondition {
			continue
		}

		if !seen[outgoing{source: node.ID, handle: models.EdgeHandleTrue}] {
			result.add(node.ID, "condition node is missing its true edge")
		}

		if !seen[outgoing{source: node.ID, handle: models.EdgeHandleFalse}] {
			result.add(node.ID, "condition node is missing its false edge")
		}
	}
}

// checkTopology runs reachability and cycle detection over the edge list.
// It works on the raw definition since the arena graph refuses to compile
// anything the earlier checks flagged.
func (v *Validator) checkTopology(workflow *models.WorkflowDefinition, result *ValidationResult) {
	trigger := workflow.TriggerNode()
	if trigger == nil {
		return
	}

	adjacency := make(map[string][]string, len(workflow.Nodes))
	for _, edge := range workflow.Edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	reachable := make(map[string]bool, len(workflow.Nodes))
	stack := []string{trigger.ID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if reachable[id] {
			continue
		}

		reachable[id] = true
		stack = append(stack, adjacency[id]...)
	}

	for _, node := range workflow.Nodes {
		if node.ID != "" && !reachable[node.ID] {
			result.add(node.ID, "node is not reachable from the trigger")
		}
	}

	const (
		colorVisiting = 1
		colorDone     = 2
	)

	colors := make(map[string]int, len(workflow.Nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		colors[id] = colorVisiting

		for _, next := range adjacency[id] {
			switch colors[next] {
			case colorVisiting:
				result.add(next, "workflow contains a cycle")

				return true
			case colorDone:
				continue
			default:
				if visit(next) {
					return true
				}
			}
		}

		colors[id] = colorDone

		return false
	}

	visit(trigger.ID)
}

// checkReferences verifies that every CRM entity the workflow points at still
// exists: stages, tags, email templates and webhook endpoints.
func (v *Validator) checkReferences(ctx context.Context, workflow *models.WorkflowDefinition, configs map[string]models.NodeConfig, result *ValidationResult) error {
	orgID := workflow.OrganizationID

	for _, node := range workflow.Nodes {
		config, ok := configs[node.ID]
		if !ok {
			continue
		}

		switch cfg := config.(type) {
		case *models.TriggerConfig:
			if cfg.ToStageID != "" {
				if err := v.requireStage(ctx, orgID, cfg.ToStageID, node.ID, result); err != nil {
					return err
				}
			}

			if cfg.TagID != "" {
				if err := v.requireTag(ctx, orgID, cfg.TagID, node.ID, result); err != nil {
					return err
				}
			}
		case *models.MoveStageConfig:
			if err := v.requireStage(ctx, orgID, cfg.StageID, node.ID, result); err != nil {
				return err
			}
		case *models.TagConfig:
			if err := v.requireTag(ctx, orgID, cfg.TagID, node.ID, result); err != nil {
				return err
			}
		case *models.SendEmailConfig:
			exists, err := v.messaging.TemplateExists(ctx, orgID, cfg.TemplateID)
			if err != nil {
				return fmt.Errorf("checking template %s: %w", cfg.TemplateID, err)
			}

			if !exists {
				result.add(node.ID, "email template '%s' does not exist", cfg.TemplateID)
			}
		case *models.WebhookConfig:
			exists, err := v.webhooks.EndpointExists(ctx, orgID, cfg.EndpointID)
			if err != nil {
				return fmt.Errorf("checking endpoint %s: %w", cfg.EndpointID, err)
			}

			if !exists {
				result.add(node.ID, "webhook endpoint '%s' does not exist", cfg.EndpointID)
			}
		}
	}

	return nil
}

func (v *Validator) requireStage(ctx context.Context, orgID, stageID, nodeID string, result *ValidationResult) error {
	exists, err := v.pipeline.StageExists(ctx, orgID, stageID)
	if err != nil {
		return fmt.Errorf("checking stage %s: %w", stageID, err)
	}

	if !exists {
		result.add(nodeID, "stage '%s' does not exist", stageID)
	}

	return nil
}

func (v *Validator) requireTag(ctx context.Context, orgID, tagID, nodeID string, result *ValidationResult) error {
	exists, err := v.pipeline.TagExists(ctx, orgID, tagID)
	if err != nil {
		return fmt.Errorf("checking tag %s: %w", tagID, err)
	}

	if !exists {
		result.add(nodeID, "tag '%s' does not exist", tagID)
	}

	return nil
}
