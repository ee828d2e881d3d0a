package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawConfig(t *testing.T, config any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(config)
	require.NoError(t, err)

	return raw
}

func branchingDefinition(t *testing.T) *WorkflowDefinition {
	t.Helper()

	return &WorkflowDefinition{
		ID:             "wf-v1",
		GroupID:        "wf",
		OrganizationID: "org-1",
		Name:           "Welcome journey",
		Status:         WorkflowStatusPublished,
		Version:        1,
		Nodes: []*Node{
			{ID: "n1", Type: NodeTypeTrigger, Config: rawConfig(t, TriggerConfig{TriggerType: CRMEventStageChanged})},
			{ID: "n2", Type: NodeTypeCondition, Config: rawConfig(t, ConditionConfig{Field: "team_size", Operator: OperatorEquals, Value: "1-5"})},
			{ID: "n3", Type: NodeTypeAddTag, Config: rawConfig(t, TagConfig{TagID: "small-biz"})},
			{ID: "n4", Type: NodeTypeSendEmail, Config: rawConfig(t, SendEmailConfig{TemplateID: "enterprise-welcome"})},
		},
		Edges: []*Edge{
			{Source: "n1", Target: "n2"},
			{Source: "n2", Handle: EdgeHandleTrue, Target: "n3"},
			{Source: "n2", Handle: EdgeHandleFalse, Target: "n4"},
		},
	}
}

func TestCompile_BranchingGraph(t *testing.T) {
	graph, err := Compile(branchingDefinition(t))
	require.NoError(t, err)

	assert.Equal(t, 4, graph.Len())
	assert.Equal(t, "n1", graph.Trigger().Node.ID)

	next, ok := graph.Next("n1", EdgeHandleDefault)
	require.True(t, ok)
	assert.Equal(t, "n2", next)

	onTrue, ok := graph.Next("n2", EdgeHandleTrue)
	require.True(t, ok)
	assert.Equal(t, "n3", onTrue)

	onFalse, ok := graph.Next("n2", EdgeHandleFalse)
	require.True(t, ok)
	assert.Equal(t, "n4", onFalse)

	_, ok = graph.Next("n3", EdgeHandleDefault)
	assert.False(t, ok, "leaf node has no outgoing edge")

	condition, ok := graph.NodeByID("n2")
	require.True(t, ok)

	config, isCondition := condition.Config.(*ConditionConfig)
	require.True(t, isCondition, "compiled node carries its typed config")
	assert.Equal(t, OperatorEquals, config.Operator)
}

func TestCompile_RejectsDuplicateNodeIDs(t *testing.T) {
	def := branchingDefinition(t)
	def.Nodes = append(def.Nodes, &Node{ID: "n3", Type: NodeTypeAddTag, Config: rawConfig(t, TagConfig{TagID: "dup"})})

	_, err := Compile(def)
	require.ErrorIs(t, err, ErrDuplicateNodeID)
}

func TestCompile_RejectsEdgesToUnknownNodes(t *testing.T) {
	def := branchingDefinition(t)
	def.Edges = append(def.Edges, &Edge{Source: "n3", Target: "ghost"})

	_, err := Compile(def)
	require.ErrorIs(t, err, ErrEdgeUnknownNode)
}

func TestCompile_RequiresExactlyOneTrigger(t *testing.T) {
	def := branchingDefinition(t)
	def.Nodes[0].Type = NodeTypeAddTag
	def.Nodes[0].Config = rawConfig(t, TagConfig{TagID: "x"})

	_, err := Compile(def)
	require.ErrorIs(t, err, ErrNoTriggerNode)

	def = branchingDefinition(t)
	def.Nodes = append(def.Nodes, &Node{ID: "n5", Type: NodeTypeTrigger, Config: rawConfig(t, TriggerConfig{TriggerType: CRMEventTagAdded})})

	_, err = Compile(def)
	require.ErrorIs(t, err, ErrMultipleTriggers)
}

func TestCompile_RejectsAmbiguousHandles(t *testing.T) {
	def := branchingDefinition(t)
	def.Edges = append(def.Edges, &Edge{Source: "n1", Target: "n3"})

	_, err := Compile(def)
	require.ErrorIs(t, err, ErrAmbiguousEdgeHandle)
}

func TestNodeDecodeConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		node    Node
		wantErr string
	}{
		{
			name:    "delay requires positive duration",
			node:    Node{ID: "d1", Type: NodeTypeDelay, Config: json.RawMessage(`{"duration_minutes":0}`)},
			wantErr: "positive duration_minutes",
		},
		{
			name:    "move_stage requires stage id",
			node:    Node{ID: "m1", Type: NodeTypeMoveStage, Config: json.RawMessage(`{}`)},
			wantErr: "stage_id",
		},
		{
			name:    "condition requires known operator",
			node:    Node{ID: "c1", Type: NodeTypeCondition, Config: json.RawMessage(`{"field":"x","operator":"matches"}`)},
			wantErr: "operator",
		},
		{
			name:    "unknown type",
			node:    Node{ID: "u1", Type: "teleport"},
			wantErr: "unknown node type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.node.DecodeConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseBuilderGraph(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": "n1", "type": "trigger", "data": {"triggerType": "stage_changed", "config": {"to_stage_id": "stage-approved"}}},
			{"id": "n2", "type": "delay", "data": {"label": "Wait a day", "config": {"duration_minutes": 1440}}}
		],
		"edges": [
			{"source": "n1", "target": "n2"}
		]
	}`

	nodes, edges, err := ParseBuilderGraph([]byte(doc))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Len(t, edges, 1)

	trigger, err := nodes[0].DecodeConfig()
	require.NoError(t, err)

	triggerConfig, ok := trigger.(*TriggerConfig)
	require.True(t, ok)
	assert.Equal(t, CRMEventStageChanged, triggerConfig.TriggerType)
	assert.Equal(t, "stage-approved", triggerConfig.ToStageID)

	assert.Equal(t, "Wait a day", nodes[1].Name)
	assert.Equal(t, EdgeHandleDefault, edges[0].NormalizedHandle())
}
