package models

import (
	"errors"
	"fmt"
)

// Graph is the compiled, read-only form of a workflow definition: nodes live
// in an arena slice, edges are index pairs grouped by handle. A compiled graph
// is safe to share across any number of concurrent runs.
type Graph struct {
	workflowID string
	nodes      []GraphNode
	index      map[string]int
	out        map[int][]graphEdge
	in         map[int]int // incoming edge count
	trigger    int
}

// GraphNode pairs a node with its decoded, typed configuration.
type GraphNode struct {
	Node   *Node
	Config NodeConfig
}

type graphEdge struct {
	handle EdgeHandle
	target int
}

var (
	ErrNoTriggerNode       = errors.New("definition has no trigger node")
	ErrMultipleTriggers    = errors.New("definition has more than one trigger node")
	ErrDuplicateNodeID     = errors.New("duplicate node id")
	ErrEdgeUnknownNode     = errors.New("edge references unknown node")
	ErrNoOutgoingEdge      = errors.New("node has no outgoing edge")
	ErrAmbiguousEdgeHandle = errors.New("multiple outgoing edges share a handle")
)

// Compile builds the arena form of a definition, decoding every node config.
// It enforces structural soundness the executor depends on; the richer
// publish-time diagnostics live in the validator.
func Compile(def *WorkflowDefinition) (*Graph, error) {
	g := &Graph{
		workflowID: def.ID,
		nodes:      make([]GraphNode, 0, len(def.Nodes)),
		index:      make(map[string]int, len(def.Nodes)),
		out:        make(map[int][]graphEdge),
		in:         make(map[int]int),
		trigger:    -1,
	}

	for _, node := range def.Nodes {
		if _, exists := g.index[node.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID)
		}

		config, err := node.DecodeConfig()
		if err != nil {
			return nil, err
		}

		idx := len(g.nodes)
		g.nodes = append(g.nodes, GraphNode{Node: node, Config: config})
		g.index[node.ID] = idx

		if node.IsTrigger() {
			if g.trigger >= 0 {
				return nil, ErrMultipleTriggers
			}

			g.trigger = idx
		}
	}

	if g.trigger < 0 {
		return nil, ErrNoTriggerNode
	}

	for _, edge := range def.Edges {
		source, ok := g.index[edge.Source]
		if !ok {
			return nil, fmt.Errorf("%w: source %s", ErrEdgeUnknownNode, edge.Source)
		}

		target, ok := g.index[edge.Target]
		if !ok {
			return nil, fmt.Errorf("%w: target %s", ErrEdgeUnknownNode, edge.Target)
		}

		handle := edge.NormalizedHandle()
		for _, existing := range g.out[source] {
			if existing.handle == handle {
				return nil, fmt.Errorf("%w: node %s handle %s", ErrAmbiguousEdgeHandle, edge.Source, handle)
			}
		}

		g.out[source] = append(g.out[source], graphEdge{handle: handle, target: target})
		g.in[target]++
	}

	return g, nil
}

// WorkflowID returns the definition version id this graph was compiled from.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// Trigger returns the unique entry node.
func (g *Graph) Trigger() *GraphNode {
	return &g.nodes[g.trigger]
}

// NodeByID returns the compiled node with the given id.
func (g *Graph) NodeByID(id string) (*GraphNode, bool) {
	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}

	return &g.nodes[idx], true
}

// Next follows the outgoing edge with the given handle. The second return is
// false when no such edge exists, which for the default handle means the run
// completes at this node.
func (g *Graph) Next(id string, handle EdgeHandle) (string, bool) {
	idx, ok := g.index[id]
	if !ok {
		return "", false
	}

	for _, edge := range g.out[idx] {
		if edge.handle == handle {
			return g.nodes[edge.target].Node.ID, true
		}
	}

	return "", false
}

// OutDegree returns the number of outgoing edges of a node.
func (g *Graph) OutDegree(id string) int {
	idx, ok := g.index[id]
	if !ok {
		return 0
	}

	return len(g.out[idx])
}

// InDegree returns the number of incoming edges of a node.
func (g *Graph) InDegree(id string) int {
	idx, ok := g.index[id]
	if !ok {
		return 0
	}

	return g.in[idx]
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes iterates the arena in insertion order.
func (g *Graph) Nodes() []GraphNode {
	return g.nodes
}
