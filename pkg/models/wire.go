package models

import (
	"encoding/json"
	"fmt"
)

// The graph builder UI persists nodes with a free-form "data" bag and
// camelCase edge handles. ParseBuilderGraph converts that wire format into the
// typed node/edge model; the engine never consumes builder JSON directly.

type builderDocument struct {
	Nodes []builderNode `json:"nodes"`
	Edges []builderEdge `json:"edges"`
}

type builderNode struct {
	ID   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data builderNodeData `json:"data"`
}

type builderNodeData struct {
	Label       string          `json:"label,omitempty"`
	TriggerType CRMEventType    `json:"triggerType,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

type builderEdge struct {
	Source       string     `json:"source"`
	SourceHandle EdgeHandle `json:"sourceHandle,omitempty"`
	Target       string     `json:"target"`
}

// ParseBuilderGraph decodes a builder graph document. Trigger nodes carry
// their event type outside the config bag on the wire; it is folded into the
// typed TriggerConfig here.
func ParseBuilderGraph(data []byte) ([]*Node, []*Edge, error) {
	var doc builderDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid builder graph document: %w", err)
	}

	nodes := make([]*Node, 0, len(doc.Nodes))

	for _, bn := range doc.Nodes {
		node := &Node{
			ID:     bn.ID,
			Type:   bn.Type,
			Name:   bn.Data.Label,
			Config: bn.Data.Config,
		}

		if bn.Type == NodeTypeTrigger {
			config := TriggerConfig{TriggerType: bn.Data.TriggerType}
			if len(bn.Data.Config) > 0 {
				if err := json.Unmarshal(bn.Data.Config, &config); err != nil {
					return nil, nil, fmt.Errorf("node %s: invalid trigger config: %w", bn.ID, err)
				}

				if config.TriggerType == "" {
					config.TriggerType = bn.Data.TriggerType
				}
			}

			raw, err := json.Marshal(config)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: %w", bn.ID, err)
			}

			node.Config = raw
		}

		nodes = append(nodes, node)
	}

	edges := make([]*Edge, 0, len(doc.Edges))
	for _, be := range doc.Edges {
		edges = append(edges, &Edge{
			Source: be.Source,
			Handle: be.SourceHandle,
			Target: be.Target,
		})
	}

	return nodes, edges, nil
}
