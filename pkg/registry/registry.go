// Package registry maps action node types to the factories that build them.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[models.NodeType]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[models.NodeType]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.Type()] = factory
	r.logger.Debug("Registered action factory", "type", factory.Type())
}

func (r *Registry) CreateAction(nodeType models.NodeType, config models.NodeConfig) (protocol.Action, error) {
	factory, ok := r.actionFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", nodeType)
	}

	return factory.Create(config)
}

// IsActionRegistered checks whether a factory exists for the node type.
func (r *Registry) IsActionRegistered(nodeType models.NodeType) bool {
	_, exists := r.actionFactories[nodeType]

	return exists
}

// ActionSchema returns the configuration JSON schema for a registered action
// type, or false when the type is unknown.
func (r *Registry) ActionSchema(nodeType models.NodeType) (map[string]any, bool) {
	factory, ok := r.actionFactories[nodeType]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// AvailableActions returns all registered action node types.
func (r *Registry) AvailableActions() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.actionFactories))
	for nodeType := range r.actionFactories {
		types = append(types, nodeType)
	}

	return types
}
