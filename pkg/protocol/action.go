// Package protocol defines the interfaces and contracts for pluggable actions
// and the CRM collaborators they act against.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
)

// Action executes one side effect against a subject. Implementations must be
// safe to retry: either naturally idempotent or guarded by an execution
// record check before performing the effect.
type Action interface {
	Execute(ctx context.Context, run *models.RunInstance, subject *models.Subject, logger *slog.Logger) error
}

// ActionFactory creates action instances from decoded node configuration and
// provides metadata about the action type.
type ActionFactory interface {
	// Create creates a new action instance with the given configuration.
	Create(config models.NodeConfig) (Action, error)

	// Type returns the node type this factory builds actions for.
	Type() models.NodeType

	// Schema returns the JSON schema for configuring this action.
	Schema() map[string]any
}
