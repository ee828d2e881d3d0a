package movestage

import (
	"fmt"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

func NewMoveStageActionFactory(pipeline protocol.PipelineService) *MoveStageActionFactory {
	return &MoveStageActionFactory{pipeline: pipeline}
}

type MoveStageActionFactory struct {
	pipeline protocol.PipelineService
}

func (f *MoveStageActionFactory) Type() models.NodeType {
	return models.NodeTypeMoveStage
}

func (f *MoveStageActionFactory) Create(config models.NodeConfig) (protocol.Action, error) {
	cfg, ok := config.(*models.MoveStageConfig)
	if !ok {
		return nil, fmt.Errorf("move_stage: unexpected config type %T", config)
	}

	return NewMoveStageAction(f.pipeline, cfg), nil
}

func (f *MoveStageActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Pipeline stage to move the contact into",
			},
		},
		"required": []any{"stage_id"},
	}
}
