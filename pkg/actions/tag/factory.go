package tag

import (
	"fmt"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/protocol"
)

func NewAddTagActionFactory(pipeline protocol.PipelineService) *AddTagActionFactory {
	return &AddTagActionFactory{pipeline: pipeline}
}

type AddTagActionFactory struct {
	pipeline protocol.PipelineService
}

func (f *AddTagActionFactory) Type() models.NodeType {
	return models.NodeTypeAddTag
}

func (f *AddTagActionFactory) Create(config models.NodeConfig) (protocol.Action, error) {
	cfg, ok := config.(*models.TagConfig)
	if !ok {
		return nil, fmt.Errorf("add_tag: unexpected config type %T", config)
	}

	return NewTagAction(f.pipeline, cfg, false), nil
}

func (f *AddTagActionFactory) Schema() map[string]any {
	return tagSchema("Tag to add to the contact")
}

func NewRemoveTagActionFactory(pipeline protocol.PipelineService) *RemoveTagActionFactory {
	return &RemoveTagActionFactory{pipeline: pipeline}
}

type RemoveTagActionFactory struct {
	pipeline protocol.PipelineService
}

func (f *RemoveTagActionFactory) Type() models.NodeType {
	return models.NodeTypeRemoveTag
}

func (f *RemoveTagActionFactory) Create(config models.NodeConfig) (protocol.Action, error) {
	cfg, ok := config.(*models.TagConfig)
	if !ok {
		return nil, fmt.Errorf("remove_tag: unexpected config type %T", config)
	}

	return NewTagAction(f.pipeline, cfg, true), nil
}

func (f *RemoveTagActionFactory) Schema() map[string]any {
	return tagSchema("Tag to remove from the contact")
}

func tagSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": description,
			},
		},
		"required": []any{"tag_id"},
	}
}
