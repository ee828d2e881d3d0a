package models

import "slices"

// Subject is the CRM entity a run operates on, fetched fresh from the pipeline
// service whenever a condition needs live data.
type Subject struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	StageID        string         `json:"stage_id"`
	Tags           []string       `json:"tags"`
	Fields         map[string]any `json:"fields"`
}

// Field resolves a condition field against the subject. The pipeline stage and
// tag set are addressable alongside the free-form contact fields.
func (s *Subject) Field(name string) (any, bool) {
	switch name {
	case "stage_id":
		return s.StageID, true
	case "tags":
		return s.Tags, true
	}

	value, ok := s.Fields[name]

	return value, ok
}

func (s *Subject) HasTag(tagID string) bool {
	return slices.Contains(s.Tags, tagID)
}

// MergeFields flattens the subject into the data bag email templates render
// against.
func (s *Subject) MergeFields() map[string]any {
	merged := make(map[string]any, len(s.Fields)+3)
	for k, v := range s.Fields {
		merged[k] = v
	}

	merged["subject_id"] = s.ID
	merged["stage_id"] = s.StageID
	merged["tags"] = s.Tags

	return merged
}
