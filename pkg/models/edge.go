package models

// EdgeHandle labels the outgoing side of an edge. Linear nodes use the default
// handle; condition nodes route through the true/false handles.
type EdgeHandle string

const (
	EdgeHandleDefault EdgeHandle = "default"
	EdgeHandleTrue    EdgeHandle = "true"
	EdgeHandleFalse   EdgeHandle = "false"
)

// Edge is a directed connection between two nodes of the same definition.
type Edge struct {
	Source string     `json:"source" validate:"required"`
	Handle EdgeHandle `json:"source_handle,omitempty"`
	Target string     `json:"target" validate:"required"`
}

// NormalizedHandle maps an empty handle to the default one.
func (e *Edge) NormalizedHandle() EdgeHandle {
	if e.Handle == "" {
		return EdgeHandleDefault
	}

	return e.Handle
}
