package graph

import "fmt"

// SchemaResolutionError is returned when a node type is unknown to the catalog.
type SchemaResolutionError struct {
	TypeName string
}

func (e *SchemaResolutionError) Error() string {
	return fmt.Sprintf("no schema found for node type %q", e.TypeName)
}

// WiringError is returned when an input cannot be turned into an edge.
type WiringError struct {
	NodeType     string
	Field        string
	ExpectedType string
	Reason       string
}

func (e *WiringError) Error() string {
	if e.ExpectedType == "" {
		return fmt.Sprintf("cannot wire %s.%s: %s", e.NodeType, e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot wire %s.%s (%s): %s", e.NodeType, e.Field, e.ExpectedType, e.Reason)
}

// DuplicateNodeError is returned when an explicit node id is already taken.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node id %q already registered", e.ID)
}

// IDOrderError is returned when an explicit numeric id is lower than the
// next id the workflow would allocate. Numeric ids only ever increase.
type IDOrderError struct {
	ID   string
	Next int
}

func (e *IDOrderError) Error() string {
	return fmt.Sprintf("node id %q is below the next free id %d", e.ID, e.Next)
}

// Problem is a non-fatal serialization issue recorded on the workflow.
// The offending input is left unresolved.
type Problem struct {
	NodeID   string
	NodeType string
	Field    string
	Message  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s#%s.%s: %s", p.NodeType, p.NodeID, p.Field, p.Message)
}
