package graph

import (
	"encoding/json"
	"fmt"
)

// Edge is a resolved input pointing at an output slot of another node.
// It serializes as the engine's link tuple: ["<nodeId>", <slot>].
type Edge struct {
	NodeID string
	Slot   int
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.NodeID, e.Slot})
}

func (e Edge) String() string { return fmt.Sprintf("%s:%d", e.NodeID, e.Slot) }

// Auto is the input variant asking the workflow to find a source by type.
type Auto struct{}

// AutoWire wires an input to the most recently created node exposing an output
// of the input's type.
var AutoWire = Auto{}

// Deferred is evaluated at resolution time; its result is resolved in turn.
type Deferred func(b *Builder, w *Workflow) any

// Literal passes a value through without interpretation, e.g. a function value
// that must not be treated as Deferred.
type Literal struct {
	V any
}

// maxDeferredDepth bounds chains of Deferred values returning Deferred values.
const maxDeferredDepth = 16
