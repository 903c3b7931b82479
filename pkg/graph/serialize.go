package graph

import (
	"encoding/json"
)

// IDMode selects how node ids appear in the execution payload.
type IDMode string

const (
	// IDNumeric keys nodes by their workflow id.
	IDNumeric IDMode = "numeric"
	// IDPrefixed keys nodes by "<Type>_<ordinal>", easier to read in server logs.
	IDPrefixed IDMode = "prefixed"
)

// PromptNode is one entry of the execution payload.
type PromptNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// PromptPayload projects the workflow into the payload accepted by POST /prompt.
// Disabled nodes and unresolved inputs are skipped; edges are encoded as
// [nodeId, slot] tuples.
func (w *Workflow) PromptPayload(mode IDMode) map[string]PromptNode {
	key := func(n *Node) string {
		if mode == IDPrefixed {
			return n.PrefixedID()
		}
		return n.id
	}

	out := make(map[string]PromptNode, len(w.nodes))
	for _, n := range w.nodes {
		if n.disabled {
			continue
		}
		inputs := make(map[string]any, len(n.inputs))
		for name, v := range n.inputs {
			if e, ok := v.(Edge); ok && mode == IDPrefixed {
				if src, found := w.index[e.NodeID]; found {
					v = Edge{NodeID: src.PrefixedID(), Slot: e.Slot}
				}
			}
			inputs[name] = v
		}
		out[key(n)] = PromptNode{ClassType: n.schema.Name, Inputs: inputs}
	}
	return out
}

// MarshalPrompt returns the JSON encoding of PromptPayload.
// Map keys are sorted by encoding/json, so the output is deterministic.
func (w *Workflow) MarshalPrompt(mode IDMode) ([]byte, error) {
	return json.Marshal(w.PromptPayload(mode))
}

// WireIDs maps the payload keys of mode back to node ids.
// It returns nil for IDNumeric, where both are the same.
func (w *Workflow) WireIDs(mode IDMode) map[string]string {
	if mode != IDPrefixed {
		return nil
	}
	out := make(map[string]string, len(w.nodes))
	for _, n := range w.nodes {
		out[n.PrefixedID()] = n.id
	}
	return out
}
