package graph

import (
	"maps"
	"slices"
	"time"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/schema"
)

const (
	nodeWidth      = 200
	nodeLineHeight = 20
)

// Meta carries caller-supplied metadata for a node.
type Meta struct {
	// ID forces the node id. A numeric id advances the workflow counter past it.
	ID      string   `mapstructure:"id" json:"id,omitempty" yaml:"id,omitempty"`
	Title   string   `mapstructure:"title" json:"title,omitempty" yaml:"title,omitempty"`
	Tags    []string `mapstructure:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
	StoreAs string   `mapstructure:"store_as" json:"store_as,omitempty" yaml:"store_as,omitempty"`
	Group   string   `mapstructure:"group" json:"group,omitempty" yaml:"group,omitempty"`
}

// Output is a typed handle on one output slot of a node.
type Output struct {
	node *Node
	spec schema.OutputSpec
}

func (o *Output) Node() *Node    { return o.node }
func (o *Output) Slot() int      { return o.spec.Index }
func (o *Output) Type() string   { return o.spec.Type }
func (o *Output) Name() string   { return o.spec.Name }
func (o *Output) Edge() Edge     { return Edge{NodeID: o.node.id, Slot: o.spec.Index} }
func (o *Output) String() string { return o.Edge().String() }

// Node is one schema-typed unit of work inside a Workflow.
type Node struct {
	wf      *Workflow
	id      string
	ordinal int
	schema  *schema.NodeSchema

	inputs     map[string]any
	inputOrder []string
	outputs    []*Output

	meta     Meta
	disabled bool

	// layout
	x, y float64
	col  int

	// runtime, guarded by wf.mu
	status    domain.NodeStatus
	progress  float64
	updatedAt time.Time
}

func (n *Node) ID() string                 { return n.id }
func (n *Node) TypeName() string           { return n.schema.Name }
func (n *Node) Schema() *schema.NodeSchema { return n.schema }
func (n *Node) Workflow() *Workflow        { return n.wf }

// PrefixedID returns the "<Type>_<ordinal>" form used by IDPrefixed payloads.
func (n *Node) PrefixedID() string {
	return prefixedID(n.schema.Name, n.ordinal)
}

// Inputs returns a copy of the resolved inputs.
// Values are either literals or Edge.
func (n *Node) Inputs() map[string]any {
	return maps.Clone(n.inputs)
}

// Input returns one resolved input.
func (n *Node) Input(name string) (any, bool) {
	v, ok := n.inputs[name]
	return v, ok
}

// Set resolves and replaces the given inputs.
func (n *Node) Set(inputs map[string]any) error {
	for _, name := range sortedKeys(inputs) {
		v, ok, err := n.wf.resolve(n, name, inputs[name], 0)
		if err != nil {
			return err
		}
		if !slices.Contains(n.inputOrder, name) {
			n.inputOrder = append(n.inputOrder, name)
		}
		if !ok {
			delete(n.inputs, name)
			continue
		}
		n.inputs[name] = v
	}
	return nil
}

// Outputs returns the output handles in slot order.
func (n *Node) Outputs() []*Output { return slices.Clone(n.outputs) }

// Output returns the handle of the given slot, or nil.
func (n *Node) Output(slot int) *Output {
	if slot < 0 || slot >= len(n.outputs) {
		return nil
	}
	return n.outputs[slot]
}

// OutputByName returns the output with the given engine name.
func (n *Node) OutputByName(name string) (*Output, bool) {
	for _, o := range n.outputs {
		if o.spec.Name == name {
			return o, true
		}
	}
	return nil, false
}

// OutputsByType maps each type produced by exactly one output to that output.
func (n *Node) OutputsByType() map[string]*Output {
	counts := make(map[string]int)
	for _, o := range n.outputs {
		counts[o.spec.Type]++
	}
	out := make(map[string]*Output)
	for _, o := range n.outputs {
		if counts[o.spec.Type] == 1 {
			out[o.spec.Type] = o
		}
	}
	return out
}

func (n *Node) firstOutputOfType(typeName string) *Output {
	for _, o := range n.outputs {
		if o.spec.Type == typeName {
			return o
		}
	}
	return nil
}

func (n *Node) Meta() Meta { return n.meta }

// Tag appends tags used to label the node's artifacts.
func (n *Node) Tag(tags ...string) *Node {
	n.meta.Tags = append(n.meta.Tags, tags...)
	return n
}

// StoreAs names the node's artifacts for later lookup.
func (n *Node) StoreAs(name string) *Node {
	n.meta.StoreAs = name
	return n
}

// Disable excludes the node from the execution payload.
func (n *Node) Disable() { n.disabled = true }

func (n *Node) Disabled() bool { return n.disabled }

// Position returns the coordinates assigned by the last layout.
func (n *Node) Position() (x, y float64) { return n.x, n.y }

// Column returns the column assigned by the last layout.
func (n *Node) Column() int { return n.col }

// Width and Height are the dimensions used by the layout.
func (n *Node) Width() float64 { return nodeWidth }

func (n *Node) Height() float64 {
	edges := len(n.IncomingEdges())
	header := max(edges, len(n.outputs))
	return float64(n.primitivesCount()+header+1) * nodeLineHeight
}

func (n *Node) primitivesCount() int {
	count := 0
	for _, v := range n.inputs {
		if _, ok := v.(Edge); !ok {
			count++
		}
	}
	return count
}

// EdgeInfo describes one incoming edge of a node.
type EdgeInfo struct {
	From      string
	InputName string
	Slot      int
	Type      string
}

// IncomingEdges lists the edge-shaped inputs in input order.
func (n *Node) IncomingEdges() []EdgeInfo {
	var out []EdgeInfo
	for _, name := range n.inputOrder {
		e, ok := n.inputs[name].(Edge)
		if !ok {
			continue
		}
		info := EdgeInfo{From: e.NodeID, InputName: name, Slot: e.Slot}
		if src, ok := n.wf.index[e.NodeID]; ok {
			if o := src.Output(e.Slot); o != nil {
				info.Type = o.spec.Type
			}
		}
		out = append(out, info)
	}
	return out
}

// Parents returns the distinct nodes feeding this one, in input order.
func (n *Node) Parents() []*Node {
	var out []*Node
	for _, e := range n.IncomingEdges() {
		p, ok := n.wf.index[e.From]
		if !ok || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Children returns the nodes consuming an output of this one, in creation order.
func (n *Node) Children() []*Node {
	var out []*Node
	for _, c := range n.wf.nodes {
		if slices.Contains(c.Parents(), n) {
			out = append(out, c)
		}
	}
	return out
}

// IsChildOf reports whether p feeds this node.
func (n *Node) IsChildOf(p *Node) bool {
	return slices.Contains(n.Parents(), p)
}

func (n *Node) Status() domain.NodeStatus {
	n.wf.mu.RLock()
	defer n.wf.mu.RUnlock()
	return n.status
}

// Progress returns the progress ratio in [0, 1].
func (n *Node) Progress() float64 {
	n.wf.mu.RLock()
	defer n.wf.mu.RUnlock()
	return n.progress
}

func (n *Node) UpdatedAt() time.Time {
	n.wf.mu.RLock()
	defer n.wf.mu.RUnlock()
	return n.updatedAt
}

func (n *Node) SetStatus(s domain.NodeStatus) {
	n.wf.mu.Lock()
	defer n.wf.mu.Unlock()
	n.setStatus(s)
}

// SetProgress clamps ratio to [0, 1].
func (n *Node) SetProgress(ratio float64) {
	n.wf.mu.Lock()
	defer n.wf.mu.Unlock()
	n.progress = min(max(ratio, 0), 1)
	n.updatedAt = time.Now()
}

func (n *Node) setStatus(s domain.NodeStatus) {
	n.status = s
	n.updatedAt = time.Now()
}

// ProgressReport returns the node progress as a report.
func (n *Node) ProgressReport() ProgressReport {
	n.wf.mu.RLock()
	defer n.wf.mu.RUnlock()
	done := n.status == domain.NodeDone
	percent := n.progress * 100
	if done {
		percent = 100
	}
	return ProgressReport{Percent: percent, IsDone: done, CountDone: n.progress * 100, CountTotal: 100}
}
