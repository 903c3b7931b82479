package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/schema"
)

// Workflow is an ordered collection of nodes built against one catalog.
type Workflow struct {
	id      string
	catalog *schema.Catalog
	logger  *slog.Logger

	nodes    []*Node
	index    map[string]*Node
	next     int
	problems []Problem
	groups   []*Group
	builder  *Builder

	layout *Layout

	// mu guards runtime execution state.
	mu      sync.RWMutex
	current *Node
	done    bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithID sets the workflow id instead of a random UUID.
func WithID(id string) Option {
	return func(w *Workflow) { w.id = id }
}

// WithLogger sets the logger used to report problems.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// NewWorkflow creates an empty workflow bound to the catalog.
func NewWorkflow(catalog *schema.Catalog, opts ...Option) *Workflow {
	w := &Workflow{
		id:      uuid.NewString(),
		catalog: catalog,
		logger:  logging.NewNop(),
		index:   make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) ID() string                { return w.id }
func (w *Workflow) Catalog() *schema.Catalog  { return w.catalog }
func (w *Workflow) Len() int                  { return len(w.nodes) }
func (w *Workflow) Nodes() []*Node            { return slices.Clone(w.nodes) }
func (w *Workflow) Problems() []Problem       { return slices.Clone(w.problems) }
func (w *Workflow) Node(id string) (*Node, bool) {
	n, ok := w.index[id]
	return n, ok
}

// Builder returns the typed constructor registry bound to this workflow.
func (w *Workflow) Builder() *Builder {
	if w.builder == nil {
		w.builder = NewBuilder(w)
	}
	return w.builder
}

// CreateNode resolves the node type, allocates an id, resolves every input and
// registers the node.
//
// Unknown types fail with *SchemaResolutionError and unresolvable links with
// *WiringError; in both cases the workflow is left unchanged. Missing required
// inputs are recorded as problems and do not fail the call.
func (w *Workflow) CreateNode(typeName string, inputs map[string]any, meta Meta) (*Node, error) {
	var ns *schema.NodeSchema
	if w.catalog != nil {
		ns, _ = w.catalog.Node(typeName)
	}
	if ns == nil {
		return nil, &SchemaResolutionError{TypeName: typeName}
	}

	id, next, err := w.allocateID(meta.ID)
	if err != nil {
		return nil, err
	}

	n := &Node{
		wf:      w,
		id:      id,
		ordinal: len(w.nodes),
		schema:  ns,
		inputs:  make(map[string]any),
		meta:    meta,
	}
	for _, o := range ns.Outputs {
		n.outputs = append(n.outputs, &Output{node: n, spec: o})
	}

	problemsBefore := len(w.problems)
	order := make([]string, 0, len(ns.Inputs)+len(inputs))
	for _, in := range ns.Inputs {
		order = append(order, in.Name)
	}
	for _, name := range sortedKeys(inputs) {
		if _, declared := ns.Input(name); !declared {
			order = append(order, name)
		}
	}
	for _, name := range order {
		v, ok, err := w.resolve(n, name, inputs[name], 0)
		if err != nil {
			w.problems = w.problems[:problemsBefore]
			return nil, err
		}
		if ok {
			n.inputs[name] = v
		}
	}
	n.inputOrder = order

	w.next = next
	w.nodes = append(w.nodes, n)
	w.index[id] = n
	return n, nil
}

// allocateID returns the id for a new node and the counter value to commit.
func (w *Workflow) allocateID(explicit string) (string, int, error) {
	if explicit == "" {
		id := strconv.Itoa(w.next)
		for w.index[id] != nil {
			w.next++
			id = strconv.Itoa(w.next)
		}
		return id, w.next + 1, nil
	}
	if _, taken := w.index[explicit]; taken {
		return "", 0, &DuplicateNodeError{ID: explicit}
	}
	num, err := strconv.Atoi(explicit)
	if err != nil {
		return explicit, w.next, nil
	}
	if num < w.next {
		return "", 0, &IDOrderError{ID: explicit, Next: w.next}
	}
	return explicit, num + 1, nil
}

// resolve applies the value resolution policy to one input.
// It returns ok=false when the input is left unresolved.
func (w *Workflow) resolve(n *Node, field string, raw any, depth int) (any, bool, error) {
	spec, declared := n.schema.Input(field)

	switch v := raw.(type) {
	case nil:
		switch {
		case !declared:
			return nil, false, nil
		case spec.HasDefault:
			return spec.Default, true, nil
		case !spec.Required:
			return nil, false, nil
		}
		w.recordProblem(n, field, "required input has no value and no default")
		return nil, false, nil

	case Deferred:
		return w.resolveDeferred(n, field, v, depth)
	case func(*Builder, *Workflow) any:
		return w.resolveDeferred(n, field, v, depth)

	case Auto:
		if !declared {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, Reason: "auto wiring needs a declared input"}
		}
		for i := n.ordinal - 1; i >= 0; i-- {
			if o := w.nodes[i].firstOutputOfType(spec.Type); o != nil {
				return o.Edge(), true, nil
			}
		}
		return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, ExpectedType: spec.Type, Reason: "no previous node exposes this type"}

	case *Output:
		if v == nil || !w.precedes(v.node, n) {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, ExpectedType: spec.Type, Reason: "output must come from an earlier node of this workflow"}
		}
		return v.Edge(), true, nil

	case *Node:
		if v == nil || !w.precedes(v, n) {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, ExpectedType: spec.Type, Reason: "node must be an earlier node of this workflow"}
		}
		if !declared {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, Reason: "typed lookup needs a declared input"}
		}
		o := v.firstOutputOfType(spec.Type)
		if o == nil {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, ExpectedType: spec.Type, Reason: fmt.Sprintf("node %s (%s) has no such output", v.id, v.schema.Name)}
		}
		return o.Edge(), true, nil

	case Edge:
		src := w.index[v.NodeID]
		if !w.precedes(src, n) || src.Output(v.Slot) == nil {
			return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, ExpectedType: spec.Type, Reason: fmt.Sprintf("edge %s does not reference a registered output", v)}
		}
		return v, true, nil

	case Literal:
		return v.V, true, nil
	}

	if declared && spec.IsPrimitive() {
		if err := spec.Validate(raw); err != nil {
			w.recordProblem(n, field, err.Error())
		}
	}
	return raw, true, nil
}

// precedes reports whether src is registered here and was created before n.
// Edges only ever point backwards, which keeps the graph acyclic.
func (w *Workflow) precedes(src, n *Node) bool {
	return src != nil && src.wf == w && w.index[src.id] == src && src.ordinal < n.ordinal
}

func (w *Workflow) resolveDeferred(n *Node, field string, fn func(*Builder, *Workflow) any, depth int) (any, bool, error) {
	if depth >= maxDeferredDepth {
		return nil, false, &WiringError{NodeType: n.schema.Name, Field: field, Reason: "deferred value nests too deeply"}
	}
	return w.resolve(n, field, fn(w.Builder(), w), depth+1)
}

func (w *Workflow) recordProblem(n *Node, field, msg string) {
	p := Problem{NodeID: n.id, NodeType: n.schema.Name, Field: field, Message: msg}
	w.problems = append(w.problems, p)
	w.logger.Warn("serialization problem", "node", p.NodeID, "type", p.NodeType, "field", field, "reason", msg)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func prefixedID(typeName string, ordinal int) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, typeName)
	return fmt.Sprintf("%s_%d", clean, ordinal)
}
