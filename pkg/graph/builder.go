package graph

import (
	"sort"
)

// Constructor creates a node of a fixed type in the builder's workflow.
type Constructor func(inputs map[string]any, meta ...Meta) (*Node, error)

// Builder is a registry of constructors, one per node type of the catalog.
type Builder struct {
	wf    *Workflow
	ctors map[string]Constructor
	types []string
}

// NewBuilder builds the registry once from the workflow's catalog.
func NewBuilder(w *Workflow) *Builder {
	b := &Builder{wf: w, ctors: make(map[string]Constructor)}
	if w.catalog == nil {
		return b
	}
	for _, name := range w.catalog.Names() {
		typeName := name
		b.ctors[typeName] = func(inputs map[string]any, meta ...Meta) (*Node, error) {
			var m Meta
			if len(meta) > 0 {
				m = meta[0]
			}
			return w.CreateNode(typeName, inputs, m)
		}
		b.types = append(b.types, typeName)
	}
	sort.Strings(b.types)
	return b
}

// Node returns the constructor of the named type.
func (b *Builder) Node(typeName string) (Constructor, bool) {
	c, ok := b.ctors[typeName]
	return c, ok
}

// Has reports whether the type can be constructed.
func (b *Builder) Has(typeName string) bool {
	_, ok := b.ctors[typeName]
	return ok
}

// Types returns the constructible type names, sorted.
func (b *Builder) Types() []string {
	out := make([]string, len(b.types))
	copy(out, b.types)
	return out
}

func (b *Builder) Workflow() *Workflow { return b.wf }

// Create is a shortcut for looking up a constructor and calling it.
func (b *Builder) Create(typeName string, inputs map[string]any, meta ...Meta) (*Node, error) {
	c, ok := b.ctors[typeName]
	if !ok {
		return nil, &SchemaResolutionError{TypeName: typeName}
	}
	return c(inputs, meta...)
}
