package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// InputSpec describes one input of a node type.
type InputSpec struct {
	Name     string
	Type     string
	Required bool

	Default    any
	HasDefault bool

	// Enum holds the allowed values when Type is COMBO.
	Enum []any
	Min  *float64
	Max  *float64

	// ForceInput marks a primitive that must be fed by a link.
	ForceInput bool
	// Broken is set for entries the engine publishes as [null].
	Broken bool
}

// IsPrimitive reports whether the input is a widget that takes a literal.
func (in InputSpec) IsPrimitive() bool {
	return !in.ForceInput && IsPrimitive(in.Type)
}

// Validator returns the literal validator for the input, or nil for link types.
func (in InputSpec) Validator() Type {
	switch in.Type {
	case TypeInt:
		return Int()
	case TypeFloat:
		return Float()
	case TypeString:
		return String()
	case TypeBoolean:
		return Bool()
	case TypeCombo:
		return Combo(in.Enum...)
	}
	return nil
}

// Validate checks a literal against the declared type and bounds.
func (in InputSpec) Validate(value any) error {
	typ := in.Validator()
	if typ == nil {
		return nil
	}
	if err := typ.Validate(value); err != nil {
		return &ValidationError{Key: in.Name, Reason: err.Error(), Value: value}
	}
	if n, ok := toFloat(value); ok {
		if in.Min != nil && n < *in.Min {
			return &ValidationError{Key: in.Name, Reason: fmt.Sprintf("below minimum %v", *in.Min), Value: value}
		}
		if in.Max != nil && n > *in.Max {
			return &ValidationError{Key: in.Name, Reason: fmt.Sprintf("above maximum %v", *in.Max), Value: value}
		}
	}
	return nil
}

// OutputSpec describes one output slot of a node type.
type OutputSpec struct {
	Name   string
	Type   string
	Index  int
	IsList bool
}

// NodeSchema is the contract of a single node type.
type NodeSchema struct {
	Name        string
	DisplayName string
	Category    string
	Description string
	OutputNode  bool
	Deprecated  bool

	// Inputs lists required inputs first, then optional ones, in engine order.
	Inputs  []InputSpec
	Outputs []OutputSpec
}

// Input returns the named input spec.
func (n *NodeSchema) Input(name string) (InputSpec, bool) {
	for _, in := range n.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

// OutputsOfType returns the outputs producing the given type, in slot order.
func (n *NodeSchema) OutputsOfType(typeName string) []OutputSpec {
	var out []OutputSpec
	for _, o := range n.Outputs {
		if o.Type == typeName {
			out = append(out, o)
		}
	}
	return out
}

// Catalog is the immutable set of node types known to a host.
type Catalog struct {
	nodes      map[string]*NodeSchema
	names      []string
	embeddings []string
	sourceLen  int
	errs       []error
}

// NewCatalog builds a catalog from already constructed node schemas.
func NewCatalog(nodes ...*NodeSchema) *Catalog {
	c := &Catalog{nodes: make(map[string]*NodeSchema, len(nodes))}
	for _, n := range nodes {
		c.nodes[n.Name] = n
		c.names = append(c.names, n.Name)
	}
	sort.Strings(c.names)
	c.sourceLen = len(c.names)
	return c
}

// Node returns the schema of the named node type.
func (c *Catalog) Node(name string) (*NodeSchema, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

// Names returns all node type names, sorted.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of node types parsed successfully.
func (c *Catalog) Len() int { return len(c.nodes) }

// Embeddings returns the embedding names published by the host.
func (c *Catalog) Embeddings() []string { return slices.Clone(c.embeddings) }

// HasEmbedding reports whether the host knows the named embedding.
func (c *Catalog) HasEmbedding(name string) bool {
	return slices.Contains(c.embeddings, name)
}

// EnumValues returns the allowed values of a COMBO input.
func (c *Catalog) EnumValues(node, input string) ([]any, bool) {
	n, ok := c.nodes[node]
	if !ok {
		return nil, false
	}
	in, ok := n.Input(input)
	if !ok || in.Type != TypeCombo {
		return nil, false
	}
	return slices.Clone(in.Enum), true
}

// Errors returns the per-node decoding failures collected by Parse.
func (c *Catalog) Errors() []error { return slices.Clone(c.errs) }

// Check runs basic consistency checks and returns human-readable issues.
// For now it only ensures every node of the source payload was parsed.
func (c *Catalog) Check() []string {
	var issues []string
	if c.sourceLen != len(c.nodes) {
		issues = append(issues, fmt.Sprintf("%d node types in source, %d parsed", c.sourceLen, len(c.nodes)))
	}
	for _, err := range c.errs {
		issues = append(issues, err.Error())
	}
	return issues
}

// Parse decodes the /object_info payload.
// Node entries that cannot be decoded are skipped and reported through Errors and Check.
func Parse(objectInfo []byte, embeddings []string) (*Catalog, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(objectInfo, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode object_info: %w", err)
	}

	c := &Catalog{
		nodes:      make(map[string]*NodeSchema, len(raw)),
		embeddings: slices.Clone(embeddings),
		sourceLen:  len(raw),
	}
	for name, data := range raw {
		n, err := parseNode(name, data)
		if err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		c.nodes[name] = n
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	sort.Slice(c.errs, func(i, j int) bool { return c.errs[i].Error() < c.errs[j].Error() })
	return c, nil
}

type rawNode struct {
	Input struct {
		Required json.RawMessage `json:"required"`
		Optional json.RawMessage `json:"optional"`
	} `json:"input"`
	InputOrder struct {
		Required []string `json:"required"`
		Optional []string `json:"optional"`
	} `json:"input_order"`
	Output       []json.RawMessage `json:"output"`
	OutputIsList []bool            `json:"output_is_list"`
	OutputName   []string          `json:"output_name"`
	DisplayName  string            `json:"display_name"`
	Description  string            `json:"description"`
	Category     string            `json:"category"`
	OutputNode   bool              `json:"output_node"`
	Deprecated   bool              `json:"deprecated"`
}

func parseNode(name string, data json.RawMessage) (*NodeSchema, error) {
	var r rawNode
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &ParseError{Node: name, Err: err}
	}

	n := &NodeSchema{
		Name:        name,
		DisplayName: r.DisplayName,
		Category:    r.Category,
		Description: r.Description,
		OutputNode:  r.OutputNode,
		Deprecated:  r.Deprecated,
	}

	groups := []struct {
		raw      json.RawMessage
		order    []string
		required bool
	}{
		{r.Input.Required, r.InputOrder.Required, true},
		{r.Input.Optional, r.InputOrder.Optional, false},
	}
	for _, g := range groups {
		inputs, err := parseInputs(g.raw, g.order, g.required)
		if err != nil {
			return nil, &ParseError{Node: name, Field: "input", Err: err}
		}
		n.Inputs = append(n.Inputs, inputs...)
	}

	for i, rawType := range r.Output {
		typ, _, err := parseTypeRef(rawType)
		if err != nil {
			return nil, &ParseError{Node: name, Field: fmt.Sprintf("output[%d]", i), Err: err}
		}
		out := OutputSpec{Type: typ, Index: i, Name: typ}
		if i < len(r.OutputName) {
			out.Name = r.OutputName[i]
		}
		if i < len(r.OutputIsList) {
			out.IsList = r.OutputIsList[i]
		}
		n.Outputs = append(n.Outputs, out)
	}
	return n, nil
}

// parseInputs keeps the engine's declaration order: input_order when present,
// JSON key order otherwise.
func parseInputs(raw json.RawMessage, order []string, required bool) ([]InputSpec, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	om := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, om); err != nil {
		return nil, err
	}

	names := order
	if len(names) == 0 {
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			names = append(names, pair.Key)
		}
	}

	out := make([]InputSpec, 0, len(names))
	for _, key := range names {
		entry, ok := om.Get(key)
		if !ok {
			continue
		}
		in, err := parseInput(key, entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		in.Required = required
		out = append(out, in)
	}
	return out, nil
}

func parseInput(name string, raw json.RawMessage) (InputSpec, error) {
	in := InputSpec{Name: name}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return in, err
	}
	if len(parts) == 0 {
		return in, errors.New("empty input spec")
	}
	if string(parts[0]) == "null" {
		in.Type = TypeAny
		in.Broken = true
		return in, nil
	}

	typ, enum, err := parseTypeRef(parts[0])
	if err != nil {
		return in, err
	}
	in.Type = typ
	in.Enum = enum

	if len(parts) > 1 {
		var opts map[string]any
		// Options may also be a bare string; those carry nothing we use.
		if json.Unmarshal(parts[1], &opts) == nil {
			if d, ok := opts["default"]; ok && d != nil {
				in.Default = d
				in.HasDefault = true
			}
			in.Min = floatOpt(opts, "min")
			in.Max = floatOpt(opts, "max")
			if f, ok := opts["forceInput"].(bool); ok {
				in.ForceInput = f
			}
		}
	}
	if in.Type == TypeCombo && !in.HasDefault && len(in.Enum) > 0 {
		in.Default = in.Enum[0]
		in.HasDefault = true
	}
	return in, nil
}

// parseTypeRef decodes either a type name or an enum definition.
func parseTypeRef(raw json.RawMessage) (string, []any, error) {
	var typ string
	if err := json.Unmarshal(raw, &typ); err == nil {
		return typ, nil, nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", nil, fmt.Errorf("unsupported type reference %s", string(raw))
	}
	enum := make([]any, 0, len(items))
	for _, item := range items {
		// illustrated items: {"content": "...", "image": "..."}
		if m, ok := item.(map[string]any); ok {
			enum = append(enum, m["content"])
			continue
		}
		enum = append(enum, item)
	}
	return TypeCombo, enum, nil
}

func floatOpt(opts map[string]any, key string) *float64 {
	if f, ok := opts[key].(float64); ok {
		return &f
	}
	return nil
}
