// Package compiler turns workflow files into graph workflows.
//
// A workflow file is YAML (or JSON) listing nodes in creation order:
//
//	id: portrait
//	nodes:
//	  - name: ckpt
//	    type: CheckpointLoaderSimple
//	    inputs: {ckpt_name: sd15.safetensors}
//	  - name: positive
//	    type: CLIPTextEncode
//	    inputs: {clip: "@auto", text: "a portrait"}
//	  - type: KSampler
//	    inputs:
//	      model: {from: ckpt, output: MODEL}
//	      positive: {from: positive, slot: 0}
//	      negative: "@ref:negative"
//	    meta: {title: Sampler, tags: [main]}
//
// Input values are literals unless they use one of these forms:
//
//	"@auto"              wire to the latest earlier node exposing the input type
//	"@ref:<name>"        wire to the output of <name> matching the input type
//	{from: <name>, slot: <n>}      wire to output slot n (default 0)
//	{from: <name>, output: <name>} wire to the named output
//	{literal: <value>}   pass <value> verbatim, even if it looks like a reference
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/comfyflow/internal/dto"
	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/schema"
)

const (
	autoKeyword = "@auto"
	refPrefix   = "@ref:"
)

// Error locates a compile failure in the file.
type Error struct {
	Index int
	Name  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	loc := fmt.Sprintf("node #%d", e.Index)
	if e.Name != "" {
		loc += fmt.Sprintf(" (%s)", e.Name)
	}
	if e.Field != "" {
		loc += "." + e.Field
	}
	return fmt.Sprintf("%s: %v", loc, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var ErrUnknownReference = errors.New("unknown node reference")

// Compiler builds workflows against one schema catalog.
type Compiler struct {
	catalog *schema.Catalog
	logger  *slog.Logger
}

type Option func(*Compiler)

func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a compiler for catalog.
func New(catalog *schema.Catalog, opts ...Option) *Compiler {
	c := &Compiler{catalog: catalog, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse decodes a workflow file. JSON input is accepted as YAML.
func Parse(data []byte) (*dto.WorkflowFile, error) {
	var f dto.WorkflowFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}
	if len(f.Nodes) == 0 {
		return nil, errors.New("workflow file has no nodes")
	}
	return &f, nil
}

// CompileFile reads and compiles the workflow at path.
func (c *Compiler) CompileFile(path string) (*graph.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c.Compile(f)
}

// Compile creates the nodes of f in order. Construction failures abort;
// non-fatal problems are left on the workflow.
func (c *Compiler) Compile(f *dto.WorkflowFile) (*graph.Workflow, error) {
	var opts []graph.Option
	if f.ID != "" {
		opts = append(opts, graph.WithID(f.ID))
	}
	opts = append(opts, graph.WithLogger(c.logger))
	wf := graph.NewWorkflow(c.catalog, opts...)

	names := make(map[string]*graph.Node, len(f.Nodes))
	groups := make(map[string][]*graph.Node)
	var groupOrder []string

	for i, spec := range f.Nodes {
		fail := func(field string, err error) error {
			return &Error{Index: i, Name: spec.Name, Field: field, Err: err}
		}

		var meta graph.Meta
		if err := mapstructure.Decode(spec.Meta, &meta); err != nil {
			return nil, fail("meta", err)
		}

		inputs := make(map[string]any, len(spec.Inputs))
		for field, raw := range spec.Inputs {
			v, err := value(raw, names)
			if err != nil {
				return nil, fail(field, err)
			}
			inputs[field] = v
		}

		n, err := wf.CreateNode(spec.Type, inputs, meta)
		if err != nil {
			return nil, fail("", err)
		}
		if spec.Disabled {
			n.Disable()
		}

		names[n.ID()] = n
		if spec.Name != "" {
			if _, dup := names[spec.Name]; dup && names[spec.Name] != n {
				c.logger.Warn("node name shadows an earlier node", "name", spec.Name, "id", n.ID())
			}
			names[spec.Name] = n
		}
		if meta.Group != "" {
			if _, ok := groups[meta.Group]; !ok {
				groupOrder = append(groupOrder, meta.Group)
			}
			groups[meta.Group] = append(groups[meta.Group], n)
		}
	}

	for _, title := range groupOrder {
		wf.AddGroup(title, "", groups[title]...)
	}
	for _, g := range f.Groups {
		members := make([]*graph.Node, 0, len(g.Nodes))
		for _, name := range g.Nodes {
			n, ok := names[name]
			if !ok {
				return nil, fmt.Errorf("group %q: %w: %s", g.Title, ErrUnknownReference, name)
			}
			members = append(members, n)
		}
		wf.AddGroup(g.Title, g.Color, members...)
	}

	if problems := wf.Problems(); len(problems) > 0 {
		c.logger.Warn("workflow compiled with problems", "workflow", wf.ID(), "problems", len(problems))
	}
	return wf, nil
}

func value(raw any, names map[string]*graph.Node) (any, error) {
	switch v := raw.(type) {
	case string:
		if v == autoKeyword {
			return graph.AutoWire, nil
		}
		if ref, ok := strings.CutPrefix(v, refPrefix); ok {
			n, ok := names[ref]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
			}
			return n, nil
		}
		return v, nil

	case map[string]any:
		if lit, ok := v["literal"]; ok && len(v) == 1 {
			return graph.Literal{V: lit}, nil
		}
		from, ok := v["from"].(string)
		if !ok {
			return v, nil
		}
		n, ok := names[from]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReference, from)
		}
		if name, ok := v["output"].(string); ok {
			o, ok := n.OutputByName(name)
			if !ok {
				return nil, fmt.Errorf("node %s (%s) has no output %q", n.ID(), n.TypeName(), name)
			}
			return o, nil
		}
		slot := 0
		if s, ok := v["slot"]; ok {
			i, ok := s.(int)
			if !ok {
				return nil, fmt.Errorf("slot must be an integer, got %T", s)
			}
			slot = i
		}
		o := n.Output(slot)
		if o == nil {
			return nil, fmt.Errorf("node %s (%s) has no output slot %d", n.ID(), n.TypeName(), slot)
		}
		return o, nil
	}
	return raw, nil
}
