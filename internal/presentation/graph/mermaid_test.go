package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/comfyflow/internal/presentation/graph"
	model "github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/schema"
)

func testWorkflow(t *testing.T) *model.Workflow {
	t.Helper()
	catalog := schema.NewCatalog(
		&schema.NodeSchema{Name: "Loader", Outputs: []schema.OutputSpec{{Name: "MODEL", Type: "MODEL"}}},
		&schema.NodeSchema{
			Name:    "Sampler",
			Inputs:  []schema.InputSpec{{Name: "model", Type: "MODEL", Required: true}, {Name: "seed", Type: schema.TypeInt}},
			Outputs: []schema.OutputSpec{{Name: "IMAGE", Type: "IMAGE"}},
		},
		&schema.NodeSchema{Name: "Save", OutputNode: true, Inputs: []schema.InputSpec{{Name: "images", Type: "IMAGE", Required: true}}},
	)
	wf := model.NewWorkflow(catalog)
	loader, err := wf.CreateNode("Loader", nil, model.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	sampler, err := wf.CreateNode("Sampler", map[string]any{"model": model.AutoWire, "seed": 1}, model.Meta{Title: `The "main" one`})
	if err != nil {
		t.Fatal(err)
	}
	_, err = wf.CreateNode("Save", map[string]any{"images": model.AutoWire}, model.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	wf.AddGroup("Generation", "", loader, sampler)
	return wf
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(wf *model.Workflow)
		opts     graph.Options
		contains []string
		excludes []string
	}{
		{
			name: "Node Shapes",
			contains: []string{
				`n0(["0: Loader"])`,
				`n1["1: The 'main' one"]`,
				`n2[["2: Save"]]`,
			},
		},
		{
			name: "Typed Links",
			contains: []string{
				`n0 -- "MODEL" --> n1`,
				`n1 -- "IMAGE" --> n2`,
			},
		},
		{
			name:    "Disabled Node",
			prepare: func(wf *model.Workflow) { n, _ := wf.Node("2"); n.Disable() },
			contains: []string{
				`n1 -. "IMAGE" .-> n2`,
				`2: Save (disabled)`,
			},
		},
		{
			name:     "Groups",
			opts:     graph.Options{Groups: true},
			contains: []string{`subgraph group0 ["Generation"]`, "    end\n"},
		},
		{
			name: "Status Overlay",
			prepare: func(wf *model.Workflow) {
				_, _ = wf.OnCached([]string{"0"})
				_, _ = wf.OnExecuting("1")
				wf.OnProgress(1, 4)
			},
			opts: graph.Options{Status: true},
			contains: []string{
				"class n0 cached;",
				"class n1 executing;",
				"25%",
			},
			excludes: []string{"class n2"},
		},
		{
			name:     "No Overlay Without Option",
			prepare:  func(wf *model.Workflow) { _, _ = wf.OnExecuting("1") },
			excludes: []string{"classDef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := testWorkflow(t)
			if tt.prepare != nil {
				tt.prepare(wf)
			}
			got := graph.GenerateMermaid(wf, tt.opts)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateMermaid() = \n%v\nUnwanted substring: %v", got, unwanted)
				}
			}
		})
	}
}
