package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/pkg/schema"
)

func ptr[T any](v T) *T { return &v }

func out(name string, idx int) schema.OutputSpec {
	return schema.OutputSpec{Name: name, Type: name, Index: idx}
}

func testCatalog() *schema.Catalog {
	return schema.NewCatalog(
		&schema.NodeSchema{Name: "A", Outputs: []schema.OutputSpec{out("STRING", 0)}},
		&schema.NodeSchema{Name: "B", Inputs: []schema.InputSpec{{Name: "field", Type: "STRING", Required: true}}},
		&schema.NodeSchema{
			Name: "Loader",
			Inputs: []schema.InputSpec{
				{Name: "ckpt_name", Type: schema.TypeCombo, Required: true, Enum: []any{"a.safetensors", "b.safetensors"}, Default: "a.safetensors", HasDefault: true},
			},
			Outputs: []schema.OutputSpec{out("MODEL", 0), out("CLIP", 1), out("VAE", 2)},
		},
		&schema.NodeSchema{
			Name: "Encode",
			Inputs: []schema.InputSpec{
				{Name: "clip", Type: "CLIP", Required: true},
				{Name: "text", Type: schema.TypeString, Required: true},
			},
			Outputs: []schema.OutputSpec{out("CONDITIONING", 0)},
		},
		&schema.NodeSchema{
			Name: "Sampler",
			Inputs: []schema.InputSpec{
				{Name: "model", Type: "MODEL", Required: true},
				{Name: "positive", Type: "CONDITIONING", Required: true},
				{Name: "negative", Type: "CONDITIONING", Required: false},
				{Name: "steps", Type: schema.TypeInt, Required: true, Default: float64(20), HasDefault: true, Min: ptr(1.0)},
				{Name: "seed", Type: schema.TypeInt, Required: true},
				{Name: "note", Type: schema.TypeString},
			},
			Outputs: []schema.OutputSpec{out("LATENT", 0)},
		},
		&schema.NodeSchema{
			Name:    "Decode",
			Inputs:  []schema.InputSpec{{Name: "samples", Type: "LATENT", Required: true}, {Name: "vae", Type: "VAE", Required: true}},
			Outputs: []schema.OutputSpec{out("IMAGE", 0)},
		},
		&schema.NodeSchema{
			Name:       "Save",
			OutputNode: true,
			Inputs: []schema.InputSpec{
				{Name: "images", Type: "IMAGE", Required: true},
				{Name: "filename_prefix", Type: schema.TypeString, Required: true, Default: "ComfyUI", HasDefault: true},
			},
		},
		&schema.NodeSchema{
			Name:    "Pair",
			Outputs: []schema.OutputSpec{out("IMAGE", 0), {Name: "MASK_A", Type: "MASK", Index: 1}, {Name: "MASK_B", Type: "MASK", Index: 2}},
		},
	)
}

// buildPipeline creates Loader -> Encode -> Sampler -> Decode -> Save.
func buildPipeline(t *testing.T) (*Workflow, map[string]*Node) {
	t.Helper()
	wf := NewWorkflow(testCatalog(), WithID("wf-test"))
	nodes := map[string]*Node{}

	var err error
	nodes["loader"], err = wf.CreateNode("Loader", nil, Meta{})
	require.NoError(t, err)
	nodes["encode"], err = wf.CreateNode("Encode", map[string]any{"clip": nodes["loader"], "text": "a cat"}, Meta{})
	require.NoError(t, err)
	nodes["sampler"], err = wf.CreateNode("Sampler", map[string]any{
		"model":    nodes["loader"].Output(0),
		"positive": AutoWire,
		"seed":     42,
	}, Meta{})
	require.NoError(t, err)
	nodes["decode"], err = wf.CreateNode("Decode", map[string]any{"samples": AutoWire, "vae": nodes["loader"]}, Meta{})
	require.NoError(t, err)
	nodes["save"], err = wf.CreateNode("Save", map[string]any{"images": AutoWire}, Meta{Tags: []string{"final"}})
	require.NoError(t, err)
	return wf, nodes
}
