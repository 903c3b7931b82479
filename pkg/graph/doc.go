/*
Package graph builds job graphs ("workflows") against a schema catalog.

A Workflow is an ordered set of Nodes. Each Node is an instance of a node type
from the catalog; its inputs are either literals or edges pointing at an output
slot of a node registered earlier in the same workflow.

	wf := graph.NewWorkflow(catalog)
	ckpt, err := wf.CreateNode("CheckpointLoaderSimple", map[string]any{"ckpt_name": "sd15.safetensors"}, graph.Meta{})
	...
	sampler, err := wf.CreateNode("KSampler", map[string]any{
	    "model":        ckpt,            // typed lookup: first MODEL output
	    "positive":     graph.AutoWire,  // latest node exposing CONDITIONING
	    "latent_image": latent.Output(0),
	}, graph.Meta{})

Two projections are derived from the live workflow on demand: the execution
payload sent to the engine (PromptPayload) and the visual LiteGraph snapshot
(VisualGraph), which re-runs AutoLayout first.

Construction is not safe for concurrent use. Runtime state (node status and
progress) is guarded and may be updated while other goroutines read it.
*/
package graph
