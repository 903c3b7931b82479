/*
Package comfyflow is a client for ComfyUI-style node execution engines.

It builds node graphs against the schema published by the engine, submits
them over HTTP, follows their execution over a WebSocket and retrieves the
produced images concurrently while the execution is still running.

# Concept

A Host is one engine. It downloads the node catalog (/object_info), keeps a
resilient socket open and routes every message to the Prompt it belongs to,
buffering messages that arrive before the submission returned. A Workflow is
an ordered graph of Nodes whose inputs are literals or edges to outputs of
earlier nodes; edges can be wired explicitly or inferred by type. A Prompt
is one submitted execution: it reports node progress, saves artifacts as
"executed" messages arrive and resolves to Success or Failure.

# Usage

	client, err := comfyflow.New(host.Config{Address: "127.0.0.1:8188"})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Fatal(err)
	}

	res, err := client.RunFile(ctx, "portrait.yaml")
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range res.Artifacts {
		fmt.Println(a.Path)
	}

Workflows can also be built in code through the Builder returned by
Client.NewWorkflow, see package graph.
*/
package comfyflow
