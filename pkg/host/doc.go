/*
Package host is the client of one remote execution engine.

A Host keeps a single reconnecting WebSocket to the engine, refreshes the
node schema on every (re)connection, submits workflows over HTTP and routes
every execution message to the Prompt tracking it. Messages that arrive
before their Prompt exists are buffered and replayed in order.

	h, err := host.New(host.Config{Address: "127.0.0.1:8188"})
	if err != nil { ... }
	h.Start(ctx)
	catalog, err := h.WaitSchema(ctx)
	wf := graph.NewWorkflow(catalog)
	...
	res, err := h.SubmitAndWait(ctx, wf, host.SubmitOptions{})
*/
package host
