/*
Package prompt tracks one submitted execution.

A Prompt is fed the messages the host routes to it, in arrival order. It
drives node statuses on the bound Workflow, starts one retrieval per
produced artifact and resolves exactly once:

	New -> Scheduled -> Running -> Success | Failure

Success waits for every retrieval started so far. Failure resolves at once
and cancels retrievals still in flight.
*/
package prompt
