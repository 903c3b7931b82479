/*
Package domain contains the shared vocabulary of the comfyflow client.

It defines execution statuses for nodes and prompts, the persisted prompt record,
lifecycle hook signatures and the sentinel errors used across packages. The package
has no I/O and no dependency on the transport or the graph model, so every other
package can import it.

# Key Entities

  - NodeStatus: execution status of a single graph node as reported by the server.
  - PromptStatus: the New -> Scheduled -> Running -> {Success, Failure} lifecycle.
  - PromptRecord: the snapshot of a prompt handed to a ports.PromptStore.
  - LifecycleHooks: optional callbacks for observability.
*/
package domain
