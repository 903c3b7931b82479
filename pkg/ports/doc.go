/*
Package ports defines the driven ports (interfaces) of the comfyflow client.

These interfaces decouple prompt tracking from external implementations,
allowing records to live in memory, on disk, in Redis or in PostgreSQL.

# Key Interfaces

  - PromptStore: persists PromptRecord snapshots as prompts change status.
*/
package ports
