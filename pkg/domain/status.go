package domain

// NodeStatus is the execution status of a node, as reported by the server.
// The zero value means the server has not said anything about the node yet.
type NodeStatus string

const (
	NodeIdle      NodeStatus = ""
	NodeWaiting   NodeStatus = "waiting"
	NodeExecuting NodeStatus = "executing"
	NodeCached    NodeStatus = "cached"
	NodeDone      NodeStatus = "done"
	NodeError     NodeStatus = "error"
)

// IsFinished reports whether the node will not run again for this prompt.
func (s NodeStatus) IsFinished() bool {
	return s == NodeDone || s == NodeCached
}

// PromptStatus is the lifecycle state of a submitted prompt.
type PromptStatus string

const (
	PromptNew       PromptStatus = "New"
	PromptScheduled PromptStatus = "Scheduled"
	PromptRunning   PromptStatus = "Running"
	PromptSuccess   PromptStatus = "Success"
	PromptFailure   PromptStatus = "Failure"
)

// IsTerminal reports whether no further transition is allowed.
func (s PromptStatus) IsTerminal() bool {
	return s == PromptSuccess || s == PromptFailure
}
