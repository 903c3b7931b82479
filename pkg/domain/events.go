package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeStatus     EventType = "node_status"
	EventPromptFinished EventType = "prompt_finished"
	EventPreview        EventType = "preview"
	EventServerLog      EventType = "server_log"
	EventArtifact       EventType = "artifact"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NodeEvent reports a node status or progress change.
type NodeEvent struct {
	EventBase
	PromptID string     `json:"prompt_id"`
	NodeID   string     `json:"node_id"`
	NodeType string     `json:"node_type"`
	Status   NodeStatus `json:"status"`
	Progress float64    `json:"progress"`
}

// PromptEvent reports a terminal transition of a prompt.
type PromptEvent struct {
	EventBase
	PromptID string       `json:"prompt_id"`
	Status   PromptStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// PreviewEvent reports a preview frame received over the socket.
type PreviewEvent struct {
	EventBase
	PromptID string `json:"prompt_id,omitempty"`
	Mime     string `json:"mime"`
	Size     int    `json:"size"`
}

// LogEvent carries one server log line.
type LogEvent struct {
	EventBase
	Content string `json:"content"`
}

// ArtifactEvent reports the outcome of one artifact retrieval.
type ArtifactEvent struct {
	EventBase
	PromptID string        `json:"prompt_id"`
	NodeID   string        `json:"node_id"`
	Filename string        `json:"filename"`
	Path     string        `json:"path,omitempty"`
	Size     int           `json:"size,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for client observability.
// Every field is optional.
type LifecycleHooks struct {
	OnNodeStatus     func(context.Context, *NodeEvent)
	OnPromptFinished func(context.Context, *PromptEvent)
	OnPreview        func(context.Context, *PreviewEvent)
	OnServerLog      func(context.Context, *LogEvent)
	OnArtifact       func(context.Context, *ArtifactEvent)
}

// Merge returns hooks that call h first, then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeStatus:     chain(h.OnNodeStatus, other.OnNodeStatus),
		OnPromptFinished: chain(h.OnPromptFinished, other.OnPromptFinished),
		OnPreview:        chain(h.OnPreview, other.OnPreview),
		OnServerLog:      chain(h.OnServerLog, other.OnServerLog),
		OnArtifact:       chain(h.OnArtifact, other.OnArtifact),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
