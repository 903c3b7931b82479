package protocol

import "encoding/json"

// MessageType is the "type" discriminator of a text frame.
type MessageType string

const (
	TypeStatus           MessageType = "status"
	TypeExecutionStart   MessageType = "execution_start"
	TypeExecutionCached  MessageType = "execution_cached"
	TypeExecuting        MessageType = "executing"
	TypeProgress         MessageType = "progress"
	TypeExecuted         MessageType = "executed"
	TypeExecutionSuccess MessageType = "execution_success"
	TypeExecutionError   MessageType = "execution_error"
	TypeManagerFeedback  MessageType = "manager-terminal-feedback"

	// TypeCrystoolsMonitor is a resource monitor broadcast by a popular
	// extension. It carries nothing for the client and is ignored by default.
	TypeCrystoolsMonitor MessageType = "crystools.monitor"
)

// Message is any decoded text frame.
type Message interface {
	Type() MessageType
}

// PromptMessage is a message correlated with a prompt.
// PromptID may be empty for progress frames sent by older servers.
type PromptMessage interface {
	Message
	PromptID() string
}

// Status reports the session id and the queue depth.
type Status struct {
	SID    string      `json:"sid,omitempty"`
	Status QueueStatus `json:"status"`
}

type QueueStatus struct {
	ExecInfo ExecInfo `json:"exec_info"`
	SID      string   `json:"sid,omitempty"`
}

type ExecInfo struct {
	QueueRemaining int `json:"queue_remaining"`
}

func (m *Status) Type() MessageType { return TypeStatus }

// SessionID returns the sid, wherever the server put it.
func (m *Status) SessionID() string {
	if m.SID != "" {
		return m.SID
	}
	return m.Status.SID
}

func (m *Status) QueueRemaining() int { return m.Status.ExecInfo.QueueRemaining }

type ExecutionStart struct {
	Prompt string `json:"prompt_id"`
}

func (m *ExecutionStart) Type() MessageType { return TypeExecutionStart }
func (m *ExecutionStart) PromptID() string  { return m.Prompt }

type ExecutionCached struct {
	Nodes  []string `json:"nodes"`
	Prompt string   `json:"prompt_id"`
}

func (m *ExecutionCached) Type() MessageType { return TypeExecutionCached }
func (m *ExecutionCached) PromptID() string  { return m.Prompt }

// Executing announces the node being run. An empty Node means the prompt is idle.
type Executing struct {
	Node   string `json:"node"`
	Prompt string `json:"prompt_id"`
}

func (m *Executing) Type() MessageType { return TypeExecuting }
func (m *Executing) PromptID() string  { return m.Prompt }

type Progress struct {
	Value  float64 `json:"value"`
	Max    float64 `json:"max"`
	Prompt string  `json:"prompt_id,omitempty"`
	Node   string  `json:"node,omitempty"`
}

func (m *Progress) Type() MessageType { return TypeProgress }
func (m *Progress) PromptID() string  { return m.Prompt }

// ImageRef addresses an artifact on the server, as accepted by GET /view.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type NodeOutput struct {
	Images []ImageRef `json:"images,omitempty"`
	Gifs   []ImageRef `json:"gifs,omitempty"`
}

// Refs returns every retrievable artifact of the output.
func (o NodeOutput) Refs() []ImageRef {
	out := make([]ImageRef, 0, len(o.Images)+len(o.Gifs))
	out = append(out, o.Images...)
	return append(out, o.Gifs...)
}

type Executed struct {
	Node   string     `json:"node"`
	Output NodeOutput `json:"output"`
	Prompt string     `json:"prompt_id"`
}

func (m *Executed) Type() MessageType { return TypeExecuted }
func (m *Executed) PromptID() string  { return m.Prompt }

type ExecutionSuccess struct {
	Prompt    string `json:"prompt_id"`
	Timestamp int64  `json:"timestamp"`
}

func (m *ExecutionSuccess) Type() MessageType { return TypeExecutionSuccess }
func (m *ExecutionSuccess) PromptID() string  { return m.Prompt }

type ExecutionError struct {
	Prompt           string         `json:"prompt_id"`
	NodeID           string         `json:"node_id"`
	NodeType         string         `json:"node_type"`
	Executed         []string       `json:"executed"`
	ExceptionMessage string         `json:"exception_message"`
	ExceptionType    string         `json:"exception_type"`
	Traceback        []string       `json:"traceback"`
	CurrentInputs    map[string]any `json:"current_inputs"`
	CurrentOutputs   map[string]any `json:"current_outputs"`
}

func (m *ExecutionError) Type() MessageType { return TypeExecutionError }
func (m *ExecutionError) PromptID() string  { return m.Prompt }

// ManagerFeedback carries one line of server terminal output.
type ManagerFeedback struct {
	Data string `json:"data"`
}

func (m *ManagerFeedback) Type() MessageType { return TypeManagerFeedback }

// Ignored is returned for message types the decoder was told to skip.
type Ignored struct {
	Kind MessageType
	Raw  json.RawMessage
}

func (m *Ignored) Type() MessageType { return m.Kind }
