package prompt

import (
	"fmt"
	"time"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/protocol"
)

// ExecutionFailure is the diagnostic payload of an execution_error message.
// A failed execution is an expected outcome, reported as data.
type ExecutionFailure struct {
	NodeID           string         `json:"node_id"`
	NodeType         string         `json:"node_type"`
	ExceptionType    string         `json:"exception_type"`
	ExceptionMessage string         `json:"exception_message"`
	Traceback        []string       `json:"traceback,omitempty"`
	Executed         []string       `json:"executed,omitempty"`
	CurrentInputs    map[string]any `json:"current_inputs,omitempty"`
	CurrentOutputs   map[string]any `json:"current_outputs,omitempty"`
}

func failureFrom(m *protocol.ExecutionError, nodeID string) *ExecutionFailure {
	return &ExecutionFailure{
		NodeID:           nodeID,
		NodeType:         m.NodeType,
		ExceptionType:    m.ExceptionType,
		ExceptionMessage: m.ExceptionMessage,
		Traceback:        m.Traceback,
		Executed:         m.Executed,
		CurrentInputs:    m.CurrentInputs,
		CurrentOutputs:   m.CurrentOutputs,
	}
}

func (f *ExecutionFailure) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %s: %s", f.NodeID, f.NodeType, f.ExceptionType, f.ExceptionMessage)
}

// Result is the resolved state of a prompt.
type Result struct {
	PromptID string              `json:"prompt_id"`
	Status   domain.PromptStatus `json:"status"`
	Failure  *ExecutionFailure   `json:"failure,omitempty"`

	// Artifacts saved before resolution.
	Artifacts []*artifact.Saved `json:"artifacts,omitempty"`
	// RetrievalErrors do not fail the prompt; they are reported next to it.
	RetrievalErrors []error `json:"-"`

	FinishedAt time.Time `json:"finished_at"`
}

// Err returns the execution failure, if any.
func (r *Result) Err() error {
	if r.Failure != nil {
		return r.Failure
	}
	return nil
}
