package domain

import "time"

// PromptRecord is the persisted snapshot of a prompt.
// It only carries data; the live tracker lives in package prompt.
type PromptRecord struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id"`
	Status     PromptStatus `json:"status"`

	// Error holds the exception message of a failed prompt.
	Error     string `json:"error,omitempty"`
	ErrorNode string `json:"error_node,omitempty"`

	// Artifacts lists the local paths written for this prompt.
	Artifacts []string `json:"artifacts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
