package ports

import (
	"context"

	"github.com/aretw0/comfyflow/pkg/domain"
)

// PromptStore persists prompt snapshots.
// Records outlive the tracker that wrote them but carry no transactional guarantee.
type PromptStore interface {
	// Save upserts the record under record.ID.
	Save(ctx context.Context, record *domain.PromptRecord) error

	// Load retrieves a record.
	// Returns domain.ErrPromptNotFound if it does not exist.
	Load(ctx context.Context, promptID string) (*domain.PromptRecord, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, promptID string) error

	// List returns the ids of stored records.
	List(ctx context.Context) ([]string, error)
}
