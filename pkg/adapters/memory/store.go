package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/comfyflow/pkg/domain"
)

// Store implements ports.PromptStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.PromptRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.PromptRecord),
	}
}

// Save persists a copy of the record.
func (s *Store) Save(ctx context.Context, rec *domain.PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID] = clone(rec)
	return nil
}

// Load returns a copy so callers cannot mutate stored records.
func (s *Store) Load(ctx context.Context, promptID string) (*domain.PromptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[promptID]
	if !ok {
		return nil, domain.ErrPromptNotFound
	}
	return clone(rec), nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, promptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, promptID)
	return nil
}

// List returns stored prompt ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func clone(rec *domain.PromptRecord) *domain.PromptRecord {
	cp := *rec
	cp.Artifacts = slices.Clone(rec.Artifacts)
	return &cp
}
