package ports_test

import (
	"context"
	"slices"
	"testing"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/ports"
)

// MockStore is a map-backed PromptStore used to check the contract itself.
type MockStore struct {
	data map[string]domain.PromptRecord
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]domain.PromptRecord)}
}

func (m *MockStore) Save(ctx context.Context, rec *domain.PromptRecord) error {
	cp := *rec
	cp.Artifacts = slices.Clone(rec.Artifacts)
	m.data[rec.ID] = cp
	return nil
}

func (m *MockStore) Load(ctx context.Context, id string) (*domain.PromptRecord, error) {
	rec, ok := m.data[id]
	if !ok {
		return nil, domain.ErrPromptNotFound
	}
	rec.Artifacts = slices.Clone(rec.Artifacts)
	return &rec, nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	delete(m.data, id)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestMockStore_Contract(t *testing.T) {
	ports.RunPromptStoreContract(t, NewMockStore())
}
