package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPromptStoreContract runs a suite of tests to verify that a PromptStore
// implementation adheres to the interface contract.
func RunPromptStoreContract(t *testing.T, store PromptStore) {
	ctx := context.Background()
	promptID := "contract-prompt-" + time.Now().Format("20060102150405.000000")

	newRecord := func(id string, status domain.PromptStatus) *domain.PromptRecord {
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &domain.PromptRecord{
			ID:         id,
			WorkflowID: "wf-1",
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a record
		rec := newRecord(promptID, domain.PromptFailure)
		rec.Error = "CUDA out of memory"
		rec.ErrorNode = "3"
		rec.Artifacts = []string{"out/a.png", "out/b.png"}

		// 2. Save
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, promptID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.ID, loaded.ID)
		assert.Equal(t, rec.WorkflowID, loaded.WorkflowID)
		assert.Equal(t, domain.PromptFailure, loaded.Status)
		assert.Equal(t, "CUDA out of memory", loaded.Error)
		assert.Equal(t, "3", loaded.ErrorNode)
		assert.Equal(t, rec.Artifacts, loaded.Artifacts)
		assert.WithinDuration(t, rec.CreatedAt, loaded.CreatedAt, time.Millisecond)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		id := promptID + "-upsert"
		defer func() { _ = store.Delete(ctx, id) }()

		require.NoError(t, store.Save(ctx, newRecord(id, domain.PromptScheduled)))
		require.NoError(t, store.Save(ctx, newRecord(id, domain.PromptSuccess)))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PromptSuccess, loaded.Status)
	})

	t.Run("Loaded record is a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, promptID)
		require.NoError(t, err)
		loaded.Artifacts = append(loaded.Artifacts, "mutated")
		loaded.Status = domain.PromptRunning

		again, err := store.Load(ctx, promptID)
		require.NoError(t, err)
		assert.NotContains(t, again.Artifacts, "mutated")
		assert.Equal(t, domain.PromptFailure, again.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+promptID)
		assert.ErrorIs(t, err, domain.ErrPromptNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newRecord(promptID, domain.PromptSuccess)))

		require.NoError(t, store.Delete(ctx, promptID), "Delete should not return error")

		_, err := store.Load(ctx, promptID)
		assert.ErrorIs(t, err, domain.ErrPromptNotFound, "Load after Delete should return ErrPromptNotFound")

		assert.NoError(t, store.Delete(ctx, promptID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := promptID + "-1"
		id2 := promptID + "-2"
		_ = store.Save(ctx, newRecord(id1, domain.PromptScheduled))
		_ = store.Save(ctx, newRecord(id2, domain.PromptRunning))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
