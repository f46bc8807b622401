package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		want      string
	}{
		{"short id", "abc", "mf_abc"},
		{"uuid-length id truncates to 8 chars", "3f9a1b2c-d4e5-4f60-8a7b-9c0d1e2f3a4b", "mf_3f9a1b2c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionName(tt.projectID))
		})
	}
}

// newTestQdrantStore dials a local Qdrant instance for integration testing.
// It skips the test outright when no instance is reachable, matching the
// teacher's "Qdrant not available" skip pattern for backend-dependent tests.
func newTestQdrantStore(t *testing.T) *QdrantStore {
	t.Helper()
	store, err := NewQdrantStore(QdrantConfig{Host: "localhost", Port: 6334})
	if err != nil {
		t.Skipf("qdrant not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if _, err := store.collectionExists(ctx, "mf_probe"); err != nil {
		t.Skipf("qdrant not available: %v", err)
	}
	return store
}

func TestQdrantStoreUpsertSearchDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	store := newTestQdrantStore(t)
	t.Cleanup(func() { _ = store.Close() })

	projectID := "test-project-01"
	ctx := t.Context()

	require.NoError(t, store.Open(ctx, projectID, 4))
	t.Cleanup(func() { _ = store.Rebuild(ctx, projectID, 4) })

	vec := []float32{1, 0, 0, 0}
	require.NoError(t, store.Upsert(ctx, projectID, "11111111-1111-1111-1111-111111111111", vec, Payload{
		Type:      "note",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		ProjectID: projectID,
	}))

	hits, err := store.Search(ctx, projectID, vec, 5, "", 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", hits[0].MemoryID)
	assert.Equal(t, "note", hits[0].Payload.Type)

	count, err := store.Count(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, projectID, "11111111-1111-1111-1111-111111111111"))
	count, err = store.Count(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQdrantStoreOpenRecreatesOnDimensionMismatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	store := newTestQdrantStore(t)
	t.Cleanup(func() { _ = store.Close() })

	projectID := "test-project-02"
	ctx := t.Context()

	require.NoError(t, store.Open(ctx, projectID, 4))
	require.NoError(t, store.Upsert(ctx, projectID, "22222222-2222-2222-2222-222222222222", []float32{1, 0, 0, 0}, Payload{ProjectID: projectID}))

	require.NoError(t, store.Open(ctx, projectID, 8))
	t.Cleanup(func() { _ = store.Rebuild(ctx, projectID, 8) })

	count, err := store.Count(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "dimension change should have dropped and recreated the collection")
}
