package consolidation

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
	"github.com/fyrsmithlabs/memoryforge/internal/vectorindex"
)

// fakeEmbedder maps text to a unit-normalized character-frequency vector,
// so textually similar memories produce cosine-similar embeddings without
// a real model.
type fakeEmbedder struct{ dim int }

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{dim: 32} }

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dim)
	for _, r := range text {
		vec[int(r)%f.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (f *fakeEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Generate(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error { return nil }

// fakeIndex is an in-memory vectorindex.Store backed by brute-force cosine
// similarity, enough to exercise FindSimilarPairs/Consolidate/Rollback.
type fakeIndex struct {
	vectors  map[string][]float32
	payloads map[string]vectorindex.Payload
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{vectors: make(map[string][]float32), payloads: make(map[string]vectorindex.Payload)}
}

func (f *fakeIndex) Open(ctx context.Context, projectID string, dimension int) error { return nil }

func (f *fakeIndex) Upsert(ctx context.Context, projectID, memoryID string, vector []float32, payload vectorindex.Payload) error {
	f.vectors[memoryID] = vector
	f.payloads[memoryID] = payload
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, projectID, memoryID string) error {
	delete(f.vectors, memoryID)
	delete(f.payloads, memoryID)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, projectID string, queryVector []float32, k int, typeFilter string, minScore float32) ([]vectorindex.Hit, error) {
	var hits []vectorindex.Hit
	for id, vec := range f.vectors {
		if typeFilter != "" && f.payloads[id].Type != typeFilter {
			continue
		}
		score := cosine(queryVector, vec)
		if score < minScore {
			continue
		}
		hits = append(hits, vectorindex.Hit{MemoryID: id, Score: score, Payload: f.payloads[id]})
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeIndex) Count(ctx context.Context, projectID string) (int, error) { return len(f.vectors), nil }

func (f *fakeIndex) Rebuild(ctx context.Context, projectID string, dimension int) error {
	f.vectors = make(map[string][]float32)
	f.payloads = make(map[string]vectorindex.Payload)
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func newTestConsolidator(t *testing.T) (*Consolidator, *sqlite.Store, *fakeIndex) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memoryforge.db")
	store, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index := newFakeIndex()
	embedder := newFakeEmbedder()
	return New(store, index, embedder, 0.90, nil), store, index
}

func newTestProject(t *testing.T, store *sqlite.Store) string {
	t.Helper()
	p := &memory.Project{ID: "proj-1", Name: "demo", RootPath: "/tmp/demo", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateProject(t.Context(), p))
	return p.ID
}

func confirmedMemory(t *testing.T, store *sqlite.Store, index *fakeIndex, embedder *fakeEmbedder, projectID, content string, typ memory.Type) *memory.Memory {
	t.Helper()
	m := &memory.Memory{
		ID: uuidFor(content), ProjectID: projectID, Content: content, Type: typ,
		Source: memory.SourceManual, CreatedAt: time.Now().UTC(), Confirmed: true, ConfidenceScore: 1.0,
	}
	require.NoError(t, store.CreateMemory(t.Context(), m))
	vec, err := embedder.Generate(t.Context(), content)
	require.NoError(t, err)
	require.NoError(t, index.Upsert(t.Context(), projectID, m.ID, vec, vectorindex.Payload{Type: string(typ), ProjectID: projectID}))
	require.NoError(t, store.SaveEmbeddingReference(t.Context(), m.ID, m.ID))
	return m
}

var idCounter int

func uuidFor(seed string) string {
	idCounter++
	n := len(seed)
	if n > 8 {
		n = 8
	}
	return seed[:n] + "-" + itoa(idCounter)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func TestThresholdIsClamped(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memoryforge.db")
	store, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := New(store, newFakeIndex(), newFakeEmbedder(), 0.5, nil)
	require.Equal(t, 0.7, c.Threshold())

	c2 := New(store, newFakeIndex(), newFakeEmbedder(), 0.999, nil)
	require.Equal(t, 0.99, c2.Threshold())
}

func TestConsolidateAndRollback(t *testing.T) {
	c, store, index := newTestConsolidator(t)
	projectID := newTestProject(t, store)
	embedder := newFakeEmbedder()

	m1 := confirmedMemory(t, store, index, embedder, projectID, "We use PostgreSQL", memory.TypeStack)
	m2 := confirmedMemory(t, store, index, embedder, projectID, "We chose Postgres as the DB", memory.TypeStack)

	result, err := c.Consolidate(t.Context(), projectID, []string{m1.ID, m2.ID}, "We use PostgreSQL as the primary database.", nil)
	require.NoError(t, err)
	require.True(t, result.NewMemory.Confirmed)
	require.Equal(t, "We use PostgreSQL as the primary database.", result.NewMemory.Content)
	require.Len(t, result.ArchivedMemories, 2)
	require.Contains(t, index.vectors, result.NewMemory.ID)
	require.NotContains(t, index.vectors, m1.ID)
	require.NotContains(t, index.vectors, m2.ID)

	got1, err := store.GetMemory(t.Context(), m1.ID)
	require.NoError(t, err)
	require.True(t, got1.IsArchived)
	require.Equal(t, result.NewMemory.ID, *got1.ConsolidatedInto)

	restored, err := c.RollbackConsolidation(t.Context(), projectID, result.NewMemory.ID)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	for _, r := range restored {
		require.False(t, r.IsArchived)
		require.Nil(t, r.ConsolidatedInto)
		require.Contains(t, index.vectors, r.ID)
	}

	_, err = store.GetMemory(t.Context(), result.NewMemory.ID)
	require.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestConsolidateRejectsArchivedSource(t *testing.T) {
	c, store, index := newTestConsolidator(t)
	projectID := newTestProject(t, store)
	embedder := newFakeEmbedder()

	m1 := confirmedMemory(t, store, index, embedder, projectID, "one", memory.TypeNote)
	m2 := confirmedMemory(t, store, index, embedder, projectID, "two", memory.TypeNote)
	require.NoError(t, store.ArchiveMemory(t.Context(), m1.ID, nil))

	_, err := c.Consolidate(t.Context(), projectID, []string{m1.ID, m2.ID}, "merged", nil)
	require.Equal(t, memory.KindConflict, memory.KindOf(err))
}

func TestFindSimilarPairsDetectsHighCosineSimilarity(t *testing.T) {
	c, store, index := newTestConsolidator(t)
	projectID := newTestProject(t, store)
	embedder := newFakeEmbedder()

	m1 := confirmedMemory(t, store, index, embedder, projectID, "We use PostgreSQL as our database", memory.TypeStack)
	m2 := confirmedMemory(t, store, index, embedder, projectID, "We use PostgreSQL as our main database", memory.TypeStack)
	confirmedMemory(t, store, index, embedder, projectID, "Completely unrelated note about the weather", memory.TypeNote)

	pairs, err := c.FindSimilarPairs(t.Context(), projectID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	found := false
	for _, p := range pairs {
		if (p.A.ID == m1.ID && p.B.ID == m2.ID) || (p.A.ID == m2.ID && p.B.ID == m1.ID) {
			found = true
		}
	}
	require.True(t, found)
}

func TestAutoArchiveStaleDryRunDoesNotMutate(t *testing.T) {
	c, store, index := newTestConsolidator(t)
	projectID := newTestProject(t, store)
	embedder := newFakeEmbedder()

	m := confirmedMemory(t, store, index, embedder, projectID, "old note", memory.TypeNote)
	require.NoError(t, store.MarkStale(t.Context(), m.ID, "unused"))
	past := time.Now().UTC().AddDate(0, 0, -100)
	require.NoError(t, store.UpdateLastAccessed(t.Context(), m.ID, past))

	candidates, err := c.AutoArchiveStale(t.Context(), projectID, 90, true)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	got, err := store.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.False(t, got.IsArchived)

	candidates, err = c.AutoArchiveStale(t.Context(), projectID, 90, false)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	got, err = store.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.True(t, got.IsArchived)
	require.Nil(t, got.ConsolidatedInto)
}
