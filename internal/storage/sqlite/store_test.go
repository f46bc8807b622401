package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memoryforge.db")
	s, err := Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestProject(t *testing.T, s *Store) *memory.Project {
	t.Helper()
	p := &memory.Project{ID: uuid.NewString(), Name: "demo-" + uuid.NewString(), RootPath: "/tmp/demo", CreatedAt: time.Now()}
	require.NoError(t, s.CreateProject(t.Context(), p))
	return p
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)

	got, err := s.GetProject(t.Context(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)

	byName, err := s.GetProjectByName(t.Context(), p.Name)
	require.NoError(t, err)
	require.Equal(t, p.ID, byName.ID)

	dup := &memory.Project{ID: uuid.NewString(), Name: p.Name, RootPath: "/x", CreatedAt: time.Now()}
	err = s.CreateProject(t.Context(), dup)
	require.Error(t, err)
	require.Equal(t, memory.KindConflict, memory.KindOf(err))

	require.NoError(t, s.DeleteProject(t.Context(), p.ID))
	_, err = s.GetProject(t.Context(), p.ID)
	require.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestDeleteProjectRefusesWithMemories(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)
	_ = m

	err := s.DeleteProject(t.Context(), p.ID)
	require.Error(t, err)
	require.Equal(t, memory.KindConflict, memory.KindOf(err))
}

func newTestMemory(t *testing.T, s *Store, projectID string) *memory.Memory {
	t.Helper()
	m := &memory.Memory{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Content:         "We use FastAPI with Pydantic v2",
		Type:            memory.TypeStack,
		Source:          memory.SourceManual,
		CreatedAt:       time.Now(),
		ConfidenceScore: 1.0,
	}
	require.NoError(t, s.CreateMemory(t.Context(), m))
	return m
}

func TestMemoryCreateGetUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)

	got, err := s.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Content, got.Content)
	require.False(t, got.Confirmed)
	require.False(t, got.IsArchived)

	require.NoError(t, s.ConfirmMemory(t.Context(), m.ID, time.Now()))
	got, err = s.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.True(t, got.Confirmed)

	// idempotent confirm
	require.NoError(t, s.ConfirmMemory(t.Context(), m.ID, time.Now()))

	require.NoError(t, s.UpdateMemory(t.Context(), m.ID, "updated content", time.Now()))
	got, err = s.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.Equal(t, "updated content", got.Content)
	require.NotNil(t, got.UpdatedAt)

	require.NoError(t, s.DeleteMemory(t.Context(), m.ID))
	err = s.DeleteMemory(t.Context(), m.ID)
	require.Equal(t, memory.KindNotFound, memory.KindOf(err))
}

func TestListMemoriesExcludesArchivedByDefault(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m1 := newTestMemory(t, s, p.ID)
	m2 := newTestMemory(t, s, p.ID)

	require.NoError(t, s.ArchiveMemory(t.Context(), m1.ID, nil))

	list, err := s.ListMemories(t.Context(), p.ID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, m2.ID, list[0].ID)

	withArchived, err := s.ListMemories(t.Context(), p.ID, ListOptions{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, withArchived, 2)
}

func TestArchiveAndRestore(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)
	require.NoError(t, s.ConfirmMemory(t.Context(), m.ID, time.Now()))
	require.NoError(t, s.SaveEmbeddingReference(t.Context(), m.ID, "vec-1"))

	target := uuid.NewString()
	require.NoError(t, s.ArchiveMemory(t.Context(), m.ID, &target))

	got, err := s.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.True(t, got.IsArchived)
	require.Equal(t, target, *got.ConsolidatedInto)

	_, err = s.GetEmbeddingReference(t.Context(), m.ID)
	require.Equal(t, memory.KindNotFound, memory.KindOf(err))

	archived, err := s.GetArchivedMemories(t.Context(), target)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	require.NoError(t, s.RestoreArchivedMemory(t.Context(), m.ID))
	got, err = s.GetMemory(t.Context(), m.ID)
	require.NoError(t, err)
	require.False(t, got.IsArchived)
	require.Nil(t, got.ConsolidatedInto)
}

func TestVersionsMonotonic(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)

	n, err := s.GetNextVersionNumber(t.Context(), m.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.SaveMemoryVersion(t.Context(), &memory.Version{
		ID: uuid.NewString(), MemoryID: m.ID, Content: "v1", Version: n, CreatedAt: time.Now(),
	}))

	n2, err := s.GetNextVersionNumber(t.Context(), m.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n2)

	versions, err := s.GetMemoryVersions(t.Context(), m.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestStaleLifecycle(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)

	require.NoError(t, s.MarkStale(t.Context(), m.ID, "superseded"))
	stale, err := s.GetStaleMemories(t.Context(), p.ID)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, s.ClearStale(t.Context(), m.ID))
	stale, err = s.GetStaleMemories(t.Context(), p.ID)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestSchemaVersionDefaultsToOne(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetSchemaVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	require.NoError(t, s.SetSchemaVersion(t.Context(), 3, "test"))
	v, err = s.GetSchemaVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestConflictLog(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)
	m := newTestMemory(t, s, p.ID)

	require.NoError(t, s.LogConflict(t.Context(), &memory.ConflictLogEntry{
		ID: uuid.NewString(), MemoryID: m.ID, Resolution: memory.ResolutionRemoteWins, ResolvedAt: time.Now(),
	}))

	n, err := s.CountConflicts(t.Context(), m.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	history, err := s.GetConflictHistory(t.Context(), &m.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}
