// Package manager implements the Memory Manager (M, §4.5): the
// lifecycle coordinator between the Relational Store, the Vector Index,
// and the Embedding Provider.
package manager

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryforge/internal/embedding"
	"github.com/fyrsmithlabs/memoryforge/internal/gitlink"
	"github.com/fyrsmithlabs/memoryforge/internal/logging"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
	"github.com/fyrsmithlabs/memoryforge/internal/validation"
	"github.com/fyrsmithlabs/memoryforge/internal/vectorindex"
)

// Manager coordinates R, V, and E for the memory lifecycle operations of
// §4.5. It holds no project state of its own; every operation takes the
// project id it applies to, so the Project Router (PR) is the only
// component that tracks "current project".
type Manager struct {
	store    *sqlite.Store
	index    vectorindex.Store
	embedder embedding.Provider
	log      *logging.Logger
}

// New constructs a Manager over the given stores and embedding provider.
func New(store *sqlite.Store, index vectorindex.Store, embedder embedding.Provider, log *logging.Logger) *Manager {
	return &Manager{store: store, index: index, embedder: embedder, log: log}
}

// CreateMemory sanitizes and validates content, then stores it unconfirmed
// unless autoConfirm is set (§4.5).
func (m *Manager) CreateMemory(ctx context.Context, projectID, content string, typ memory.Type, source memory.Source, autoConfirm bool, metadata map[string]any) (*memory.Memory, error) {
	content = validation.Sanitize(content)
	if err := validation.ValidateMemoryCreate(content, typ, source); err != nil {
		return nil, err
	}

	mem := &memory.Memory{
		ID:              newID(),
		ProjectID:       projectID,
		Content:         content,
		Type:            typ,
		Source:          source,
		CreatedAt:       nowFunc(),
		Metadata:        metadata,
		ConfidenceScore: 1.0,
	}
	if err := m.store.CreateMemory(ctx, mem); err != nil {
		return nil, err
	}
	m.logInfo(ctx, "created memory", zap.String("memory_id", mem.ID), zap.Bool("confirmed", false))

	if autoConfirm {
		if _, err := m.ConfirmMemory(ctx, mem.ID); err != nil {
			return nil, err
		}
		mem.Confirmed = true
	}
	return mem, nil
}

// ConfirmMemory makes a memory eligible for retrieval: embed, index, save
// the embedding reference, then flip confirmed. Idempotent: confirming an
// already-confirmed memory is a no-op success. Any failure before the final
// R.ConfirmMemory call leaves the memory unconfirmed (§7) — the Manager
// does not partially apply the confirm.
func (m *Manager) ConfirmMemory(ctx context.Context, id string) (bool, error) {
	mem, err := m.store.GetMemory(ctx, id)
	if err != nil {
		return false, err
	}
	if mem.Confirmed {
		return true, nil
	}

	if err := m.index.Open(ctx, mem.ProjectID, m.embedder.Dimension()); err != nil {
		return false, err
	}

	vec, err := m.embedder.Generate(ctx, mem.Content)
	if err != nil {
		return false, err
	}

	payload := vectorindex.Payload{
		Type:      string(mem.Type),
		CreatedAt: mem.CreatedAt.Format(timeLayout),
		ProjectID: mem.ProjectID,
	}
	if err := m.index.Upsert(ctx, mem.ProjectID, mem.ID, vec, payload); err != nil {
		return false, err
	}

	if err := m.store.SaveEmbeddingReference(ctx, mem.ID, mem.ID); err != nil {
		return false, err
	}

	if err := m.store.ConfirmMemory(ctx, mem.ID, nowFunc()); err != nil {
		return false, err
	}
	m.logInfo(ctx, "confirmed and indexed memory", zap.String("memory_id", mem.ID))
	return true, nil
}

// GetMemory is a thin pass-through to R.
func (m *Manager) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	return m.store.GetMemory(ctx, id)
}

// ListMemories is a thin pass-through to R.
func (m *Manager) ListMemories(ctx context.Context, projectID string, opts sqlite.ListOptions) ([]*memory.Memory, error) {
	return m.store.ListMemories(ctx, projectID, opts)
}

// GetMemoryCount is a thin pass-through to R.
func (m *Manager) GetMemoryCount(ctx context.Context, projectID string, confirmedOnly bool) (int, error) {
	return m.store.GetMemoryCount(ctx, projectID, confirmedOnly)
}

// UpdateMemory sanitizes and validates new content, writes it to R, and —
// if the memory is already confirmed — re-embeds and re-upserts the same
// vector id. An embedding failure here is logged but does not fail the
// call: the content update has already been committed (§4.5).
func (m *Manager) UpdateMemory(ctx context.Context, id, content string) error {
	content = validation.Sanitize(content)
	if err := validation.ValidateContent(content); err != nil {
		return err
	}

	mem, err := m.store.GetMemory(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.UpdateMemory(ctx, id, content, nowFunc()); err != nil {
		return err
	}

	if mem.Confirmed {
		vec, err := m.embedder.Generate(ctx, content)
		if err != nil {
			m.logWarn(ctx, "failed to update embedding after content change", err, zap.String("memory_id", id))
			return nil
		}
		payload := vectorindex.Payload{
			Type:      string(mem.Type),
			CreatedAt: mem.CreatedAt.Format(timeLayout),
			ProjectID: mem.ProjectID,
		}
		if err := m.index.Upsert(ctx, mem.ProjectID, id, vec, payload); err != nil {
			m.logWarn(ctx, "failed to update embedding after content change", err, zap.String("memory_id", id))
			return nil
		}
	}
	return nil
}

// DeleteMemory removes a memory's vector (if confirmed) then its row,
// which cascades to versions/links/relations/embedding reference. Deleting
// a missing id returns memory's NotFound kind, matching the idempotence
// law tested at §8.
func (m *Manager) DeleteMemory(ctx context.Context, id string) error {
	mem, err := m.store.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if mem.Confirmed {
		if err := m.index.Delete(ctx, mem.ProjectID, id); err != nil {
			return err
		}
	}
	return m.store.DeleteMemory(ctx, id)
}

// LinkMemoryToCommit records a best-effort Memory Link (§3, §4.1) between a
// memory and a commit SHA. When repoPath names a git repository, the commit
// is verified to exist before the link is persisted; otherwise — no
// repository, or the SHA can't be resolved — the link is still recorded,
// since Memory Links are explicitly non-authoritative and verification is a
// courtesy, not a requirement.
func (m *Manager) LinkMemoryToCommit(ctx context.Context, memoryID, commitSHA, repoPath string, linkType memory.LinkType) (*memory.Link, error) {
	if _, err := m.store.GetMemory(ctx, memoryID); err != nil {
		return nil, err
	}

	if repoPath != "" {
		resolver, err := gitlink.Open(repoPath)
		if err == nil && resolver != nil && !resolver.CommitExists(commitSHA) {
			m.logWarn(ctx, "commit not found in repository; linking anyway", nil,
				zap.String("memory_id", memoryID), zap.String("commit_sha", commitSHA))
		}
	}

	link := &memory.Link{
		ID:        newID(),
		MemoryID:  memoryID,
		CommitSHA: commitSHA,
		LinkType:  linkType,
		CreatedAt: nowFunc(),
	}
	if err := m.store.CreateMemoryLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (m *Manager) logInfo(ctx context.Context, msg string, fields ...zap.Field) {
	if m.log == nil {
		return
	}
	m.log.Info(ctx, msg, fields...)
}

func (m *Manager) logWarn(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if m.log == nil {
		return
	}
	m.log.Warn(ctx, msg, append(fields, zap.Error(err))...)
}
