// Package conflict implements the Conflict Resolver (CR, §4.10): detection
// and resolution of local/remote divergence surfaced during sync, with
// full conflict history logging to R.
package conflict

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
)

// Conflict represents a detected divergence between a local memory and an
// incoming remote version (§4.10).
type Conflict struct {
	MemoryID        string
	LocalMemory     *memory.Memory // nil if no local copy exists
	RemoteContent   string
	RemoteUpdatedAt time.Time
}

// Resolver implements §4.10 over R.
type Resolver struct {
	store *sqlite.Store
}

// New constructs a conflict Resolver.
func New(store *sqlite.Store) *Resolver {
	return &Resolver{store: store}
}

// DetectConflict reports whether an incoming remote version conflicts with
// the local memory (§4.10): no local copy or identical content is never a
// conflict; otherwise a conflict exists iff the remote timestamp differs
// from the local's effective updated_at.
func DetectConflict(local *memory.Memory, remoteContent string, remoteUpdatedAt time.Time) bool {
	if local == nil {
		return false
	}
	if local.Content == remoteContent {
		return false
	}
	return !remoteUpdatedAt.Equal(local.EffectiveUpdatedAt())
}

// ResolveLastWriteWins picks whichever side has the later timestamp. If
// remote wins, the local memory's content is overwritten (§4.10).
func (r *Resolver) ResolveLastWriteWins(ctx context.Context, c Conflict) (*memory.ConflictLogEntry, error) {
	if c.LocalMemory == nil {
		return r.applyRemote(ctx, c, memory.ResolutionRemoteWins)
	}

	localTime := c.LocalMemory.EffectiveUpdatedAt()
	if c.RemoteUpdatedAt.After(localTime) {
		return r.applyRemote(ctx, c, memory.ResolutionRemoteWins)
	}
	return r.applyLocal(ctx, c, memory.ResolutionLocalWins)
}

// ResolveManual applies caller-supplied merged content and logs the
// conflict with resolution=manual (§4.10).
func (r *Resolver) ResolveManual(ctx context.Context, c Conflict, mergedContent, resolvedBy string) (*memory.ConflictLogEntry, error) {
	if err := r.store.UpdateMemory(ctx, c.MemoryID, mergedContent, time.Now().UTC()); err != nil {
		return nil, err
	}
	return r.logConflict(ctx, c, memory.ResolutionManual, resolvedBy)
}

// ResolveKeepLocal discards the remote version without timestamp
// comparison (§4.10).
func (r *Resolver) ResolveKeepLocal(ctx context.Context, c Conflict) (*memory.ConflictLogEntry, error) {
	return r.applyLocal(ctx, c, memory.ResolutionLocalWins)
}

// ResolveKeepRemote discards the local version without timestamp
// comparison (§4.10).
func (r *Resolver) ResolveKeepRemote(ctx context.Context, c Conflict) (*memory.ConflictLogEntry, error) {
	return r.applyRemote(ctx, c, memory.ResolutionRemoteWins)
}

// applyLocal logs the conflict without mutating the memory — local
// content is already the current state.
func (r *Resolver) applyLocal(ctx context.Context, c Conflict, resolution memory.ConflictResolution) (*memory.ConflictLogEntry, error) {
	return r.logConflict(ctx, c, resolution, "system")
}

// applyRemote overwrites local content with the remote version, then logs
// the conflict.
func (r *Resolver) applyRemote(ctx context.Context, c Conflict, resolution memory.ConflictResolution) (*memory.ConflictLogEntry, error) {
	if err := r.store.UpdateMemory(ctx, c.MemoryID, c.RemoteContent, time.Now().UTC()); err != nil {
		return nil, err
	}
	return r.logConflict(ctx, c, resolution, "system")
}

func (r *Resolver) logConflict(ctx context.Context, c Conflict, resolution memory.ConflictResolution, resolvedBy string) (*memory.ConflictLogEntry, error) {
	var localContent *string
	if c.LocalMemory != nil {
		localContent = &c.LocalMemory.Content
	}
	remoteContent := c.RemoteContent

	entry := &memory.ConflictLogEntry{
		ID:            uuid.NewString(),
		MemoryID:      c.MemoryID,
		LocalContent:  localContent,
		RemoteContent: &remoteContent,
		Resolution:    resolution,
		ResolvedAt:    time.Now().UTC(),
		ResolvedBy:    &resolvedBy,
	}
	if err := r.store.LogConflict(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListConflicts returns conflict history, optionally filtered to one
// memory (§4.10).
func (r *Resolver) ListConflicts(ctx context.Context, memoryID *string) ([]*memory.ConflictLogEntry, error) {
	return r.store.GetConflictHistory(ctx, memoryID)
}

// GetConflictCount returns the number of logged conflicts for a memory.
func (r *Resolver) GetConflictCount(ctx context.Context, memoryID string) (int, error) {
	return r.store.CountConflicts(ctx, memoryID)
}
