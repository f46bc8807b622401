// Package consolidation implements the Consolidator (Con, §4.7):
// similarity-pair discovery, archival-based merge, rollback, and
// staleness accounting over the Relational Store and Vector Index.
package consolidation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryforge/internal/embedding"
	"github.com/fyrsmithlabs/memoryforge/internal/logging"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
	"github.com/fyrsmithlabs/memoryforge/internal/vectorindex"
)

const (
	minThreshold = 0.7
	maxThreshold = 0.99

	findPairsScanCap  = 500
	similarSearchK    = 10
	unusedMemoriesCap = 1000
)

// Pair is a candidate similar-memory pair found by FindSimilarPairs.
type Pair struct {
	A, B  *memory.Memory
	Score float64
}

// Suggestion is one greedily-matched consolidation proposal (§4.7).
type Suggestion struct {
	Sources          []*memory.Memory
	Score            float64
	SuggestedContent string
	Type             memory.Type
}

// Result is the outcome of Consolidate.
type Result struct {
	NewMemory        *memory.Memory
	ArchivedMemories []*memory.Memory
	VersionIDs       []string
}

// Consolidator implements §4.7 over R and V.
type Consolidator struct {
	store     *sqlite.Store
	index     vectorindex.Store
	embedder  embedding.Provider
	threshold float64
	log       *logging.Logger
}

// New constructs a Consolidator. threshold is clamped to [0.7, 0.99]
// (§9 Open Question 1); an out-of-range configured value is logged as a
// warning naming both the configured and clamped value.
func New(store *sqlite.Store, index vectorindex.Store, embedder embedding.Provider, threshold float64, log *logging.Logger) *Consolidator {
	clamped := threshold
	if clamped < minThreshold {
		clamped = minThreshold
	}
	if clamped > maxThreshold {
		clamped = maxThreshold
	}
	c := &Consolidator{store: store, index: index, embedder: embedder, threshold: clamped, log: log}
	if clamped != threshold && log != nil {
		log.Warn(context.Background(), "consolidation threshold out of range, clamped",
			zap.Float64("configured", threshold), zap.Float64("clamped", clamped))
	}
	return c
}

// Threshold returns the clamped similarity threshold actually in effect.
func (c *Consolidator) Threshold() float64 { return c.threshold }

// FindSimilarPairs scans up to 500 confirmed, non-archived memories of
// project, embeds each, and searches V for neighbors scoring at or above
// threshold, de-duplicating unordered pairs and skipping archived
// endpoints (§4.7).
func (c *Consolidator) FindSimilarPairs(ctx context.Context, projectID string, limit int) ([]Pair, error) {
	memories, err := c.store.ListMemories(ctx, projectID, sqlite.ListOptions{
		ConfirmedOnly: true, Limit: findPairsScanCap,
	})
	if err != nil {
		return nil, err
	}
	if len(memories) < 2 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var pairs []Pair

	for _, m := range memories {
		vec, err := c.embedder.Generate(ctx, m.Content)
		if err != nil {
			c.logWarn(ctx, "failed to embed memory for similarity search", err, zap.String("memory_id", m.ID))
			continue
		}

		hits, err := c.index.Search(ctx, projectID, vec, similarSearchK, "", float32(c.threshold))
		if err != nil {
			c.logWarn(ctx, "vector search failed during similarity scan", err, zap.String("memory_id", m.ID))
			continue
		}

		for _, h := range hits {
			if h.MemoryID == m.ID {
				continue
			}
			key := canonicalPairKey(m.ID, h.MemoryID)
			if seen[key] {
				continue
			}
			seen[key] = true

			other, err := c.store.GetMemory(ctx, h.MemoryID)
			if err != nil || other.IsArchived {
				continue
			}

			pairs = append(pairs, Pair{A: m, B: other, Score: float64(h.Score)})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

// canonicalPairKey orders two ids so (a,b) and (b,a) de-duplicate.
func canonicalPairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// SuggestConsolidations greedily matches similarity pairs highest-score
// first, skipping any pair touching an already-used memory (§4.7).
func (c *Consolidator) SuggestConsolidations(ctx context.Context, projectID string, n int) ([]Suggestion, error) {
	pairs, err := c.FindSimilarPairs(ctx, projectID, n*2)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	var suggestions []Suggestion

	for _, p := range pairs {
		if used[p.A.ID] || used[p.B.ID] {
			continue
		}
		used[p.A.ID] = true
		used[p.B.ID] = true

		older, newer := p.A, p.B
		if newer.CreatedAt.Before(older.CreatedAt) {
			older, newer = newer, older
		}

		suggestions = append(suggestions, Suggestion{
			Sources:          []*memory.Memory{older, newer},
			Score:            p.Score,
			SuggestedContent: suggestedContent(older, newer),
			Type:             newer.Type,
		})
		if len(suggestions) >= n {
			break
		}
	}
	return suggestions, nil
}

// suggestedContent joins the older memory's content with the newer's, only
// when they're textually distinct after trimming (§4.7).
func suggestedContent(older, newer *memory.Memory) string {
	if strings.TrimSpace(older.Content) == strings.TrimSpace(newer.Content) {
		return older.Content
	}
	return older.Content + "\n\n" + newer.Content
}

// Consolidate merges 2+ sources into a new confirmed memory and archives
// the sources, snapshotting each source's pre-merge content as a Version
// first so RollbackConsolidation can undo it. A failure after the new
// memory is created triggers a best-effort rollback of the partial state
// before the error surfaces (§4.7).
func (c *Consolidator) Consolidate(ctx context.Context, projectID string, sourceIDs []string, mergedContent string, typ *memory.Type) (*Result, error) {
	if len(sourceIDs) < 2 {
		return nil, memory.ValidationError("source_ids", "consolidate requires at least 2 source memories")
	}

	sources := make([]*memory.Memory, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		m, err := c.store.GetMemory(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.ProjectID != projectID {
			return nil, memory.ConflictError("memory " + id + " belongs to a different project")
		}
		if m.IsArchived {
			return nil, memory.ConflictError("memory " + id + " is already archived")
		}
		sources = append(sources, m)
	}

	mergedType := sources[0].Type
	if typ != nil {
		mergedType = *typ
	}

	versionIDs := make([]string, 0, len(sources))
	for _, m := range sources {
		version, err := c.store.GetNextVersionNumber(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		v := &memory.Version{ID: uuid.NewString(), MemoryID: m.ID, Content: m.Content, Version: version, CreatedAt: time.Now().UTC()}
		if err := c.store.SaveMemoryVersion(ctx, v); err != nil {
			return nil, err
		}
		versionIDs = append(versionIDs, v.ID)
	}

	newMem := &memory.Memory{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Content:         mergedContent,
		Type:            mergedType,
		Source:          memory.SourceManual,
		CreatedAt:       time.Now().UTC(),
		Confirmed:       true,
		ConfidenceScore: 1.0,
	}
	if err := c.store.CreateMemory(ctx, newMem); err != nil {
		return nil, err
	}

	if err := c.indexNewMemory(ctx, newMem); err != nil {
		_ = c.store.DeleteMemory(ctx, newMem.ID)
		return nil, err
	}

	archived := make([]*memory.Memory, 0, len(sources))
	for _, m := range sources {
		if err := c.store.ArchiveMemory(ctx, m.ID, &newMem.ID); err != nil {
			c.rollbackPartialConsolidate(ctx, projectID, newMem.ID, archived)
			return nil, err
		}
		if err := c.index.Delete(ctx, projectID, m.ID); err != nil {
			c.logWarn(ctx, "failed to remove archived source from vector index", err, zap.String("memory_id", m.ID))
		}
		got, err := c.store.GetMemory(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		archived = append(archived, got)
	}

	c.logInfo(ctx, "consolidated memories", zap.Int("source_count", len(sources)), zap.String("new_memory_id", newMem.ID))
	return &Result{NewMemory: newMem, ArchivedMemories: archived, VersionIDs: versionIDs}, nil
}

func (c *Consolidator) indexNewMemory(ctx context.Context, m *memory.Memory) error {
	if err := c.index.Open(ctx, m.ProjectID, c.embedder.Dimension()); err != nil {
		return err
	}
	vec, err := c.embedder.Generate(ctx, m.Content)
	if err != nil {
		return err
	}
	payload := vectorindex.Payload{Type: string(m.Type), CreatedAt: m.CreatedAt.Format(time.RFC3339Nano), ProjectID: m.ProjectID}
	if err := c.index.Upsert(ctx, m.ProjectID, m.ID, vec, payload); err != nil {
		return err
	}
	return c.store.SaveEmbeddingReference(ctx, m.ID, m.ID)
}

// rollbackPartialConsolidate best-effort-undoes a Consolidate call that
// failed partway through archiving sources: already-archived sources are
// restored and the new memory is removed from both stores.
func (c *Consolidator) rollbackPartialConsolidate(ctx context.Context, projectID, newMemoryID string, archivedSoFar []*memory.Memory) {
	for _, m := range archivedSoFar {
		if err := c.store.RestoreArchivedMemory(ctx, m.ID); err != nil {
			c.logWarn(ctx, "failed to restore source during consolidate rollback", err, zap.String("memory_id", m.ID))
		}
	}
	if err := c.index.Delete(ctx, projectID, newMemoryID); err != nil {
		c.logWarn(ctx, "failed to remove new memory from index during rollback", err, zap.String("memory_id", newMemoryID))
	}
	if err := c.store.DeleteMemory(ctx, newMemoryID); err != nil {
		c.logWarn(ctx, "failed to delete new memory during rollback", err, zap.String("memory_id", newMemoryID))
	}
}

// RollbackConsolidation undoes a consolidation: every memory archived into
// consolidatedID is restored and re-indexed, then the consolidated memory
// itself is deleted (§4.7).
func (c *Consolidator) RollbackConsolidation(ctx context.Context, projectID, consolidatedID string) ([]*memory.Memory, error) {
	sources, err := c.store.GetArchivedMemories(ctx, consolidatedID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, memory.NotFoundError("no archived sources found for " + consolidatedID)
	}

	restored := make([]*memory.Memory, 0, len(sources))
	for _, m := range sources {
		if err := c.store.RestoreArchivedMemory(ctx, m.ID); err != nil {
			return nil, err
		}

		vec, err := c.embedder.Generate(ctx, m.Content)
		if err != nil {
			c.logWarn(ctx, "failed to re-embed restored memory", err, zap.String("memory_id", m.ID))
		} else {
			payload := vectorindex.Payload{Type: string(m.Type), CreatedAt: m.CreatedAt.Format(time.RFC3339Nano), ProjectID: m.ProjectID}
			if err := c.index.Upsert(ctx, m.ProjectID, m.ID, vec, payload); err != nil {
				c.logWarn(ctx, "failed to re-index restored memory", err, zap.String("memory_id", m.ID))
			} else if err := c.store.SaveEmbeddingReference(ctx, m.ID, m.ID); err != nil {
				return nil, err
			}
		}

		got, err := c.store.GetMemory(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		restored = append(restored, got)
	}

	if err := c.store.DeleteMemory(ctx, consolidatedID); err != nil {
		return nil, err
	}
	if err := c.index.Delete(ctx, projectID, consolidatedID); err != nil {
		c.logWarn(ctx, "failed to remove consolidated memory from index", err, zap.String("memory_id", consolidatedID))
	}

	c.logInfo(ctx, "rolled back consolidation", zap.Int("restored_count", len(restored)), zap.String("consolidated_id", consolidatedID))
	return restored, nil
}

// MarkStale is a thin pass-through to R.
func (c *Consolidator) MarkStale(ctx context.Context, id, reason string) error {
	return c.store.MarkStale(ctx, id, reason)
}

// ClearStale is a thin pass-through to R.
func (c *Consolidator) ClearStale(ctx context.Context, id string) error {
	return c.store.ClearStale(ctx, id)
}

// GetStaleMemories is a thin pass-through to R.
func (c *Consolidator) GetStaleMemories(ctx context.Context, projectID string) ([]*memory.Memory, error) {
	return c.store.GetStaleMemories(ctx, projectID)
}

// FindUnusedMemories returns confirmed, non-archived memories whose
// last_accessed predates days ago, or — if never accessed — whose
// created_at does (§4.7).
func (c *Consolidator) FindUnusedMemories(ctx context.Context, projectID string, days int) ([]*memory.Memory, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	memories, err := c.store.ListMemories(ctx, projectID, sqlite.ListOptions{
		ConfirmedOnly: true, Limit: unusedMemoriesCap,
	})
	if err != nil {
		return nil, err
	}

	var unused []*memory.Memory
	for _, m := range memories {
		if m.LastAccessed == nil {
			if m.CreatedAt.Before(cutoff) {
				unused = append(unused, m)
			}
		} else if m.LastAccessed.Before(cutoff) {
			unused = append(unused, m)
		}
	}
	return unused, nil
}

// AutoArchiveStale archives stale memories whose last_accessed predates
// days ago; a stale memory that has never been accessed is not a
// candidate. consolidated_into is left nil as the "plain archive" sentinel
// (§9 Open Question 2). In dry_run mode it only returns the candidates.
func (c *Consolidator) AutoArchiveStale(ctx context.Context, projectID string, days int, dryRun bool) ([]*memory.Memory, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	stale, err := c.store.GetStaleMemories(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var candidates []*memory.Memory
	for _, m := range stale {
		if m.LastAccessed != nil && m.LastAccessed.Before(cutoff) {
			candidates = append(candidates, m)
		}
	}

	if dryRun {
		return candidates, nil
	}

	for _, m := range candidates {
		if err := c.store.ArchiveMemory(ctx, m.ID, nil); err != nil {
			return nil, err
		}
		if err := c.index.Delete(ctx, projectID, m.ID); err != nil {
			c.logWarn(ctx, "failed to remove auto-archived memory from index", err, zap.String("memory_id", m.ID))
		}
	}
	return candidates, nil
}

func (c *Consolidator) logInfo(ctx context.Context, msg string, fields ...zap.Field) {
	if c.log == nil {
		return
	}
	c.log.Info(ctx, msg, fields...)
}

func (c *Consolidator) logWarn(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if c.log == nil {
		return
	}
	c.log.Warn(ctx, msg, append(fields, zap.Error(err))...)
}
