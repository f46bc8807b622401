// Package retrieval implements the Retrieval Engine (Ret, §4.6): semantic
// search over the Vector Index with re-ranking, explanation strings, and a
// keyword fallback when E or V is unavailable.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/memoryforge/internal/embedding"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
	"github.com/fyrsmithlabs/memoryforge/internal/validation"
	"github.com/fyrsmithlabs/memoryforge/internal/vectorindex"
)

const (
	defaultMaxResults = 5
	defaultMinScore   = 0.5
)

// typePriority weights a memory's type for re-ranking (§4.6).
var typePriority = map[memory.Type]float64{
	memory.TypeStack:      1.0,
	memory.TypeDecision:   0.9,
	memory.TypeConstraint: 0.8,
	memory.TypeConvention: 0.7,
	memory.TypeNote:       0.5,
}

// Result is one ranked search hit (§4.6).
type Result struct {
	Memory      *memory.Memory
	Score       float64
	Explanation string
}

// scoredMemory pairs a hydrated memory with its running score through the
// vector-search re-rank pipeline.
type scoredMemory struct {
	mem   *memory.Memory
	score float64
}

// Engine implements §4.6's search and timeline operations.
type Engine struct {
	store    *sqlite.Store
	index    vectorindex.Store
	embedder embedding.Provider
}

// New constructs a retrieval Engine.
func New(store *sqlite.Store, index vectorindex.Store, embedder embedding.Provider) *Engine {
	return &Engine{store: store, index: index, embedder: embedder}
}

// Search runs the full §4.6 algorithm: embed, vector search, hydrate,
// re-rank, truncate, touch last_accessed, explain. On any E/V failure it
// falls back to a keyword scan over R.
func (e *Engine) Search(ctx context.Context, projectID, query string, typeFilter *memory.Type, limit *int, minScore *float64, excludeStale bool) ([]Result, error) {
	if err := validation.ValidateSearchQuery(query); err != nil {
		return nil, err
	}
	query = normalizeQuery(query)

	k := defaultMaxResults
	if limit != nil && *limit < k {
		k = *limit
	}
	theta := defaultMinScore
	if minScore != nil {
		theta = *minScore
	}

	results, err := e.vectorSearch(ctx, projectID, query, typeFilter, k, theta, excludeStale)
	if err != nil {
		return e.keywordFallback(ctx, projectID, query, typeFilter, k)
	}
	return results, nil
}

func (e *Engine) vectorSearch(ctx context.Context, projectID, query string, typeFilter *memory.Type, k int, theta float64, excludeStale bool) ([]Result, error) {
	vec, err := e.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	filterType := ""
	if typeFilter != nil {
		filterType = string(*typeFilter)
	}

	hits, err := e.index.Search(ctx, projectID, vec, 2*k, filterType, float32(theta))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	var candidates []scoredMemory
	for _, h := range hits {
		m, err := e.store.GetMemory(ctx, h.MemoryID)
		if err != nil {
			continue
		}
		if !m.Confirmed || m.IsArchived {
			continue
		}
		if excludeStale && m.IsStale {
			continue
		}
		candidates = append(candidates, scoredMemory{mem: m, score: float64(h.Score)})
	}

	rerankAndSort(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		accessed := time.Now().UTC()
		if err := e.store.UpdateLastAccessed(ctx, c.mem.ID, accessed); err == nil {
			c.mem.LastAccessed = &accessed
		}
		out = append(out, Result{
			Memory:      c.mem,
			Score:       c.score,
			Explanation: explain(c.mem, c.score),
		})
	}
	return out, nil
}

// rerankAndSort applies §4.6's recency+type+confidence boost in place and
// sorts descending by adjusted score, tie-broken by newer created_at.
func rerankAndSort(candidates []scoredMemory) {
	now := time.Now().UTC()
	for i := range candidates {
		m := candidates[i].mem
		ageDays := now.Sub(m.CreatedAt).Hours() / 24
		recency := 0.1 * maxFloat(0, 1-ageDays/30)
		typeBoost := typePriority[m.Type] * 0.05
		confidence := (m.ConfidenceScore - 0.5) * 0.1
		candidates[i].score = minFloat(1.0, candidates[i].score+recency+typeBoost+confidence)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].mem.CreatedAt.After(candidates[j].mem.CreatedAt)
	})
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// explain builds the human-readable explanation string of §4.6.
func explain(m *memory.Memory, score float64) string {
	typeLabel := titleCase(strings.ReplaceAll(string(m.Type), "_", " "))
	relevance := "partially relevant"
	switch {
	case score >= 0.85:
		relevance = "highly relevant"
	case score >= 0.7:
		relevance = "relevant"
	}
	return "[" + typeLabel + "] " + relevance + " (score: " + formatScore(score) + ", stored " + m.CreatedAt.Format("Jan 2, 2006") + ")"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.2f", score)
}

// keywordFallback scans up to 100 confirmed memories for literal keyword
// overlap, capped at score 0.7 (§4.6). last_accessed is still touched.
func (e *Engine) keywordFallback(ctx context.Context, projectID, query string, typeFilter *memory.Type, limit int) ([]Result, error) {
	memories, err := e.store.ListMemories(ctx, projectID, sqlite.ListOptions{ConfirmedOnly: true, Type: typeFilter, Limit: 100})
	if err != nil {
		return nil, err
	}

	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var matched []scoredMemory
	for _, m := range memories {
		content := strings.ToLower(m.Content)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := minFloat(1.0, float64(hits)/float64(len(keywords))*0.7)
		matched = append(matched, scoredMemory{mem: m, score: score})
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Result, 0, len(matched))
	for _, c := range matched {
		_ = e.store.UpdateLastAccessed(ctx, c.mem.ID, time.Now().UTC())
		out = append(out, Result{
			Memory:      c.mem,
			Score:       c.score,
			Explanation: "[Keyword match] score: " + formatScore(c.score),
		})
	}
	return out, nil
}

// GetTimeline returns newest-first confirmed, non-archived memories
// without touching last_accessed (§4.6).
func (e *Engine) GetTimeline(ctx context.Context, projectID string, limit int) ([]*memory.Memory, error) {
	return e.store.ListMemories(ctx, projectID, sqlite.ListOptions{ConfirmedOnly: true, Limit: limit})
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(q)), " ")
}
