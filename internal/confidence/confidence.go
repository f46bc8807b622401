// Package confidence implements the Confidence Scorer (CS, §4.9): a
// weighted average of confirmation, recency, usage, and conflict-history
// signals, recomputed on demand rather than kept continuously live.
package confidence

import (
	"context"
	"math"
	"time"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
)

func nowUTC() time.Time { return time.Now().UTC() }

const (
	weightConfirmation = 0.25
	weightRecency      = 0.25
	weightUsage        = 0.25
	weightConflicts    = 0.25

	recencyHalfLifeDays = 30.0

	batchUpdateCap = 10000
)

// Scorer implements §4.9 over R.
type Scorer struct {
	store *sqlite.Store
}

// New constructs a confidence Scorer.
func New(store *sqlite.Store) *Scorer {
	return &Scorer{store: store}
}

// Breakdown is the per-component detail behind a calculated score (§4.9).
type Breakdown struct {
	ConfirmationScore float64
	RecencyScore      float64
	UsageScore        float64
	ConflictScore     float64
	ConflictCount     int
	Total             float64
}

// CalculateScore computes a memory's confidence score without persisting
// it (§4.9). The four components are weighted equally and the result is
// clamped to [0.0, 1.0].
func (s *Scorer) CalculateScore(ctx context.Context, m *memory.Memory) (Breakdown, error) {
	conflicts, err := s.store.GetConflictHistory(ctx, &m.ID)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		ConfirmationScore: confirmationScore(m),
		RecencyScore:      recencyScore(m),
		UsageScore:        usageScore(m),
		ConflictScore:     conflictScore(len(conflicts)),
		ConflictCount:     len(conflicts),
	}
	total := b.ConfirmationScore*weightConfirmation +
		b.RecencyScore*weightRecency +
		b.UsageScore*weightUsage +
		b.ConflictScore*weightConflicts
	b.Total = clamp01(total)
	return b, nil
}

func confirmationScore(m *memory.Memory) float64 {
	if m.Confirmed {
		return 1.0
	}
	return 0.3
}

// recencyScore decays exponentially with a 30-day half-life, measured from
// last_accessed if set, otherwise from created_at.
func recencyScore(m *memory.Memory) float64 {
	reference := m.CreatedAt
	if m.LastAccessed != nil {
		reference = *m.LastAccessed
	}
	daysSince := nowUTC().Sub(reference).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	return math.Pow(0.5, daysSince/recencyHalfLifeDays)
}

// usageScore mirrors the source's simple accessed/never-accessed heuristic
// rather than a true access-frequency counter, which the schema does not
// track.
func usageScore(m *memory.Memory) float64 {
	if m.LastAccessed == nil {
		return 0.5
	}
	return 0.8
}

func conflictScore(count int) float64 {
	switch {
	case count == 0:
		return 1.0
	case count == 1:
		return 0.7
	case count <= 3:
		return 0.5
	default:
		return 0.3
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UpdateScore recalculates and persists the confidence score for a single
// memory (§4.9).
func (s *Scorer) UpdateScore(ctx context.Context, memoryID string) (float64, error) {
	m, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return 0, err
	}
	b, err := s.CalculateScore(ctx, m)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpdateConfidenceScore(ctx, memoryID, b.Total); err != nil {
		return 0, err
	}
	return b.Total, nil
}

// BatchUpdateScores recalculates scores for every memory in a project
// (capped at batchUpdateCap), returning a memory-id to new-score map
// (§4.9).
func (s *Scorer) BatchUpdateScores(ctx context.Context, projectID string) (map[string]float64, error) {
	memories, err := s.store.ListMemories(ctx, projectID, sqlite.ListOptions{Limit: batchUpdateCap})
	if err != nil {
		return nil, err
	}

	results := make(map[string]float64, len(memories))
	for _, m := range memories {
		b, err := s.CalculateScore(ctx, m)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateConfidenceScore(ctx, m.ID, b.Total); err != nil {
			return nil, err
		}
		results[m.ID] = b.Total
	}
	return results, nil
}

// GetLowConfidence returns memories at or below threshold (§4.9).
func (s *Scorer) GetLowConfidence(ctx context.Context, projectID string, threshold float64) ([]*memory.Memory, error) {
	return s.store.GetLowConfidenceMemories(ctx, projectID, threshold)
}

// GetConfidenceDetails returns the full breakdown behind a memory's
// current score, for explain-style tooling (§4.9).
func (s *Scorer) GetConfidenceDetails(ctx context.Context, memoryID string) (*memory.Memory, Breakdown, error) {
	m, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, Breakdown{}, err
	}
	b, err := s.CalculateScore(ctx, m)
	if err != nil {
		return nil, Breakdown{}, err
	}
	return m, b, nil
}
