// Package graph implements the Graph Builder (G, §4.8): typed
// memory-to-memory relations layered over the Relational Store. The graph
// is derived and read-mostly; R's memory_relations table remains the
// source of truth.
package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Edge pairs a related memory with the relation type that connects it to
// the memory a View is centered on.
type Edge struct {
	Memory       *memory.Memory
	RelationType memory.RelationType
}

// View is a graph view centered on one memory (§4.8).
type View struct {
	Memory         *memory.Memory
	Incoming       []Edge
	Outgoing       []Edge
	CausalityChain []*memory.Memory
}

// Builder implements §4.8 over R.
type Builder struct {
	store *sqlite.Store
}

// New constructs a graph Builder.
func New(store *sqlite.Store) *Builder {
	return &Builder{store: store}
}

// LinkMemories creates a directed relation edge. Both endpoints must
// exist; self-links are rejected. Duplicate edges are allowed — they are
// additional evidence, not a conflict (§4.8).
func (b *Builder) LinkMemories(ctx context.Context, sourceID, targetID string, relType memory.RelationType, createdBy memory.RelationCreator) (*memory.Relation, error) {
	if sourceID == targetID {
		return nil, memory.ValidationError("target_id", "a memory cannot relate to itself")
	}
	if _, err := b.store.GetMemory(ctx, sourceID); err != nil {
		return nil, err
	}
	if _, err := b.store.GetMemory(ctx, targetID); err != nil {
		return nil, err
	}

	rel := &memory.Relation{
		ID:             uuid.NewString(),
		SourceMemoryID: sourceID,
		TargetMemoryID: targetID,
		RelationType:   relType,
		CreatedAt:      nowUTC(),
		CreatedBy:      createdBy,
	}
	if err := b.store.CreateMemoryRelation(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// UnlinkMemories removes a single relation edge by id.
func (b *Builder) UnlinkMemories(ctx context.Context, relationID string) error {
	return b.store.DeleteMemoryRelation(ctx, relationID)
}

// GetGraphView returns the memories incoming to and outgoing from id, plus
// the causality chain of decisions that led to it (§4.8).
func (b *Builder) GetGraphView(ctx context.Context, id string) (*View, error) {
	m, err := b.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}

	incomingRels, err := b.store.GetMemoryRelations(ctx, id, memory.DirectionIncoming)
	if err != nil {
		return nil, err
	}
	outgoingRels, err := b.store.GetMemoryRelations(ctx, id, memory.DirectionOutgoing)
	if err != nil {
		return nil, err
	}

	incoming := make([]Edge, 0, len(incomingRels))
	for _, rel := range incomingRels {
		other, err := b.store.GetMemory(ctx, rel.SourceMemoryID)
		if err != nil {
			continue
		}
		incoming = append(incoming, Edge{Memory: other, RelationType: rel.RelationType})
	}

	outgoing := make([]Edge, 0, len(outgoingRels))
	for _, rel := range outgoingRels {
		other, err := b.store.GetMemory(ctx, rel.TargetMemoryID)
		if err != nil {
			continue
		}
		outgoing = append(outgoing, Edge{Memory: other, RelationType: rel.RelationType})
	}

	chain, err := b.causalityChain(ctx, id)
	if err != nil {
		return nil, err
	}

	return &View{Memory: m, Incoming: incoming, Outgoing: outgoing, CausalityChain: chain}, nil
}

// causalityChain walks caused_by edges backward from id: each step follows
// the incoming caused_by relation to the decision that caused this memory,
// stopping when no further link exists or a cycle is detected.
func (b *Builder) causalityChain(ctx context.Context, id string) ([]*memory.Memory, error) {
	var chain []*memory.Memory
	visited := map[string]bool{id: true}
	current := id

	for {
		rels, err := b.store.GetMemoryRelations(ctx, current, memory.DirectionIncoming)
		if err != nil {
			return nil, err
		}

		var next string
		for _, rel := range rels {
			if rel.RelationType == memory.RelationCausedBy {
				next = rel.SourceMemoryID
				break
			}
		}
		if next == "" || visited[next] {
			break
		}
		m, err := b.store.GetMemory(ctx, next)
		if err != nil {
			break
		}
		chain = append(chain, m)
		visited[next] = true
		current = next
	}
	return chain, nil
}

// FindRelatedMemories performs a breadth-first traversal of the relation
// graph starting at id, optionally filtered to relTypes, up to maxDepth
// levels, deduplicating across levels and excluding the root (§4.8).
func (b *Builder) FindRelatedMemories(ctx context.Context, id string, relTypes []memory.RelationType, maxDepth int) ([]*memory.Memory, error) {
	visited := map[string]bool{}
	var result []*memory.Memory
	currentLevel := map[string]bool{id: true}

	for depth := 0; depth < maxDepth; depth++ {
		nextLevel := map[string]bool{}

		for mid := range currentLevel {
			if visited[mid] {
				continue
			}
			visited[mid] = true

			rels, err := b.store.GetMemoryRelations(ctx, mid, memory.DirectionBoth)
			if err != nil {
				return nil, err
			}

			for _, rel := range rels {
				if len(relTypes) > 0 && !containsRelationType(relTypes, rel.RelationType) {
					continue
				}

				otherID := rel.TargetMemoryID
				if rel.SourceMemoryID != mid {
					otherID = rel.SourceMemoryID
				}

				if visited[otherID] {
					continue
				}
				nextLevel[otherID] = true

				m, err := b.store.GetMemory(ctx, otherID)
				if err != nil {
					continue
				}
				if !containsMemory(result, m.ID) {
					result = append(result, m)
				}
			}
		}
		currentLevel = nextLevel
	}
	return result, nil
}

func containsRelationType(types []memory.RelationType, t memory.RelationType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsMemory(memories []*memory.Memory, id string) bool {
	for _, m := range memories {
		if m.ID == id {
			return true
		}
	}
	return false
}

// GetDecisionConsequences returns the memories with a caused_by relation
// pointing at decisionID — "what did this decision cause" (§4.8).
func (b *Builder) GetDecisionConsequences(ctx context.Context, decisionID string) ([]*memory.Memory, error) {
	rels, err := b.store.GetMemoryRelations(ctx, decisionID, memory.DirectionIncoming)
	if err != nil {
		return nil, err
	}

	var consequences []*memory.Memory
	for _, rel := range rels {
		if rel.RelationType != memory.RelationCausedBy {
			continue
		}
		m, err := b.store.GetMemory(ctx, rel.SourceMemoryID)
		if err != nil {
			continue
		}
		consequences = append(consequences, m)
	}
	return consequences, nil
}
