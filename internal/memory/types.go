// Package memory defines the core entities shared by every memoryforge
// component: projects, memories and their versions/links/relations, and
// the sync conflict log. It has no dependencies on storage, embedding, or
// transport packages so that those packages can depend on it instead of
// each other.
package memory

import "time"

// Type classifies the semantic role of a memory.
type Type string

const (
	TypeStack      Type = "stack"
	TypeDecision   Type = "decision"
	TypeConstraint Type = "constraint"
	TypeConvention Type = "convention"
	TypeNote       Type = "note"
)

// ValidTypes lists every Type accepted by Validate.
var ValidTypes = []Type{TypeStack, TypeDecision, TypeConstraint, TypeConvention, TypeNote}

func (t Type) Valid() bool {
	for _, v := range ValidTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Source records how a memory entered the store.
type Source string

const (
	SourceChat          Source = "chat"
	SourceManual         Source = "manual"
	SourceFileReference Source = "file_reference"
	SourceGit           Source = "git"
)

var ValidSources = []Source{SourceChat, SourceManual, SourceFileReference, SourceGit}

func (s Source) Valid() bool {
	for _, v := range ValidSources {
		if v == s {
			return true
		}
	}
	return false
}

// LinkType classifies a Memory Link (commit) edge.
type LinkType string

const (
	LinkCreatedFrom LinkType = "created_from"
	LinkMentionedIn LinkType = "mentioned_in"
	LinkRelatedTo   LinkType = "related_to"
)

// RelationType classifies a directed Memory Relation (graph) edge.
type RelationType string

const (
	RelationCausedBy  RelationType = "caused_by"
	RelationSupersedes RelationType = "supersedes"
	RelationRelatesTo RelationType = "relates_to"
	RelationBlocks    RelationType = "blocks"
	RelationDependsOn RelationType = "depends_on"
)

// RelationCreator records who or what asserted a Memory Relation.
type RelationCreator string

const (
	CreatedByHuman     RelationCreator = "human"
	CreatedByGitDerived RelationCreator = "git-derived"
)

// RelationDirection selects which side of a relation to traverse.
type RelationDirection string

const (
	DirectionIncoming RelationDirection = "incoming"
	DirectionOutgoing RelationDirection = "outgoing"
	DirectionBoth     RelationDirection = "both"
)

// ConflictResolution records how a sync conflict was settled.
type ConflictResolution string

const (
	ResolutionLocalWins  ConflictResolution = "local_wins"
	ResolutionRemoteWins ConflictResolution = "remote_wins"
	ResolutionManual     ConflictResolution = "manual"
	ResolutionMerged     ConflictResolution = "merged"
)

// Project is the top-level ownership boundary for memories (§3, §4.13).
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RootPath  string    `json:"root_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory is the central entity of the store (§3).
type Memory struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Content   string `json:"content"`
	Type      Type   `json:"type"`
	Source    Source `json:"source"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	Confirmed bool `json:"confirmed"`

	Metadata map[string]any `json:"metadata,omitempty"`

	IsStale     bool    `json:"is_stale"`
	StaleReason *string `json:"stale_reason,omitempty"`

	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	IsArchived       bool    `json:"is_archived"`
	ConsolidatedInto *string `json:"consolidated_into,omitempty"`

	ConfidenceScore float64 `json:"confidence_score"`
}

// EmbeddingReference is the 1:1 link between a confirmed memory and its
// vector index entry (§3).
type EmbeddingReference struct {
	MemoryID string `json:"memory_id"`
	VectorID string `json:"vector_id"`
}

// Version is an immutable snapshot of a memory's content, created only by
// the Consolidator when archiving a memory (§3, §4.7).
type Version struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Link is a best-effort, non-authoritative association between a memory
// and a VCS commit (§3, §4.8).
type Link struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	CommitSHA string    `json:"commit_sha"`
	LinkType  LinkType  `json:"link_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Relation is a directed edge in the memory graph (§3, §4.8). Self-loops
// are forbidden.
type Relation struct {
	ID             string          `json:"id"`
	SourceMemoryID string          `json:"source_memory_id"`
	TargetMemoryID string          `json:"target_memory_id"`
	RelationType   RelationType    `json:"relation_type"`
	CreatedAt      time.Time       `json:"created_at"`
	CreatedBy      RelationCreator `json:"created_by"`
}

// ConflictLogEntry records the outcome of a sync conflict (§3, §4.10).
type ConflictLogEntry struct {
	ID            string             `json:"id"`
	MemoryID      string             `json:"memory_id"`
	LocalContent  *string            `json:"local_content,omitempty"`
	RemoteContent *string            `json:"remote_content,omitempty"`
	Resolution    ConflictResolution `json:"resolution"`
	ResolvedAt    time.Time          `json:"resolved_at"`
	ResolvedBy    *string            `json:"resolved_by,omitempty"`
}

// SchemaVersion records a single applied migration step (§3, §4.12).
type SchemaVersion struct {
	Version     int       `json:"version"`
	AppliedAt   time.Time `json:"applied_at"`
	Description string    `json:"description,omitempty"`
}

// EffectiveUpdatedAt returns UpdatedAt if set, else CreatedAt, matching the
// "local.updated_at ?? local.created_at" fallback used throughout §4.10/§4.11.
func (m *Memory) EffectiveUpdatedAt() time.Time {
	if m.UpdatedAt != nil {
		return *m.UpdatedAt
	}
	return m.CreatedAt
}
