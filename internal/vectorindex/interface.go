// Package vectorindex implements the Vector Index (V, §4.2): a derived,
// per-project index of memory embeddings, rebuildable from the Relational
// Store. It knows nothing about memory records — only ids, vectors, and a
// small filterable payload.
package vectorindex

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when a project's collection has not
// been created yet.
var ErrCollectionNotFound = errors.New("vectorindex: collection not found")

// Payload is the filterable metadata stored alongside a vector (§4.2).
type Payload struct {
	Type      string
	CreatedAt string // RFC3339; kept as a string, V does no time parsing
	ProjectID string
}

// Hit is one result of a similarity search: the memory id, its cosine
// similarity score, and the payload used to filter/display it without a
// round-trip to R.
type Hit struct {
	MemoryID string
	Score    float32
	Payload  Payload
}

// Store is the abstract contract for the Vector Index (§4.2). Each project
// gets its own collection; the collection's dimension is verified against
// the embedding provider's dimension on open, and dropped/recreated on
// mismatch since the index is wholly derived from R.
type Store interface {
	// Open prepares (creating if necessary) the collection for projectID
	// sized to dimension, recreating it if an existing collection has a
	// different dimension.
	Open(ctx context.Context, projectID string, dimension int) error

	// Upsert inserts or replaces the vector for memoryID.
	Upsert(ctx context.Context, projectID, memoryID string, vector []float32, payload Payload) error

	// Delete removes memoryID's vector, if present. Deleting an absent id
	// is not an error.
	Delete(ctx context.Context, projectID, memoryID string) error

	// Search returns up to k nearest neighbors to queryVector by cosine
	// similarity, optionally filtered to a single payload type, with a
	// minimum score threshold.
	Search(ctx context.Context, projectID string, queryVector []float32, k int, typeFilter string, minScore float32) ([]Hit, error)

	// Count returns the number of vectors currently indexed for projectID.
	Count(ctx context.Context, projectID string) (int, error)

	// Rebuild drops and recreates projectID's collection, leaving it
	// empty; repopulation is the caller's responsibility (the Memory
	// Manager's reindex repair, §7).
	Rebuild(ctx context.Context, projectID string, dimension int) error

	// Close releases any held connections.
	Close() error
}

// CollectionName derives the per-project collection name from a project id
// (§4.2): the first 8 characters, which is enough to avoid collisions
// between UUIDs while keeping names short and Qdrant-legal.
func CollectionName(projectID string) string {
	const prefixLen = 8
	name := "mf_" + projectID
	if len(name) > prefixLen+3 {
		name = name[:prefixLen+3]
	}
	return name
}
