package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// SaveEmbeddingReference upserts the 1:1 link from a memory to its vector
// index entry (§4.1).
func (s *Store) SaveEmbeddingReference(ctx context.Context, memoryID, vectorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embedding_references (memory_id, vector_id) VALUES (?, ?)
			ON CONFLICT (memory_id) DO UPDATE SET vector_id = excluded.vector_id`,
			memoryID, vectorID)
		return err
	})
}

// GetEmbeddingReference fetches the vector id for a memory, if any.
func (s *Store) GetEmbeddingReference(ctx context.Context, memoryID string) (string, error) {
	var vectorID string
	err := s.db.QueryRowContext(ctx,
		`SELECT vector_id FROM embedding_references WHERE memory_id = ?`, memoryID).Scan(&vectorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", memory.NotFoundError("embedding reference not found")
	}
	return vectorID, err
}

// DeleteEmbeddingReference removes the reference row, if present.
func (s *Store) DeleteEmbeddingReference(ctx context.Context, memoryID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM embedding_references WHERE memory_id = ?`, memoryID)
		return err
	})
}
