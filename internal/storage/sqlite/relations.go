package sqlite

import (
	"context"
	"database/sql"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// CreateMemoryRelation persists a directed graph edge (§3, §4.8).
// Duplicate edges are allowed — the Graph Builder treats them as
// additional evidence, not a conflict — so there is no uniqueness check
// here.
func (s *Store) CreateMemoryRelation(ctx context.Context, r *memory.Relation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_relations (id, source_memory_id, target_memory_id, relation_type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.SourceMemoryID, r.TargetMemoryID, string(r.RelationType),
			formatTime(r.CreatedAt), string(r.CreatedBy))
		return err
	})
}

// GetMemoryRelations returns the relations touching memoryID in the given
// direction.
func (s *Store) GetMemoryRelations(ctx context.Context, memoryID string, direction memory.RelationDirection) ([]*memory.Relation, error) {
	var query string
	switch direction {
	case memory.DirectionIncoming:
		query = `SELECT id, source_memory_id, target_memory_id, relation_type, created_at, created_by
			FROM memory_relations WHERE target_memory_id = ? ORDER BY created_at DESC`
	case memory.DirectionOutgoing:
		query = `SELECT id, source_memory_id, target_memory_id, relation_type, created_at, created_by
			FROM memory_relations WHERE source_memory_id = ? ORDER BY created_at DESC`
	default:
		query = `SELECT id, source_memory_id, target_memory_id, relation_type, created_at, created_by
			FROM memory_relations WHERE source_memory_id = ? OR target_memory_id = ? ORDER BY created_at DESC`
	}

	var rows *sql.Rows
	var err error
	if direction == memory.DirectionBoth {
		rows, err = s.db.QueryContext(ctx, query, memoryID, memoryID)
	} else {
		rows, err = s.db.QueryContext(ctx, query, memoryID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Relation
	for rows.Next() {
		var r memory.Relation
		var relType, createdAt, createdBy string
		if err := rows.Scan(&r.ID, &r.SourceMemoryID, &r.TargetMemoryID, &relType, &createdAt, &createdBy); err != nil {
			return nil, err
		}
		r.RelationType = memory.RelationType(relType)
		r.CreatedBy = memory.RelationCreator(createdBy)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = t
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteMemoryRelation removes a single relation edge by id.
func (s *Store) DeleteMemoryRelation(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memory_relations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}
