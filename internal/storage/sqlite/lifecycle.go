package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// MarkStale flags a memory as stale with a reason (§4.1).
func (s *Store) MarkStale(ctx context.Context, id, reason string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_stale = 1, stale_reason = ? WHERE id = ?`, reason, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// ClearStale clears the stale flag and reason.
func (s *Store) ClearStale(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_stale = 0, stale_reason = NULL WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// GetStaleMemories returns every stale, non-archived memory in a project.
func (s *Store) GetStaleMemories(ctx context.Context, projectID string) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE project_id = ? AND is_stale = 1 AND is_archived = 0
		ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// ArchiveMemory hides a memory from retrieval, recording the memory it was
// consolidated into (nil is the "plain archive" sentinel, §9 Open
// Question 2). It also deletes any embedding reference, since archived
// memories are never present in V (§3 invariant b).
func (s *Store) ArchiveMemory(ctx context.Context, id string, consolidatedInto *string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_archived = 1, consolidated_into = ? WHERE id = ?`,
			consolidatedInto, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM embedding_references WHERE memory_id = ?`, id)
		return err
	})
}

// RestoreArchivedMemory reverses ArchiveMemory: is_archived=false,
// consolidated_into cleared. Staleness is preserved (§3 state machine).
func (s *Store) RestoreArchivedMemory(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET is_archived = 0, consolidated_into = NULL WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// GetArchivedMemories returns every memory archived into consolidatedInto.
func (s *Store) GetArchivedMemories(ctx context.Context, consolidatedInto string) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE is_archived = 1 AND consolidated_into = ?
		ORDER BY created_at DESC`, consolidatedInto)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// GetAllArchivedMemories returns every archived memory in a project,
// regardless of consolidation target.
func (s *Store) GetAllArchivedMemories(ctx context.Context, projectID string) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE project_id = ? AND is_archived = 1
		ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// UpdateLastAccessed stamps last_accessed. This is the only mutation the
// Retrieval Engine performs, and only for memories it returns (§3 invariant
// d, §5 ordering).
func (s *Store) UpdateLastAccessed(ctx context.Context, id string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET last_accessed = ? WHERE id = ?`, formatTime(at), id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// UpdateConfidenceScore persists the Confidence Scorer's latest score.
func (s *Store) UpdateConfidenceScore(ctx context.Context, id string, score float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET confidence_score = ? WHERE id = ?`, score, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// GetLowConfidenceMemories returns non-archived memories at or below
// threshold, lowest-first.
func (s *Store) GetLowConfidenceMemories(ctx context.Context, projectID string, threshold float64) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE project_id = ? AND is_archived = 0 AND confidence_score <= ?
		ORDER BY confidence_score ASC`, projectID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}
