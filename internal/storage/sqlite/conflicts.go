package sqlite

import (
	"context"
	"database/sql"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// LogConflict appends an entry to the conflict log (§4.10, §4.11).
func (s *Store) LogConflict(ctx context.Context, c *memory.ConflictLogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conflict_log (id, memory_id, local_content, remote_content, resolution, resolved_at, resolved_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.MemoryID, c.LocalContent, c.RemoteContent,
			string(c.Resolution), formatTime(c.ResolvedAt), c.ResolvedBy)
		return err
	})
}

// GetConflictHistory returns conflict log entries, newest-first. A nil
// memoryID returns the entire project-spanning log.
func (s *Store) GetConflictHistory(ctx context.Context, memoryID *string) ([]*memory.ConflictLogEntry, error) {
	query := `SELECT id, memory_id, local_content, remote_content, resolution, resolved_at, resolved_by FROM conflict_log`
	var args []any
	if memoryID != nil {
		query += ` WHERE memory_id = ?`
		args = append(args, *memoryID)
	}
	query += ` ORDER BY resolved_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.ConflictLogEntry
	for rows.Next() {
		var c memory.ConflictLogEntry
		var resolution, resolvedAt string
		var localContent, remoteContent, resolvedBy sql.NullString
		if err := rows.Scan(&c.ID, &c.MemoryID, &localContent, &remoteContent, &resolution, &resolvedAt, &resolvedBy); err != nil {
			return nil, err
		}
		c.Resolution = memory.ConflictResolution(resolution)
		t, err := parseTime(resolvedAt)
		if err != nil {
			return nil, err
		}
		c.ResolvedAt = t
		if localContent.Valid {
			v := localContent.String
			c.LocalContent = &v
		}
		if remoteContent.Valid {
			v := remoteContent.String
			c.RemoteContent = &v
		}
		if resolvedBy.Valid {
			v := resolvedBy.String
			c.ResolvedBy = &v
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountConflicts returns the number of historical conflicts logged for a
// memory, used by the Confidence Scorer's conflict-score term.
func (s *Store) CountConflicts(ctx context.Context, memoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflict_log WHERE memory_id = ?`, memoryID).Scan(&n)
	return n, err
}
