package sqlite

import (
	"context"
	"database/sql"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// GetNextVersionNumber returns max(version)+1 for memoryID, or 1 if no
// version exists yet. Version numbers are monotonic per memory (§3).
func (s *Store) GetNextVersionNumber(ctx context.Context, memoryID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM memory_versions WHERE memory_id = ?`, memoryID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// SaveMemoryVersion persists a version snapshot. Versions are created only
// by the Consolidator when archiving (§3).
func (s *Store) SaveMemoryVersion(ctx context.Context, v *memory.Version) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_versions (id, memory_id, content, version, created_at) VALUES (?, ?, ?, ?, ?)`,
			v.ID, v.MemoryID, v.Content, v.Version, formatTime(v.CreatedAt))
		return err
	})
}

// GetMemoryVersions returns every version of a memory, newest-first.
func (s *Store) GetMemoryVersions(ctx context.Context, memoryID string) ([]*memory.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, content, version, created_at FROM memory_versions
		WHERE memory_id = ? ORDER BY version DESC`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Version
	for rows.Next() {
		var v memory.Version
		var createdAt string
		if err := rows.Scan(&v.ID, &v.MemoryID, &v.Content, &v.Version, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		v.CreatedAt = t
		out = append(out, &v)
	}
	return out, rows.Err()
}
