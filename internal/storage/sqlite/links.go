package sqlite

import (
	"context"
	"database/sql"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// CreateMemoryLink persists a best-effort, non-authoritative commit link
// (§3, §4.1).
func (s *Store) CreateMemoryLink(ctx context.Context, l *memory.Link) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_links (id, memory_id, commit_sha, link_type, created_at) VALUES (?, ?, ?, ?, ?)`,
			l.ID, l.MemoryID, l.CommitSHA, string(l.LinkType), formatTime(l.CreatedAt))
		return err
	})
}

// GetMemoriesByCommit returns every memory linked to commitSHA.
func (s *Store) GetMemoriesByCommit(ctx context.Context, commitSHA string) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE id IN (SELECT memory_id FROM memory_links WHERE commit_sha = ?)
		ORDER BY created_at DESC`, commitSHA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// GetMemoryLinks returns every commit link recorded for memoryID.
func (s *Store) GetMemoryLinks(ctx context.Context, memoryID string) ([]*memory.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, commit_sha, link_type, created_at FROM memory_links
		WHERE memory_id = ? ORDER BY created_at DESC`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Link
	for rows.Next() {
		var l memory.Link
		var linkType, createdAt string
		if err := rows.Scan(&l.ID, &l.MemoryID, &l.CommitSHA, &linkType, &createdAt); err != nil {
			return nil, err
		}
		l.LinkType = memory.LinkType(linkType)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		l.CreatedAt = t
		out = append(out, &l)
	}
	return out, rows.Err()
}
