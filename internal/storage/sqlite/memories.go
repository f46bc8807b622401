package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

const memoryColumns = `id, project_id, content, type, source, created_at, updated_at,
	confirmed, metadata, is_stale, stale_reason, last_accessed, is_archived,
	consolidated_into, confidence_score`

// CreateMemory persists a new memory row with all v3 fields, as §4.1
// requires. Callers (the Memory Manager) are responsible for sanitization
// and validation before reaching this layer; R accepts and preserves bytes
// verbatim.
func (s *Store) CreateMemory(ctx context.Context, m *memory.Memory) error {
	metaJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memories (`+memoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ProjectID, m.Content, string(m.Type), string(m.Source),
			formatTime(m.CreatedAt), nullableTimeString(m.UpdatedAt),
			boolToInt(m.Confirmed), metaJSON,
			boolToInt(m.IsStale), m.StaleReason, nullableTimeString(m.LastAccessed),
			boolToInt(m.IsArchived), m.ConsolidatedInto, m.ConfidenceScore,
		)
		return err
	})
}

// GetMemory fetches a single memory by id, regardless of lifecycle state.
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*memory.Memory, error) {
	var (
		m                                      memory.Memory
		typ, src, createdAt, metaJSON          string
		updatedAt, lastAccessed                sql.NullString
		staleReason, consolidatedInto          sql.NullString
		confirmed, isStale, isArchived         int
	)
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Content, &typ, &src, &createdAt, &updatedAt,
		&confirmed, &metaJSON, &isStale, &staleReason, &lastAccessed, &isArchived,
		&consolidatedInto, &m.ConfidenceScore,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.NotFoundError("memory not found")
		}
		return nil, err
	}
	if err := hydrateMemory(&m, typ, src, createdAt, updatedAt, confirmed, metaJSON,
		isStale, staleReason, lastAccessed, isArchived, consolidatedInto); err != nil {
		return nil, err
	}
	return &m, nil
}

func hydrateMemory(m *memory.Memory, typ, src, createdAt string, updatedAt sql.NullString,
	confirmed int, metaJSON string, isStale int, staleReason sql.NullString,
	lastAccessed sql.NullString, isArchived int, consolidatedInto sql.NullString) error {
	m.Type = memory.Type(typ)
	m.Source = memory.Source(src)

	ct, err := parseTime(createdAt)
	if err != nil {
		return err
	}
	m.CreatedAt = ct

	ua, err := parseNullableTime(updatedAt)
	if err != nil {
		return err
	}
	m.UpdatedAt = ua

	la, err := parseNullableTime(lastAccessed)
	if err != nil {
		return err
	}
	m.LastAccessed = la

	m.Confirmed = confirmed != 0
	m.IsStale = isStale != 0
	m.IsArchived = isArchived != 0

	if staleReason.Valid {
		v := staleReason.String
		m.StaleReason = &v
	}
	if consolidatedInto.Valid {
		v := consolidatedInto.String
		m.ConsolidatedInto = &v
	}

	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return err
	}
	m.Metadata = meta
	return nil
}

// ListOptions controls list_memories filtering (§4.1).
type ListOptions struct {
	ConfirmedOnly    bool
	Type             *memory.Type
	IncludeArchived  bool
	Limit, Offset    int
}

// ListMemories returns memories for project, newest-first, archived
// excluded by default.
func (s *Store) ListMemories(ctx context.Context, projectID string, opts ListOptions) ([]*memory.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE project_id = ?`
	args := []any{projectID}

	if !opts.IncludeArchived {
		query += ` AND is_archived = 0`
	}
	if opts.ConfirmedOnly {
		query += ` AND confirmed = 1`
	}
	if opts.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*opts.Type))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func scanMemoryRows(rows *sql.Rows) ([]*memory.Memory, error) {
	var out []*memory.Memory
	for rows.Next() {
		var (
			m                              memory.Memory
			typ, src, createdAt, metaJSON  string
			updatedAt, lastAccessed        sql.NullString
			staleReason, consolidatedInto  sql.NullString
			confirmed, isStale, isArchived int
		)
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.Content, &typ, &src, &createdAt, &updatedAt,
			&confirmed, &metaJSON, &isStale, &staleReason, &lastAccessed, &isArchived,
			&consolidatedInto, &m.ConfidenceScore,
		); err != nil {
			return nil, err
		}
		if err := hydrateMemory(&m, typ, src, createdAt, updatedAt, confirmed, metaJSON,
			isStale, staleReason, lastAccessed, isArchived, consolidatedInto); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetRecentMemories returns the newest `limit` non-archived memories.
func (s *Store) GetRecentMemories(ctx context.Context, projectID string, limit int) ([]*memory.Memory, error) {
	return s.ListMemories(ctx, projectID, ListOptions{Limit: limit})
}

// GetMemoryCount returns the number of non-archived memories for a project.
func (s *Store) GetMemoryCount(ctx context.Context, projectID string, confirmedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM memories WHERE project_id = ? AND is_archived = 0`
	args := []any{projectID}
	if confirmedOnly {
		query += ` AND confirmed = 1`
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// UpdateMemory replaces content and stamps updated_at.
func (s *Store) UpdateMemory(ctx context.Context, id, content string, updatedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET content = ?, updated_at = ? WHERE id = ?`,
			content, formatTime(updatedAt), id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// ConfirmMemory sets confirmed=true and stamps updated_at. Idempotent: a
// second call on an already-confirmed memory succeeds and leaves it
// confirmed, stamping updated_at again.
func (s *Store) ConfirmMemory(ctx context.Context, id string, updatedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET confirmed = 1, updated_at = ? WHERE id = ?`,
			formatTime(updatedAt), id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// DeleteMemory removes a memory row; ON DELETE CASCADE takes its versions
// and links with it. Returns NotFound if the id does not exist, so callers
// can implement the "delete twice" idempotence law (§8) by treating
// NotFound on the second call as `false`.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return memory.NotFoundError("memory not found")
	}
	return nil
}
