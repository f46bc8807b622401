package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

// CreateProject persists a new project. The name-uniqueness constraint is
// enforced by the schema's UNIQUE index on projects.name.
func (s *Store) CreateProject(ctx context.Context, p *memory.Project) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, root_path, created_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, p.RootPath, formatTime(p.CreatedAt),
		)
		if isUniqueConstraintErr(err) {
			return memory.ConflictError(fmt.Sprintf("project name %q already exists", p.Name))
		}
		return err
	})
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*memory.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName fetches a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*memory.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, created_at FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*memory.Project, error) {
	var p memory.Project
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.RootPath, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.NotFoundError("project not found")
		}
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

// ListProjects returns every project, oldest-first.
func (s *Store) ListProjects(ctx context.Context) ([]*memory.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, root_path, created_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Project
	for rows.Next() {
		var p memory.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = t
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project. It refuses (Conflict) if any memory,
// archived or not, still belongs to it — ownership in §3 requires callers
// to delete memories first.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE project_id = ?`, id).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return memory.ConflictError(fmt.Sprintf("project %s still owns %d memories", id, count))
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return memory.NotFoundError("project not found")
		}
		return nil
	})
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	// go-sqlite3 surfaces constraint violations with this substring; there is
	// no typed sentinel exported by the driver for UNIQUE specifically.
	return containsSubstr(err.Error(), "UNIQUE constraint failed")
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
