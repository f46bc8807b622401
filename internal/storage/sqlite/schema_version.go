package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetSchemaVersion returns the highest applied schema version, or 1 if the
// schema_version table doesn't exist yet (§4.1, §4.12) — a pre-migration
// database predates the table entirely.
func (s *Store) GetSchemaVersion(ctx context.Context) (int, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 1, nil
	}

	var version sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || !version.Valid {
			return 1, nil
		}
		return 0, err
	}
	if !version.Valid {
		return 1, nil
	}
	return int(version.Int64), nil
}

// SetSchemaVersion records that `version` has been applied.
func (s *Store) SetSchemaVersion(ctx context.Context, version int, description string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)`,
			version, formatTime(time.Now()), description)
		return err
	})
}
