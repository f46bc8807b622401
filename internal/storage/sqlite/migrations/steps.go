// Package migrations implements the Migrator (§4.12): numbered, idempotent
// schema steps plus the backup/verify/restore/rotate protocol that runs
// them.
package migrations

import (
	"database/sql"
	"fmt"
)

// LatestVersion is the highest schema level this binary knows how to
// migrate to. Bump it, and add a step function, when a new migration ships.
const LatestVersion = 3

// step applies the v -> v+1 transition. Steps must be idempotent: running
// one twice (e.g. after a crash mid-migration) must not error.
type step func(db *sql.DB) error

// steps maps "migrating away from version v" to its step function.
var steps = map[int]step{
	1: migrateV1ToV2,
	2: migrateV2ToV3,
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?`,
		table, column).Scan(&exists)
	return exists, err
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// migrateV1ToV2 adds staleness/archival/versioning support: new memories
// columns, memory_versions, memory_links, and their indexes.
func migrateV1ToV2(db *sql.DB) error {
	cols := []struct{ name, def string }{
		{"is_stale", "INTEGER NOT NULL DEFAULT 0"},
		{"stale_reason", "TEXT"},
		{"last_accessed", "TEXT"},
		{"is_archived", "INTEGER NOT NULL DEFAULT 0"},
		{"consolidated_into", "TEXT"},
	}
	for _, c := range cols {
		if err := addColumnIfMissing(db, "memories", c.name, c.def); err != nil {
			return err
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_versions (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			content TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_versions_memory ON memory_versions(memory_id)`,
		`CREATE TABLE IF NOT EXISTS memory_links (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			commit_sha TEXT NOT NULL,
			link_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_links_memory ON memory_links(memory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_links_commit ON memory_links(commit_sha)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(project_id, is_archived)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL,
			description TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}
	return nil
}

// migrateV2ToV3 adds the graph overlay, conflict log, confidence scoring,
// and the remaining performance indexes.
func migrateV2ToV3(db *sql.DB) error {
	if err := addColumnIfMissing(db, "memories", "confidence_score", "REAL NOT NULL DEFAULT 1.0"); err != nil {
		return err
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_relations (
			id TEXT PRIMARY KEY,
			source_memory_id TEXT NOT NULL,
			target_memory_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			created_by TEXT NOT NULL,
			FOREIGN KEY (source_memory_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (target_memory_id) REFERENCES memories(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_relations_source ON memory_relations(source_memory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_relations_target ON memory_relations(target_memory_id)`,
		`CREATE TABLE IF NOT EXISTS conflict_log (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			local_content TEXT,
			remote_content TEXT,
			resolution TEXT NOT NULL,
			resolved_at TEXT NOT NULL,
			resolved_by TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflict_log_memory ON conflict_log(memory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_confirmed ON memories(project_id, confirmed)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}
	return nil
}
