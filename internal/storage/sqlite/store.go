// Package sqlite implements the Relational Store (R, §4.1): durable,
// transactional storage for every entity in §3 and the sole owner of
// schema version. It is the authoritative store; the Vector Index is a
// derived, disposable index over it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fyrsmithlabs/memoryforge/internal/logging"
)

// Store is a SQLite-backed implementation of the Relational Store.
//
// §5 requires writes serialized per database handle with readers never
// observing a mixed transaction view; the pool holds a single connection,
// so every read and write through this handle runs one at a time.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	log    *logging.Logger
}

// Open creates or opens the relational store at dbPath, creating its
// parent directory and initializing the schema if the file is new.
func Open(dbPath string, log *logging.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One connection for all reads and writes; statements never overlap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath, log: log}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path, used by the Migrator for backups.
func (s *Store) Path() string {
	return s.dbPath
}

// DB returns the underlying *sql.DB, used by the Migrator to run DDL
// outside this package's own transaction helpers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// execer is the method set shared by *sql.DB and *sql.Tx. No CRUD helper in
// this package takes one; each runs on s.db or inside its own withTx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// withTx runs fn inside one transaction and commits iff fn returns nil,
// matching §5's "exactly-once commit per logical operation" requirement.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
