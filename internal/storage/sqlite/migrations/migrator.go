package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryforge/internal/logging"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

const backupTimeLayout = "20060102_150405"

// maxBackups is how many rotated backups survive a successful run (§6).
const maxBackups = 5

// Migrator runs the declarative, numbered schema steps in steps.go against
// a database file on disk, backing it up first and restoring it atomically
// on any failure.
type Migrator struct {
	log *logging.Logger
}

// New constructs a Migrator.
func New(log *logging.Logger) *Migrator {
	return &Migrator{log: log}
}

// Result reports what Run actually did.
type Result struct {
	FromVersion int
	ToVersion   int
	BackupPath  string // empty if no backup was needed (fresh DB)
}

// Run brings the database at dbPath up to target (LatestVersion if target
// is 0), per §4.12's numbered steps.
func (m *Migrator) Run(ctx context.Context, dbPath string, verify bool, target int) (*Result, error) {
	if target == 0 {
		target = LatestVersion
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := m.initFresh(ctx, dbPath, target); err != nil {
			return nil, memory.MigrationError("initialize fresh database", err)
		}
		return &Result{FromVersion: 0, ToVersion: target}, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, memory.MigrationError("open database", err)
	}
	defer db.Close()

	current, err := m.currentVersion(db)
	if err != nil {
		return nil, memory.MigrationError("read schema version", err)
	}

	if current >= target {
		return &Result{FromVersion: current, ToVersion: current}, nil
	}

	var preCounts map[string]int64
	if verify {
		preCounts, err = snapshotCounts(db, loadedManifest.CriticalTables)
		if err != nil {
			return nil, memory.MigrationError("snapshot row counts", err)
		}
	}

	backupPath, err := m.backup(dbPath)
	if err != nil {
		return nil, memory.MigrationError("create backup", err)
	}

	if err := m.applySteps(db, current, target); err != nil {
		if restoreErr := m.RestoreBackup(dbPath, backupPath); restoreErr != nil {
			return nil, memory.MigrationError(
				fmt.Sprintf("migration failed (%v) and backup restore also failed", err), restoreErr)
		}
		return nil, memory.MigrationError("migration step failed, backup restored", err)
	}

	if verify {
		postCounts, err := snapshotCounts(db, loadedManifest.CriticalTables)
		if err != nil {
			return nil, memory.MigrationError("snapshot post-migration row counts", err)
		}
		for _, table := range loadedManifest.CriticalTables {
			if postCounts[table] < preCounts[table] {
				if restoreErr := m.RestoreBackup(dbPath, backupPath); restoreErr != nil {
					return nil, memory.MigrationError(
						fmt.Sprintf("verification failed for %s and backup restore also failed", table), restoreErr)
				}
				return nil, memory.MigrationError(
					fmt.Sprintf("row count for %s dropped from %d to %d, backup restored",
						table, preCounts[table], postCounts[table]), nil)
			}
		}
	}

	if err := m.rotateBackups(dbPath); err != nil {
		m.logWarn("backup rotation failed", err)
	}

	return &Result{FromVersion: current, ToVersion: target, BackupPath: backupPath}, nil
}

func (m *Migrator) initFresh(ctx context.Context, dbPath string, target int) error {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE,
			root_path TEXT NOT NULL, created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY, project_id TEXT NOT NULL, content TEXT NOT NULL,
			type TEXT NOT NULL, source TEXT NOT NULL, created_at TEXT NOT NULL,
			updated_at TEXT, confirmed INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`); err != nil {
		return err
	}
	if err := migrateV1ToV2(db); err != nil {
		return err
	}
	if target >= 3 {
		if err := migrateV2ToV3(db); err != nil {
			return err
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for v := 2; v <= target; v++ {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)`,
			v, now, stepDescription(v)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) currentVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 1, nil
	}
	var version sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	if !version.Valid {
		return 1, nil
	}
	return int(version.Int64), nil
}

func (m *Migrator) applySteps(db *sql.DB, current, target int) error {
	for v := current; v < target; v++ {
		stepFn, ok := steps[v]
		if !ok {
			return fmt.Errorf("no migration step registered for version %d", v)
		}
		if err := stepFn(db); err != nil {
			return fmt.Errorf("step %d->%d: %w", v, v+1, err)
		}
		if _, err := db.Exec(
			`INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)`,
			v+1, time.Now().UTC().Format(time.RFC3339Nano), stepDescription(v+1)); err != nil {
			return fmt.Errorf("record schema_version %d: %w", v+1, err)
		}
	}
	return nil
}

func snapshotCounts(db *sql.DB, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			// table may not exist pre-migration on a v1 database; treat as 0.
			counts[table] = 0
			continue
		}
		counts[table] = n
	}
	return counts, nil
}

// backup copies dbPath to a timestamped sibling file, named per §6.
func (m *Migrator) backup(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	name := fmt.Sprintf("memoryforge_v1_backup_%s.sqlite", time.Now().UTC().Format(backupTimeLayout))
	backupPath := filepath.Join(dir, name)
	if err := copyFile(dbPath, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

// RestoreBackup replaces the database file at dbPath with backupPath by
// copying the backup to a temporary sibling and renaming it over dbPath.
func (m *Migrator) RestoreBackup(dbPath, backupPath string) error {
	tmp := dbPath + ".restore"
	if err := copyFile(backupPath, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dbPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// rotateBackups keeps only the maxBackups most recent backup files
// alongside dbPath.
func (m *Migrator) rotateBackups(dbPath string) error {
	dir := filepath.Dir(dbPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "memoryforge_v1_backup_") && strings.HasSuffix(e.Name(), ".sqlite") {
			backups = append(backups, e.Name())
		}
	}
	sort.Strings(backups) // timestamp-embedded names sort chronologically

	if len(backups) <= maxBackups {
		return nil
	}
	toRemove := backups[:len(backups)-maxBackups]
	for _, name := range toRemove {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// RollbackWarning reports whether memories created after the latest backup
// would be lost by restoring it, per §4.12.
func (m *Migrator) RollbackWarning(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "memoryforge_v1_backup_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM memories WHERE created_at > ?`,
		latestMod.UTC().Format(time.RFC3339Nano)).Scan(&count)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", nil
	}
	return fmt.Sprintf("restoring %s would discard %d memories created since that backup", latest, count), nil
}

func (m *Migrator) logWarn(msg string, err error) {
	if m.log == nil {
		return
	}
	m.log.Warn(context.Background(), msg, zap.Error(err))
}
