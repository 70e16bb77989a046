// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
)

// Migration is one applied schema version, as recorded in the
// schema_migrations bookkeeping table.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// upFile is a parsed forward migration on disk.
type upFile struct {
	version     int
	description string
	path        string
}

// Migrator applies versioned schema files from a directory. Forward
// files are named V<version>__<description>.up.sql; a matching
// .down.sql enables rollback of that version. Each file runs in its
// own transaction and is recorded with a content checksum.
type Migrator struct {
	db  *sql.DB
	dir string
}

// NewMigrator creates a Migrator reading schema files from dir.
func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// Initialize creates the schema_migrations bookkeeping table.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	if _, err := m.db.Exec(query); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to create schema_migrations table", err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, 0 when none.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}
	return version, nil
}

// GetAppliedMigrations returns all applied migrations, oldest first.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to list applied migrations", err)
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to scan migration row", err)
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to list applied migrations", err)
	}
	return migrations, nil
}

// Up applies every pending forward migration in version order.
// Versions already recorded are skipped, so calling Up on an
// up-to-date database is a no-op.
func (m *Migrator) Up() error {
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	files, err := m.upFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		if applied[f.version] {
			continue
		}
		if err := m.apply(f); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("migration V%d (%s) failed", f.version, f.description), err)
		}
		logging.Info("Applied migration", map[string]interface{}{
			"version":     f.version,
			"description": f.description,
		})
	}
	return nil
}

// Down rolls back the most recently applied version using its
// .down.sql file.
func (m *Migrator) Down() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		return apperrors.New(apperrors.ErrMigration, "no applied migrations to roll back")
	}

	pattern := fmt.Sprintf("V%d__*.down.sql", current)
	matches, err := filepath.Glob(filepath.Join(m.dir, pattern))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to search for rollback file", err)
	}
	if len(matches) == 0 {
		return apperrors.New(apperrors.ErrMigration,
			fmt.Sprintf("no rollback file for version %d", current))
	}

	content, err := os.ReadFile(matches[0])
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read rollback file", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to begin rollback transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration,
			fmt.Sprintf("rollback of version %d failed", current), err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to remove migration record", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to commit rollback", err)
	}

	logging.Info("Rolled back migration", map[string]interface{}{
		"version": current,
	})
	return nil
}

// apply runs one forward file inside a transaction and records it with
// a sha256 checksum of the file content.
func (m *Migrator) apply(f upFile) error {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return err
	}

	sum := sha256.Sum256(content)
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, f.version, time.Now().Unix(), f.description,
		hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	versions := make(map[int]bool, len(applied))
	for _, mig := range applied {
		versions[mig.Version] = true
	}
	return versions, nil
}

// upFiles lists the forward migrations on disk, sorted by version.
// Files that do not match the V<version>__<description>.up.sql naming
// are ignored.
func (m *Migrator) upFiles() ([]upFile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to read migrations directory", err)
	}

	var files []upFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), ".up.sql")
		parts := strings.SplitN(base, "__", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "V") {
			continue
		}
		version, err := strconv.Atoi(strings.TrimPrefix(parts[0], "V"))
		if err != nil {
			continue
		}

		files = append(files, upFile{
			version:     version,
			description: parts[1],
			path:        filepath.Join(m.dir, entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].version < files[j].version
	})
	return files, nil
}
