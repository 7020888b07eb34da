// Package migrations applies the embedded store schema to sqlite or
// postgres databases.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"rnadiff/internal"
)

//go:embed sql/*.sql
var files embed.FS

const schemaTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

// MigrationFile is one embedded schema step
type MigrationFile struct {
	Version  string
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus reports whether a step has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Migrator handles database schema migrations
type Migrator struct {
	db     *sqlx.DB
	fsys   fs.FS
	logger *internal.Logger
}

// NewMigrator creates a migrator over the embedded schema
func NewMigrator(db *sqlx.DB, logger *internal.Logger) *Migrator {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Migrator{db: db, fsys: files, logger: logger}
}

// Up executes all pending migrations. An applied migration whose checksum
// no longer matches its file is an error.
func (m *Migrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, schemaTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := m.findMigrationFiles()
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	for _, file := range migrations {
		if sum, ok := applied[file.Version]; ok {
			if sum != file.Checksum {
				return fmt.Errorf("migration %s was modified after it was applied", file.Version)
			}
			continue
		}

		if err := m.applyMigration(ctx, file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Version, err)
		}
		m.logger.Info("[Migrator] applied migration %s (%s)", file.Version, file.Name)
	}

	return nil
}

// Status lists every embedded migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if _, err := m.db.ExecContext(ctx, schemaTable); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := m.findMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to find migration files: %w", err)
	}

	out := make([]MigrationStatus, len(migrations))
	for i, file := range migrations {
		_, ok := applied[file.Version]
		out[i] = MigrationStatus{Version: file.Version, Name: file.Name, Applied: ok}
	}
	return out, nil
}

// Version returns the newest embedded migration version
func (m *Migrator) Version() (string, error) {
	migrations, err := m.findMigrationFiles()
	if err != nil {
		return "", err
	}
	if len(migrations) == 0 {
		return "", nil
	}
	return migrations[len(migrations)-1].Version, nil
}

func (m *Migrator) appliedChecksums(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations"); err != nil {
		return nil, err
	}

	applied := make(map[string]string, len(rows))
	for _, r := range rows {
		applied[r.Version] = r.Checksum
	}
	return applied, nil
}

// calculateChecksum computes SHA256 checksum of migration content
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// findMigrationFiles reads NNN_name.sql files sorted by version
func (m *Migrator) findMigrationFiles() ([]MigrationFile, error) {
	entries, err := fs.ReadDir(m.fsys, "sql")
	if err != nil {
		return nil, err
	}

	var out []MigrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(strings.TrimSuffix(e.Name(), ".sql"), "_", 2)
		if len(parts) < 2 {
			continue
		}

		data, err := fs.ReadFile(m.fsys, path.Join("sql", e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, MigrationFile{
			Version:  parts[0],
			Name:     parts[1],
			SQL:      string(data),
			Checksum: calculateChecksum(data),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// applyMigration executes one migration and records it in a transaction
func (m *Migrator) applyMigration(ctx context.Context, file MigrationFile) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements(file.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"),
		file.Version, file.Checksum)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// statements splits a migration on semicolons; the embedded files contain
// no procedural blocks
func statements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
