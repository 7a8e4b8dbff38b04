//go:build sqlite

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"sourcectl/migrations"
)

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL)`
	createInfoTable = `CREATE TABLE IF NOT EXISTS schema_info (
		id INTEGER PRIMARY KEY CHECK(id=1),
		schema_version INTEGER NOT NULL,
		min_supported_schema INTEGER NOT NULL DEFAULT 1,
		app_version TEXT NOT NULL,
		applied_at TEXT NOT NULL)`
)

func runMigrations(db *sql.DB) error {
	for _, ddl := range []string{createMigrationsTable, createInfoTable} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create migration tables: %w", err)
		}
	}
	all, err := migrations.Load(migrations.Files)
	if err != nil {
		return err
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, m := range migrations.Pending(all, applied) {
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}

	var latest int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version),0) FROM schema_migrations`).Scan(&latest); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	_, err = db.Exec(`INSERT INTO schema_info(id, schema_version, min_supported_schema, app_version, applied_at)
		VALUES(1, ?, COALESCE((SELECT min_supported_schema FROM schema_info WHERE id=1),1), ?, ?)
		ON CONFLICT(id) DO UPDATE SET schema_version=excluded.schema_version, app_version=excluded.app_version, applied_at=excluded.applied_at`,
		latest, migrations.AppVersion(), appliedAt())
	if err != nil {
		return fmt.Errorf("update schema_info: %w", err)
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	applied := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, m migrations.Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %s failed: %w", m.Name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version, name, applied_at) VALUES(?, ?, ?)`, m.Version, m.Name, appliedAt()); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	return tx.Commit()
}

func appliedAt() string { return time.Now().UTC().Format(time.RFC3339) }
