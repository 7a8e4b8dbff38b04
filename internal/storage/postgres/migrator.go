//go:build postgres

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sourcectl/migrations"
	pgmigrations "sourcectl/migrations/postgres"
)

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`
	createInfoTable = `CREATE TABLE IF NOT EXISTS schema_info (
		id INTEGER PRIMARY KEY CHECK(id=1),
		schema_version INTEGER NOT NULL,
		min_supported_schema INTEGER NOT NULL DEFAULT 1,
		app_version TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`
)

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{createMigrationsTable, createInfoTable} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create migration tables: %w", err)
		}
	}
	all, err := migrations.Load(pgmigrations.Files)
	if err != nil {
		return err
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("scan applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}

	for _, m := range migrations.Pending(all, applied) {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %s failed: %w", m.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version, name, applied_at) VALUES($1, $2, $3)`, m.Version, m.Name, time.Now().UTC()); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO schema_info(id, schema_version, min_supported_schema, app_version, applied_at)
		VALUES(1, (SELECT COALESCE(MAX(version),0) FROM schema_migrations), COALESCE((SELECT min_supported_schema FROM schema_info WHERE id=1),1), $1, $2)
		ON CONFLICT(id) DO UPDATE SET schema_version=EXCLUDED.schema_version, app_version=EXCLUDED.app_version, applied_at=EXCLUDED.applied_at`,
		migrations.AppVersion(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update schema_info: %w", err)
	}
	return nil
}

// Status returns a summary of the migration state for the given connection string.
func Status(connStr string) (string, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return "", err
	}
	defer pool.Close()

	var count, latest int
	if err := pool.QueryRow(ctx, `SELECT COUNT(1), COALESCE(MAX(version),0) FROM schema_migrations`).Scan(&count, &latest); err != nil {
		return "", fmt.Errorf("read schema_migrations: %w", err)
	}
	var schemaVersion, minSupported int
	var appVersion string
	var appliedAt time.Time
	err = pool.QueryRow(ctx, `SELECT schema_version, min_supported_schema, app_version, applied_at FROM schema_info WHERE id=1`).
		Scan(&schemaVersion, &minSupported, &appVersion, &appliedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("read schema_info: %w", err)
	}

	return fmt.Sprintf("schema_version=%d applied=%d latest=%d app_version=%s applied_at=%s min_supported=%d",
		schemaVersion, count, latest, appVersion, appliedAt.Format(time.RFC3339), minSupported), nil
}
