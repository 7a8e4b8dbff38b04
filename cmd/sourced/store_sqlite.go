//go:build sqlite && !postgres

package main

import (
	"sourcectl/internal/observability"
	"sourcectl/internal/storage"
	sqlitestore "sourcectl/internal/storage/sqlite"
)

// selectStore returns a SQLite-backed store when built with the 'sqlite' tag.
// Configure with env var SQLITE_DSN (e.g., file:sourced.db?cache=shared&_fk=1)
func selectStore(logger observability.Logger) storage.Store {
	dsn := sqliteDSN()
	st, err := sqlitestore.New(dsn)
	if err != nil {
		logger.Error("sqlite init failed; falling back to memory store", "error", err)
		return storage.NewMemoryStore()
	}
	logger.Info("using sqlite store", "dsn", dsn)
	return st
}

func sqliteStatus(dsn string) string {
	s, err := sqlitestore.Status(dsn)
	if err != nil {
		return ""
	}
	return s
}

func postgresStatus() string { return "" }
