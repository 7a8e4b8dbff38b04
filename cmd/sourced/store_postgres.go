//go:build postgres && !sqlite

package main

import (
	"sourcectl/internal/observability"
	"sourcectl/internal/storage"
	pgstore "sourcectl/internal/storage/postgres"
)

// selectStore returns a PostgreSQL-backed store when built with the 'postgres' tag.
// Configure with env var DATABASE_URL.
func selectStore(logger observability.Logger) storage.Store {
	st, err := pgstore.New(databaseURL())
	if err != nil {
		logger.Error("postgres init failed; falling back to memory store", "error", err)
		return storage.NewMemoryStore()
	}
	logger.Info("using postgres store")
	return st
}

func sqliteStatus(string) string { return "" }

func postgresStatus() string {
	s, err := pgstore.Status(databaseURL())
	if err != nil {
		return ""
	}
	return s
}
