//go:build sqlite && postgres

package main

import (
	"os"

	"sourcectl/internal/observability"
	"sourcectl/internal/storage"
	pgstore "sourcectl/internal/storage/postgres"
	sqlitestore "sourcectl/internal/storage/sqlite"
)

// selectStore picks PostgreSQL if DATABASE_URL is set, otherwise SQLite.
func selectStore(logger observability.Logger) storage.Store {
	if os.Getenv("DATABASE_URL") != "" {
		st, err := pgstore.New(databaseURL())
		if err != nil {
			logger.Error("postgres init failed; falling back to sqlite", "error", err)
		} else {
			logger.Info("using postgres store")
			return st
		}
	}
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

func postgresStatus() string {
	if os.Getenv("DATABASE_URL") == "" {
		return ""
	}
	s, err := pgstore.Status(databaseURL())
	if err != nil {
		return ""
	}
	return s
}
