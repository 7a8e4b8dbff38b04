//go:build !sqlite && !postgres

package main

import (
	"os"

	"sourcectl/internal/observability"
	"sourcectl/internal/storage"
)

// selectStore returns the in-memory store when built without storage tags.
func selectStore(logger observability.Logger) storage.Store {
	if os.Getenv("SQLITE_DSN") != "" || os.Getenv("DATABASE_URL") != "" {
		logger.Warn("database configured, but binary not built with -tags sqlite or postgres; using in-memory store")
	}
	logger.Info("using memory store")
	return storage.NewMemoryStore()
}

func sqliteStatus(string) string { return "" }

func postgresStatus() string { return "" }
