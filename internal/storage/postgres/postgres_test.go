//go:build postgres

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sourcectl/internal/domain"
	"sourcectl/internal/storage"
)

// testDB holds a shared database connection for test suites.
// It's initialized once via TestMain and reused across test functions.
var testDB struct {
	connStr   string
	store     *Store
	container testcontainers.Container
}

// TestMain sets up a PostgreSQL database for tests.
// It supports two modes:
//  1. DATABASE_URL env var - uses an existing PostgreSQL instance (CI/custom)
//  2. testcontainers-go - automatically starts a PostgreSQL container
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("sourcectl_test"),
			tcpostgres.WithUsername("sourcectl"),
			tcpostgres.WithPassword("sourcectl"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}
		testDB.container = container

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
			_ = container.Terminate(ctx)
			os.Exit(1)
		}
	}

	testDB.connStr = connStr

	// Create the store (runs migrations)
	store, err := New(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store: %v\n", err)
		if testDB.container != nil {
			_ = testDB.container.Terminate(ctx)
		}
		os.Exit(1)
	}
	testDB.store = store

	code := m.Run()

	_ = store.Close()
	if testDB.container != nil {
		_ = testDB.container.Terminate(ctx)
	}

	os.Exit(code)
}

// cleanSources removes all sources so each test starts empty.
func cleanSources(t *testing.T) {
	t.Helper()
	if _, err := testDB.store.Pool().Exec(context.Background(), `DELETE FROM sources`); err != nil {
		t.Fatalf("clean sources: %v", err)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	// A second store on the same database must skip applied migrations.
	s, err := New(testDB.connStr)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	defer s.Close()

	status, err := Status(testDB.connStr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status, "schema_version=1") {
		t.Errorf("status = %s", status)
	}
}

func TestSources_CRUD(t *testing.T) {
	cleanSources(t)
	ctx := context.Background()
	s := testDB.store

	in := &domain.Source{
		Name:                 "GitHub",
		Slug:                 "github-1",
		Enabled:              true,
		ProviderType:         "github",
		UserMatchingMode:     domain.UserMatchingIdentifier,
		ConsumerKey:          "client",
		AuthorizationURL:     domain.StringPtr("https://github.example/authorize"),
		OIDCJWKS:             map[string]any{"keys": []any{}},
		UserPropertyMappings: []string{"m1"},
	}
	created, err := s.CreateSource(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PK == "" || created.AuthorizationURL == nil || created.ProfileURL != nil {
		t.Fatalf("created = %+v", created)
	}
	if len(created.UserPropertyMappings) != 1 || created.GroupPropertyMappings == nil {
		t.Errorf("mappings = %v / %v", created.UserPropertyMappings, created.GroupPropertyMappings)
	}

	if _, err := s.CreateSource(ctx, in); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate slug: err = %v", err)
	}

	upd := created.Clone()
	upd.Name = "GitHub Enterprise"
	upd.Slug = "ghe"
	got, err := s.UpdateSource(ctx, "github-1", upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.PK != created.PK || got.Name != "GitHub Enterprise" {
		t.Errorf("updated = %+v", got)
	}
	if _, err := s.GetSource(ctx, "github-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old slug: err = %v", err)
	}
	if _, err := s.UpdateSource(ctx, "missing", upd); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update missing: err = %v", err)
	}

	if err := s.DeleteSource(ctx, "ghe"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err := s.ListSources(ctx)
	if err != nil || len(list) != 0 {
		t.Errorf("list after delete = %v, %v", list, err)
	}
}

func TestPropertyMappings_Seeded(t *testing.T) {
	got, err := testDB.store.ListPropertyMappings(context.Background(), "managed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := storage.DefaultPropertyMappings()
	if len(got) != len(want) {
		t.Fatalf("mappings = %d, want %d", len(got), len(want))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Managed > got[i].Managed {
			t.Errorf("not ordered by managed: %v", got)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	if err := testDB.store.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := testDB.store.Stats(); st.MaxOpenConnections == 0 {
		t.Errorf("stats = %+v", st)
	}
}
