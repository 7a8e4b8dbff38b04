package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sourcectl/internal/audit"
	"sourcectl/internal/observability"
	"sourcectl/internal/secret"
	"sourcectl/internal/storage"
)

type testEnv struct {
	srv   *Server
	store *storage.MemoryStore
	audit *audit.MemoryAuditLogger
	box   *secret.Box
	mux   *http.ServeMux
}

// setupTestServer builds a server over a memory store with routes
// registered and authentication disabled. withMedia enables icon uploads
// into a temporary directory.
func setupTestServer(t *testing.T, withMedia bool) *testEnv {
	t.Helper()
	key, err := secret.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	box, err := secret.NewBox(key)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	var media *MediaStore
	if withMedia {
		media, err = NewMediaStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewMediaStore: %v", err)
		}
	}
	env := &testEnv{
		store: storage.NewMemoryStore(),
		audit: audit.NewMemoryAuditLogger(),
		box:   box,
		mux:   http.NewServeMux(),
	}
	env.srv = NewServer(env.mux, Options{
		Store:       env.store,
		Box:         box,
		Media:       media,
		Logger:      observability.Discard(),
		Metrics:     observability.NewMetrics(observability.DefaultMetricsConfig()),
		AuditLogger: env.audit,
	})
	env.srv.RegisterRoutes(nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func githubSource(slug string) map[string]any {
	return map[string]any{
		"name":            "GitHub",
		"slug":            slug,
		"provider_type":   "github",
		"consumer_key":    "client-id",
		"consumer_secret": "client-secret",
	}
}
