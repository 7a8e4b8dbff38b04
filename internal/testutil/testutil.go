// Package testutil provides testing utilities for source API integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sourcectl/internal/api"
	"sourcectl/internal/audit"
	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
	"sourcectl/internal/secret"
	"sourcectl/internal/storage"
)

// TestServerConfig holds configuration for creating a test server.
type TestServerConfig struct {
	// AdminToken enables bearer authentication with this token.
	AdminToken string
	// EnableMedia lets the server store uploaded icons in a temp dir.
	EnableMedia bool
	// EnableRateLimit enables rate limiting middleware.
	EnableRateLimit bool
	// RateLimitConfig configures rate limiting if enabled.
	RateLimitConfig api.RateLimitConfig
	// Mappings seeds the property mapping store.
	Mappings []domain.PropertyMapping
}

// TestServerComponents holds all the components created for a test server.
type TestServerComponents struct {
	// Server is the test HTTP server.
	Server *httptest.Server
	// Store is the storage backend.
	Store *storage.MemoryStore
	// Box seals consumer secrets.
	Box *secret.Box
	// AuditLogger is the audit logger.
	AuditLogger *audit.MemoryAuditLogger
	// Metrics is the metrics collector.
	Metrics *observability.Metrics
}

// NewTestServer creates a fully configured source API server with the
// production middleware chain. It is closed when the test ends.
func NewTestServer(t *testing.T, cfg TestServerConfig) *TestServerComponents {
	t.Helper()

	key, err := secret.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	box, err := secret.NewBox(key)
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}

	var media *api.MediaStore
	if cfg.EnableMedia {
		if media, err = api.NewMediaStore(t.TempDir()); err != nil {
			t.Fatalf("failed to create media store: %v", err)
		}
	}

	logger := observability.Discard()
	store := storage.NewMemoryStore(cfg.Mappings...)
	metrics := observability.NewMetrics(observability.MetricsConfig{
		Enabled:   true,
		Namespace: "sourced_test",
		Version:   "test",
	})
	auditLogger := audit.NewMemoryAuditLogger(audit.WithMaxEvents(1000))

	mux := http.NewServeMux()
	srv := api.NewServer(mux, api.Options{
		Store:       store,
		Box:         box,
		Media:       media,
		Logger:      logger,
		Metrics:     metrics,
		AuditLogger: auditLogger,
	})

	var authMW api.Middleware
	if cfg.AdminToken != "" {
		hash, err := secret.HashToken(cfg.AdminToken)
		if err != nil {
			t.Fatalf("failed to hash token: %v", err)
		}
		authMW = api.AuthMiddleware(hash, logger)
	}
	srv.RegisterRoutes(authMW)

	middlewares := []api.Middleware{
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger),
	}
	if cfg.EnableRateLimit {
		middlewares = append(middlewares, api.RateLimitMiddleware(cfg.RateLimitConfig, logger))
	}
	testServer := httptest.NewServer(api.ApplyMiddlewares(mux, middlewares...))
	t.Cleanup(func() {
		testServer.Close()
		_ = store.Close()
	})

	return &TestServerComponents{
		Server:      testServer,
		Store:       store,
		Box:         box,
		AuditLogger: auditLogger,
		Metrics:     metrics,
	}
}

// URL returns the full URL for a given path.
func (c *TestServerComponents) URL(path string) string {
	return c.Server.URL + path
}

// AuthenticatedRequest creates an HTTP request with Bearer token authentication.
func AuthenticatedRequest(method, url, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoRequest performs an HTTP request and returns the response.
func DoRequest(t *testing.T, client *http.Client, req *http.Request) *http.Response {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, got, expected int) {
	t.Helper()
	if got != expected {
		t.Errorf("expected status %d, got %d", expected, got)
	}
}

// JSONBody creates an io.Reader from a JSON-serializable value.
func JSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return bytes.NewReader(data)
}

// ReadJSONResponse reads and unmarshals a JSON response body.
func ReadJSONResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal response: %v\nBody: %s", err, string(data))
	}
}
