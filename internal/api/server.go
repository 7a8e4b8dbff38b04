// Package api is the HTTP backend that stores OAuth sources and serves the
// endpoints the source editor talks to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/getsentry/sentry-go"

	"sourcectl/internal/audit"
	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
	"sourcectl/internal/providers"
	"sourcectl/internal/secret"
	"sourcectl/internal/storage"
)

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Options holds the server's dependencies. Store and Box are required.
type Options struct {
	Store   storage.Store
	Box     *secret.Box
	Catalog *providers.Catalog
	// Media enables icon uploads; nil leaves only URL icons.
	Media       *MediaStore
	Logger      observability.Logger
	Metrics     *observability.Metrics
	AuditLogger audit.AuditLogger
}

type Server struct {
	mux         *http.ServeMux
	store       storage.Store
	box         *secret.Box
	catalog     *providers.Catalog
	media       *MediaStore
	logger      observability.Logger
	metrics     *observability.Metrics
	auditLogger audit.AuditLogger
}

// NewServer creates a new HTTP server with the given dependencies.
// If Logger is nil, a default logger will be used.
// If Catalog is nil, the built-in provider catalog is used.
// If AuditLogger is nil, a memory-based audit logger will be used.
func NewServer(mux *http.ServeMux, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = providers.Default()
	}
	auditLogger := opts.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.NewMemoryAuditLogger()
	}
	return &Server{
		mux:         mux,
		store:       opts.Store,
		box:         opts.Box,
		catalog:     catalog,
		media:       opts.Media,
		logger:      logger.WithComponent("api"),
		metrics:     opts.Metrics,
		auditLogger: auditLogger,
	}
}

func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, code int, msg string, detail string) {
	fields := []any{
		"status", code,
		"error", msg,
	}
	if detail != "" {
		fields = append(fields, "detail", detail)
	}
	if code >= 500 {
		s.logger.ErrorContext(ctx, "request failed", fields...)
		sentry.CaptureMessage(fmt.Sprintf("HTTP %d: %s (detail: %s)", code, msg, detail))
	} else {
		s.logger.WarnContext(ctx, "request failed", fields...)
	}
	writeJSON(w, code, apiError{Error: msg, Detail: detail})
}

// writeStoreErr maps a storage-layer error to the appropriate HTTP status code
// and writes the error response. It uses errors.Is() to detect sentinel errors
// from the storage package, falling back to 500 Internal Server Error for unknown errors.
func (s *Server) writeStoreErr(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeErr(ctx, w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, storage.ErrConflict):
		s.writeErr(ctx, w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, storage.ErrValidation):
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", err.Error())
	default:
		s.writeErr(ctx, w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// logAudit records a change to a source. changes may be nil.
func (s *Server) logAudit(ctx context.Context, action string, src *domain.Source, statusCode int, changes *audit.Changes) {
	actor, actorType := "anonymous", audit.ActorTypeAnonymous
	if name := actorFromContext(ctx); name != "" {
		actor, actorType = name, audit.ActorTypeToken
	}
	event := &audit.AuditEvent{
		Actor:        actor,
		ActorType:    actorType,
		Action:       action,
		ResourceType: audit.ResourceSource,
		ResourceID:   src.Slug,
		ResourceName: src.Name,
		Changes:      changes,
		RequestID:    observability.RequestIDFromContext(ctx),
		StatusCode:   statusCode,
	}
	if err := s.auditLogger.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", "error", err)
	}
	s.metrics.RecordSourceWrite(action)
}

// diffSources returns the public fields that differ between before and
// after. The encrypted secret is not serialised and so never appears.
func diffSources(before, after *domain.Source) *audit.Changes {
	b, a := toMap(before), toMap(after)
	ch := &audit.Changes{Before: map[string]any{}, After: map[string]any{}}
	for k, av := range a {
		if k == "updated_at" || k == "type" {
			continue
		}
		if bv, ok := b[k]; !ok || !reflect.DeepEqual(av, bv) {
			ch.Before[k] = b[k]
			ch.After[k] = av
		}
	}
	if len(ch.After) == 0 {
		return nil
	}
	return ch
}

func toMap(src *domain.Source) map[string]any {
	out := map[string]any{}
	if src == nil {
		return out
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// RegisterRoutes registers every route. authMW guards the /api/v3 endpoints;
// health, metrics and media stay public.
func (s *Server) RegisterRoutes(authMW Middleware) {
	if authMW == nil {
		authMW = func(next http.Handler) http.Handler { return next }
	}
	protect := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, authMW(h))
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.media != nil {
		s.mux.Handle("GET /media/", http.StripPrefix("/media/", s.media.Handler()))
	}

	protect("GET /api/v3/root/config/{$}", s.handleConfig)
	protect("GET /api/v3/sources/oauth/{$}", s.handleListSources)
	protect("POST /api/v3/sources/oauth/{$}", s.handleCreateSource)
	protect("GET /api/v3/sources/oauth/source_types/{$}", s.handleSourceTypes)
	protect("GET /api/v3/sources/oauth/{slug}/{$}", s.handleGetSource)
	protect("PATCH /api/v3/sources/oauth/{slug}/{$}", s.handleUpdateSource)
	protect("DELETE /api/v3/sources/oauth/{slug}/{$}", s.handleDeleteSource)
	protect("POST /api/v3/sources/all/{slug}/set_icon/{$}", s.handleSetIcon)
	protect("POST /api/v3/sources/all/{slug}/set_icon_url/{$}", s.handleSetIconURL)
	protect("GET /api/v3/propertymappings/source/oauth/{$}", s.handleListPropertyMappings)
	protect("GET /api/v3/events/{$}", s.handleListEvents)
}
