package api

import (
	"context"
	"net/http"
	"strconv"

	"sourcectl/internal/audit"
	"sourcectl/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"can_save_media": s.media != nil,
	})
}

// ReadinessResponse represents the JSON response for the readiness check endpoint.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReady checks if the application is ready to accept traffic.
// Unlike /healthz (liveness), this endpoint verifies that dependencies are accessible.
// Returns 200 OK if all checks pass, 503 Service Unavailable otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)
	status := "ok"

	// Database check: use Ping if the store supports it, otherwise fall back to listing sources
	type pinger interface {
		Ping(ctx context.Context) error
	}
	var err error
	if hc, ok := s.store.(pinger); ok {
		err = hc.Ping(ctx)
	} else {
		_, err = s.store.ListSources(ctx)
	}
	if err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		s.logger.ErrorContext(ctx, "readiness check failed", "check", "database", "error", err.Error())
	} else {
		checks["database"] = "ok"
	}

	if s.media != nil {
		if err := s.media.Check(); err != nil {
			checks["media"] = "error"
			status = "unhealthy"
			s.logger.ErrorContext(ctx, "readiness check failed", "check", "media", "error", err.Error())
		} else {
			checks["media"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadinessResponse{Status: status, Checks: checks})
}

// handleConfig reports what the server can do. Editors ask before every
// icon step, so the answer must reflect the current media setup.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := domain.ServerConfig{Capabilities: []domain.Capability{}}
	if s.media != nil {
		cfg.Capabilities = append(cfg.Capabilities, domain.CapabilityCanSaveMedia)
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.ListOptions{
		Action:       q.Get("action"),
		ResourceType: audit.ResourceSource,
		ResourceID:   q.Get("resource_id"),
		Actor:        q.Get("actor"),
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				s.writeErr(r.Context(), w, http.StatusBadRequest, "invalid "+name, v)
				return
			}
			*dst = n
		}
	}
	events, total, err := s.auditLogger.List(r.Context(), opts)
	if err != nil {
		s.writeErr(r.Context(), w, http.StatusInternalServerError, "internal error", err.Error())
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": events, "total": total})
}
