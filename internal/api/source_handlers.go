package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-jose/go-jose/v4"

	"sourcectl/internal/audit"
	"sourcectl/internal/domain"
	"sourcectl/internal/storage"
	"sourcectl/internal/validation"
)

// present fills in the provider type description clients resolve URLs from.
func (s *Server) present(src *domain.Source) *domain.Source {
	out := src.Clone()
	if pt, ok := s.catalog.Get(out.ProviderType); ok {
		out.Type = &pt
	} else {
		out.Type = nil
	}
	return out
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	out := make([]*domain.Source, 0, len(sources))
	for i := range sources {
		out = append(out, s.present(&sources[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.GetSource(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present(src))
}

func (s *Server) handleSourceTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Lookup(r.URL.Query().Get("name")))
}

func (s *Server) handleListPropertyMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.ListPropertyMappings(r.Context(), r.URL.Query().Get("ordering"))
	if err != nil {
		s.writeStoreErr(r.Context(), w, err)
		return
	}
	if mappings == nil {
		mappings = []domain.PropertyMapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": mappings})
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req domain.SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	if req.ConsumerSecret == nil || *req.ConsumerSecret == "" {
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", "consumer_secret required")
		return
	}

	src := &domain.Source{
		Enabled:          true,
		UserMatchingMode: domain.UserMatchingIdentifier,
		UserPathTemplate: domain.DefaultUserPathTemplate,
	}
	src.Apply(&req)
	if err := s.validateSource(ctx, src); err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	sealed, err := s.box.Seal(*req.ConsumerSecret)
	if err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "internal error", err.Error())
		return
	}
	src.ConsumerSecretEncrypted = sealed

	created, err := s.store.CreateSource(ctx, src)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.logger.InfoContext(ctx, "source created", "slug", created.Slug, "provider_type", created.ProviderType)
	s.logAudit(ctx, audit.ActionCreate, created, http.StatusCreated, &audit.Changes{After: toMap(created)})
	writeJSON(w, http.StatusCreated, s.present(created))
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")
	var req domain.SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	if req.ConsumerSecret != nil && *req.ConsumerSecret == "" {
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", "consumer_secret must not be blank")
		return
	}
	if req.Slug != nil && *req.Slug != slug {
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", "slug cannot be changed")
		return
	}

	before, err := s.store.GetSource(ctx, slug)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	src := before.Clone()
	src.Apply(&req)
	if err := s.validateSource(ctx, src); err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	if req.ConsumerSecret != nil {
		sealed, err := s.box.Seal(*req.ConsumerSecret)
		if err != nil {
			s.writeErr(ctx, w, http.StatusInternalServerError, "internal error", err.Error())
			return
		}
		src.ConsumerSecretEncrypted = sealed
	}

	updated, err := s.store.UpdateSource(ctx, slug, src)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.logger.InfoContext(ctx, "source updated", "slug", updated.Slug)
	s.logAudit(ctx, audit.ActionUpdate, updated, http.StatusOK, diffSources(before, updated))
	writeJSON(w, http.StatusOK, s.present(updated))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")
	src, err := s.store.GetSource(ctx, slug)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	if err := s.store.DeleteSource(ctx, slug); err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	if s.media != nil {
		if err := s.media.RemoveURL(src.Icon); err != nil {
			s.logger.WarnContext(ctx, "remove icon failed", "slug", slug, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "source deleted", "slug", slug)
	s.logAudit(ctx, audit.ActionDelete, src, http.StatusNoContent, &audit.Changes{Before: toMap(src)})
	w.WriteHeader(http.StatusNoContent)
}

// handleSetIcon stores an uploaded icon file or, with clear=true, removes
// the current icon.
func (s *Server) handleSetIcon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")
	if s.media == nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "media storage disabled", "server cannot save media; use set_icon_url")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxIconBytes+1<<20)
	if err := r.ParseMultipartForm(maxIconBytes); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid form", err.Error())
		return
	}

	src, err := s.store.GetSource(ctx, slug)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	before := src.Clone()

	file, header, ferr := r.FormFile("file")
	switch {
	case ferr == nil:
		defer func() { _ = file.Close() }()
		if err := s.media.RemoveURL(src.Icon); err != nil {
			s.logger.WarnContext(ctx, "remove icon failed", "slug", slug, "error", err)
		}
		iconURL, err := s.media.SaveIcon(slug, header.Filename, file)
		if err != nil {
			s.writeStoreErr(ctx, w, err)
			return
		}
		src.Icon = iconURL
	case r.FormValue("clear") == "true":
		if err := s.media.RemoveURL(src.Icon); err != nil {
			s.writeErr(ctx, w, http.StatusInternalServerError, "internal error", err.Error())
			return
		}
		src.Icon = ""
	case errors.Is(ferr, http.ErrMissingFile):
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", "file or clear=true required")
		return
	default:
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid form", ferr.Error())
		return
	}

	s.saveIcon(ctx, w, audit.ActionSetIcon, slug, before, src)
}

func (s *Server) handleSetIconURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")
	var in struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	if err := validation.ValidateIconURL(in.URL); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	src, err := s.store.GetSource(ctx, slug)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	before := src.Clone()
	if s.media != nil {
		if err := s.media.RemoveURL(src.Icon); err != nil {
			s.logger.WarnContext(ctx, "remove icon failed", "slug", slug, "error", err)
		}
	}
	src.Icon = in.URL
	s.saveIcon(ctx, w, audit.ActionSetIconURL, slug, before, src)
}

func (s *Server) saveIcon(ctx context.Context, w http.ResponseWriter, action, slug string, before, src *domain.Source) {
	updated, err := s.store.UpdateSource(ctx, slug, src)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.logger.InfoContext(ctx, "source icon changed", "slug", slug, "icon", updated.Icon)
	s.logAudit(ctx, action, updated, http.StatusOK, diffSources(before, updated))
	writeJSON(w, http.StatusOK, s.present(updated))
}

// validateSource checks src against the catalog, the known property
// mappings and the storage rules.
func (s *Server) validateSource(ctx context.Context, src *domain.Source) error {
	if err := storage.ValidateSource(src); err != nil {
		return err
	}
	if _, ok := s.catalog.Get(src.ProviderType); !ok {
		return fmt.Errorf("unknown provider_type %q: %w", src.ProviderType, storage.ErrValidation)
	}
	if err := validateJWKS(src.OIDCJWKS); err != nil {
		return err
	}
	if len(src.UserPropertyMappings) == 0 && len(src.GroupPropertyMappings) == 0 {
		return nil
	}
	mappings, err := s.store.ListPropertyMappings(ctx, "")
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		known[m.PK] = true
	}
	for field, pks := range map[string][]string{
		"user_property_mappings":  src.UserPropertyMappings,
		"group_property_mappings": src.GroupPropertyMappings,
	} {
		for _, pk := range pks {
			if !known[pk] {
				return fmt.Errorf("%s: unknown property mapping %q: %w", field, pk, storage.ErrValidation)
			}
		}
	}
	return nil
}

// validateJWKS rejects a "keys" member that does not hold valid JWKs.
func validateJWKS(jwks map[string]any) error {
	if _, ok := jwks["keys"]; !ok {
		return nil
	}
	raw, err := json.Marshal(jwks)
	if err != nil {
		return fmt.Errorf("oidc_jwks: %v: %w", err, storage.ErrValidation)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("oidc_jwks: invalid key set: %v: %w", err, storage.ErrValidation)
	}
	for i, k := range set.Keys {
		if !k.Valid() {
			return fmt.Errorf("oidc_jwks: key %d (%q) is not valid: %w", i, k.KeyID, storage.ErrValidation)
		}
	}
	return nil
}
