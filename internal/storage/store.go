package storage

import (
	"context"
	"fmt"
	"strings"

	"sourcectl/internal/domain"
	"sourcectl/internal/validation"
)

// SourceStore persists OAuth sources. Sources are addressed by slug.
type SourceStore interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	// GetSource returns ErrNotFound when no source has the slug.
	GetSource(ctx context.Context, slug string) (*domain.Source, error)
	// CreateSource assigns PK and timestamps. A duplicate slug is ErrConflict.
	CreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error)
	// UpdateSource replaces the source stored under slug. src.Slug may differ
	// from slug to rename the source.
	UpdateSource(ctx context.Context, slug string, src *domain.Source) (*domain.Source, error)
	DeleteSource(ctx context.Context, slug string) error
}

// PropertyMappingStore lists the OAuth source property mappings. Mappings
// are read-only; they are seeded by migrations or NewMemoryStore.
type PropertyMappingStore interface {
	ListPropertyMappings(ctx context.Context, ordering string) ([]domain.PropertyMapping, error)
}

// Store is everything the source API needs from persistence.
type Store interface {
	SourceStore
	PropertyMappingStore
	// Close releases resources held by the store
	Close() error
}

// ValidateSource checks the fields every stored source must carry.
func ValidateSource(src *domain.Source) error {
	if src == nil {
		return fmt.Errorf("source required: %w", ErrValidation)
	}
	if err := validation.ValidateName(src.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateSlug(src.Slug); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if src.ProviderType == "" {
		return fmt.Errorf("provider_type required: %w", ErrValidation)
	}
	if !domain.IsValidUserMatchingMode(src.UserMatchingMode) {
		return fmt.Errorf("invalid user_matching_mode %q: %w", src.UserMatchingMode, ErrValidation)
	}
	endpoints := []struct {
		field string
		value *string
	}{
		{"authorization_url", src.AuthorizationURL},
		{"access_token_url", src.AccessTokenURL},
		{"profile_url", src.ProfileURL},
		{"request_token_url", src.RequestTokenURL},
		{"oidc_well_known_url", src.OIDCWellKnownURL},
		{"oidc_jwks_url", src.OIDCJWKSURL},
	}
	for _, e := range endpoints {
		if e.value == nil {
			continue
		}
		if err := validation.ValidateEndpointURL(e.field, *e.value); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}

// MappingOrder is a parsed ?ordering= value for property mappings.
type MappingOrder struct {
	Column string
	Desc   bool
}

// ParseMappingOrdering accepts "", "name", "managed" or "pk", optionally
// prefixed with "-" for descending order. The empty ordering sorts by name.
func ParseMappingOrdering(ordering string) (MappingOrder, error) {
	o := MappingOrder{Column: "name"}
	if ordering == "" {
		return o, nil
	}
	if strings.HasPrefix(ordering, "-") {
		o.Desc = true
		ordering = ordering[1:]
	}
	switch ordering {
	case "name", "managed", "pk":
		o.Column = ordering
	default:
		return MappingOrder{}, fmt.Errorf("unknown ordering %q: %w", ordering, ErrValidation)
	}
	return o, nil
}

// OrderBy renders the ordering as an SQL ORDER BY list. Name and pk break
// ties so the result is stable across backends.
func (o MappingOrder) OrderBy() string {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	col := o.Column
	if col == "managed" {
		col = "COALESCE(managed, '')"
	}
	return fmt.Sprintf("%s %s, name ASC, pk ASC", col, dir)
}

func (o MappingOrder) less(a, b domain.PropertyMapping) bool {
	var ka, kb string
	switch o.Column {
	case "managed":
		ka, kb = a.Managed, b.Managed
	case "pk":
		ka, kb = a.PK, b.PK
	default:
		ka, kb = a.Name, b.Name
	}
	if ka != kb {
		if o.Desc {
			return ka > kb
		}
		return ka < kb
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.PK < b.PK
}

// DefaultPropertyMappings are the managed mappings every installation ships
// with. The SQL migrations seed the same rows.
func DefaultPropertyMappings() []domain.PropertyMapping {
	return []domain.PropertyMapping{
		{PK: "5d6b5f3e-8f0c-4b61-9f0e-2b0e7b1c0a01", Name: "OAuth Source: email", Managed: "sourced.io/sources/oauth/email"},
		{PK: "5d6b5f3e-8f0c-4b61-9f0e-2b0e7b1c0a02", Name: "OAuth Source: name", Managed: "sourced.io/sources/oauth/name"},
		{PK: "5d6b5f3e-8f0c-4b61-9f0e-2b0e7b1c0a03", Name: "OAuth Source: username", Managed: "sourced.io/sources/oauth/username"},
		{PK: "5d6b5f3e-8f0c-4b61-9f0e-2b0e7b1c0a04", Name: "OAuth Source: groups", Managed: "sourced.io/sources/oauth/groups"},
	}
}

// HealthCheck provides database health checking.
type HealthCheck interface {
	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Stats returns database connection pool statistics.
	Stats() *DBStats
}

// DBStats contains database connection pool statistics.
type DBStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       int64 // nanoseconds
}
