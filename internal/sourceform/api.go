// Package sourceform is the editing model for OAuth sources: it resolves the
// provider type behind a model name, projects the fields an administrator
// can see and must fill, and turns the submitted values into a create or
// partial-update call followed by the icon step.
package sourceform

import (
	"context"

	"sourcectl/internal/domain"
)

// API is the backend surface the form depends on.
type API interface {
	LoadSource(ctx context.Context, slug string) (*domain.Source, error)
	ListProviderTypes(ctx context.Context, name string) ([]domain.ProviderType, error)
	ListPropertyMappings(ctx context.Context, ordering string) ([]domain.PropertyMapping, error)
	CreateSource(ctx context.Context, req *domain.SourceRequest) (*domain.Source, error)
	UpdateSourcePartial(ctx context.Context, slug string, req *domain.SourceRequest) (*domain.Source, error)
	SetIconFile(ctx context.Context, slug string, file *domain.IconUpload, clear bool) error
	SetIconURL(ctx context.Context, slug, url string) error
}

// CapabilitiesSource returns the backend's current capability set.
type CapabilitiesSource interface {
	GetConfig(ctx context.Context) (*domain.ServerConfig, error)
}

// ProviderTypeLister is the part of API the resolver needs.
type ProviderTypeLister interface {
	ListProviderTypes(ctx context.Context, name string) ([]domain.ProviderType, error)
}
