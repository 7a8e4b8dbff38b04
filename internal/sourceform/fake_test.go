package sourceform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sourcectl/internal/domain"
)

type call struct {
	op    string
	slug  string
	req   *domain.SourceRequest
	file  *domain.IconUpload
	clear bool
	url   string
}

// fakeAPI records every collaborator call.
type fakeAPI struct {
	mu       sync.Mutex
	calls    []call
	sources  map[string]*domain.Source
	types    []domain.ProviderType
	mappings []domain.PropertyMapping
	config   domain.ServerConfig

	saveErr error
	iconErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		sources: map[string]*domain.Source{},
		types: []domain.ProviderType{
			{Name: "github", URLsCustomizable: true, AuthorizationURL: "https://github.com/login/oauth/authorize",
				AccessTokenURL: "https://github.com/login/oauth/access_token", ProfileURL: "https://api.github.com/user"},
			{Name: "openidconnect", URLsCustomizable: true},
			{Name: "twitter", URLsCustomizable: true, RequestTokenURL: "https://api.twitter.com/oauth/request_token"},
		},
		mappings: []domain.PropertyMapping{
			{PK: "m1", Name: "email", Managed: "sourced.io/sources/oauth/email"},
			{PK: "m2", Name: "groups"},
		},
	}
}

func (f *fakeAPI) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeAPI) callsOf(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) LoadSource(_ context.Context, slug string) (*domain.Source, error) {
	f.record(call{op: "load", slug: slug})
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[slug]
	if !ok {
		return nil, fmt.Errorf("source %q: not found", slug)
	}
	return src.Clone(), nil
}

func (f *fakeAPI) ListProviderTypes(_ context.Context, name string) ([]domain.ProviderType, error) {
	f.record(call{op: "types", slug: name})
	var out []domain.ProviderType
	for _, t := range f.types {
		if strings.HasPrefix(t.Name, name) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) ListPropertyMappings(_ context.Context, ordering string) ([]domain.PropertyMapping, error) {
	f.record(call{op: "mappings", slug: ordering})
	return f.mappings, nil
}

func (f *fakeAPI) CreateSource(_ context.Context, req *domain.SourceRequest) (*domain.Source, error) {
	f.record(call{op: "create", req: req})
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	src := &domain.Source{}
	src.Apply(req)
	f.mu.Lock()
	f.sources[src.Slug] = src
	f.mu.Unlock()
	return src.Clone(), nil
}

func (f *fakeAPI) UpdateSourcePartial(_ context.Context, slug string, req *domain.SourceRequest) (*domain.Source, error) {
	f.record(call{op: "update", slug: slug, req: req})
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[slug]
	if !ok {
		return nil, fmt.Errorf("source %q: not found", slug)
	}
	src.Apply(req)
	return src.Clone(), nil
}

func (f *fakeAPI) SetIconFile(_ context.Context, slug string, file *domain.IconUpload, clear bool) error {
	f.record(call{op: "set_icon", slug: slug, file: file, clear: clear})
	return f.iconErr
}

func (f *fakeAPI) SetIconURL(_ context.Context, slug, url string) error {
	f.record(call{op: "set_icon_url", slug: slug, url: url})
	return f.iconErr
}

func (f *fakeAPI) GetConfig(context.Context) (*domain.ServerConfig, error) {
	f.record(call{op: "config"})
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.config
	return &cfg, nil
}

func mediaConfig() domain.ServerConfig {
	return domain.ServerConfig{Capabilities: []domain.Capability{domain.CapabilityCanSaveMedia}}
}
