package sourceform

import (
	"context"
	"errors"
	"fmt"

	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
)

// ErrNoInstance is returned by operations that need a loaded source.
var ErrNoInstance = errors.New("no source loaded")

// IconError reports a failed icon step after the source itself was saved.
// The save is not rolled back; Source is the saved record.
type IconError struct {
	Slug   string
	Source *domain.Source
	Err    error
}

func (e *IconError) Error() string {
	return fmt.Sprintf("source %q saved but icon update failed: %v", e.Slug, e.Err)
}

func (e *IconError) Unwrap() error { return e.Err }

// Form is the editing session for one OAuth source. It is driven by a
// single host goroutine; only provider type resolution runs in the
// background.
type Form struct {
	api      API
	caps     CapabilitiesSource
	logger   observability.Logger
	resolver *Resolver

	instance *domain.Source
	mappings []domain.PropertyMapping
	icon     IconState
}

// NewForm creates an empty form. Capabilities are queried from caps at
// icon time, never cached.
func NewForm(api API, caps CapabilitiesSource, logger observability.Logger) *Form {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	return &Form{
		api:      api,
		caps:     caps,
		logger:   logger.WithComponent("sourceform"),
		resolver: NewResolver(api, logger),
	}
}

// LoadInstance fetches the source to edit and makes its provider type
// active. The icon clear flag is reset.
func (f *Form) LoadInstance(ctx context.Context, slug string) (*domain.Source, error) {
	src, err := f.api.LoadSource(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load source %q: %w", slug, err)
	}
	f.instance = src.Clone()
	f.icon.Reset(src.Icon)

	switch {
	case src.Type != nil:
		f.resolver.Set(src.Type)
	case src.ProviderType != "":
		if _, err := f.resolver.Resolve(ctx, src.ProviderType); err != nil {
			return nil, fmt.Errorf("resolve provider type %q: %w", src.ProviderType, err)
		}
	default:
		f.resolver.Set(nil)
	}
	return src, nil
}

// Reload fetches the loaded source again, e.g. after an icon failure.
func (f *Form) Reload(ctx context.Context) (*domain.Source, error) {
	if f.instance == nil {
		return nil, ErrNoInstance
	}
	return f.LoadInstance(ctx, f.instance.Slug)
}

// Load populates the property mapping options.
func (f *Form) Load(ctx context.Context) error {
	mappings, err := f.api.ListPropertyMappings(ctx, PropertyMappingOrdering)
	if err != nil {
		return fmt.Errorf("list property mappings: %w", err)
	}
	f.mappings = mappings
	return nil
}

// SetModelName is the change notification for the model name input. The
// matching provider type is resolved in the background.
func (f *Form) SetModelName(ctx context.Context, modelName string) {
	f.resolver.ModelNameChanged(ctx, modelName)
}

// ResolveModel resolves the provider type for modelName and waits for it.
func (f *Form) ResolveModel(ctx context.Context, modelName string) (*domain.ProviderType, error) {
	return f.resolver.Resolve(ctx, modelName)
}

// WaitResolved blocks until background resolution has settled.
func (f *Form) WaitResolved() { f.resolver.Wait() }

// ProviderType returns the active provider type, nil if none resolved.
func (f *Form) ProviderType() *domain.ProviderType { return f.resolver.Active() }

// Instance returns a copy of the loaded source, nil when creating.
func (f *Form) Instance() *domain.Source { return f.instance.Clone() }

// Icon returns the icon state of the current cycle.
func (f *Form) Icon() *IconState { return &f.icon }

// Project evaluates the form for the given capability snapshot.
func (f *Form) Project(cfg domain.ServerConfig) Projection {
	return Project(Input{
		ProviderType: f.resolver.Active(),
		Instance:     f.instance,
		Config:       cfg,
		Mappings:     f.mappings,
	})
}

// Send saves the source and then applies the icon.
//
// A loaded source is partially updated by its slug, otherwise a new one is
// created. The icon step runs only after the save succeeded; its failure is
// returned as *IconError together with the saved source. The icon state is
// only reset after a successful save.
func (f *Form) Send(ctx context.Context, v Values) (*domain.Source, error) {
	req, err := BuildRequest(v, f.resolver.Active())
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}
	change := iconChange{file: f.icon.File(), clear: v.ClearIcon || f.icon.Clear()}
	if change.file != nil && change.clear {
		return nil, ErrIconConflict
	}

	var saved *domain.Source
	if f.instance != nil {
		saved, err = f.api.UpdateSourcePartial(ctx, f.instance.Slug, req)
	} else {
		saved, err = f.api.CreateSource(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("save source: %w", err)
	}
	f.logger.InfoContext(ctx, "source saved", "slug", saved.Slug, "provider_type", *req.ProviderType,
		"update", f.instance != nil)

	icon, err := f.applyIcon(ctx, saved, req.Icon, change)
	if err != nil {
		f.logger.WarnContext(ctx, "icon update failed", "slug", saved.Slug, "error", err)
		f.instance = saved.Clone()
		return saved, &IconError{Slug: saved.Slug, Source: saved, Err: err}
	}
	f.instance = saved.Clone()
	f.icon.Reset(icon)
	return saved, nil
}

type iconChange struct {
	file  *domain.IconUpload
	clear bool
}

// applyIcon runs the icon step for a saved source and returns the icon
// reference the source holds afterwards. Without media support the URL is
// always written and a clear request has nothing to act on.
func (f *Form) applyIcon(ctx context.Context, saved *domain.Source, iconURL string, change iconChange) (string, error) {
	cfg, err := f.caps.GetConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("get capabilities: %w", err)
	}
	if !cfg.Has(domain.CapabilityCanSaveMedia) {
		if change.clear {
			f.logger.DebugContext(ctx, "icon clear ignored without media support", "slug", saved.Slug)
		}
		return iconURL, f.api.SetIconURL(ctx, saved.Slug, iconURL)
	}
	switch {
	case change.clear:
		return "", f.api.SetIconFile(ctx, saved.Slug, nil, true)
	case change.file != nil:
		icon := saved.Icon
		if icon == "" {
			icon = change.file.Filename
		}
		return icon, f.api.SetIconFile(ctx, saved.Slug, change.file, false)
	}
	return saved.Icon, nil
}
