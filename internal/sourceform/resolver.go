package sourceform

import (
	"context"
	"errors"
	"strings"
	"sync"

	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
)

// ModelNamePrefix is removed from a model name to obtain the provider type
// name, e.g. "githuboauthsource" -> "github".
const ModelNamePrefix = "oauthsource"

// ProviderTypeName derives the provider type name used for the lookup.
func ProviderTypeName(modelName string) string {
	return strings.Replace(modelName, ModelNamePrefix, "", 1)
}

// Resolver keeps the active provider type for a form.
//
// Each model-name change starts a new lookup and cancels the previous one.
// A lookup result is applied only if no newer change (or explicit Set) has
// happened since it started, so the latest input wins even when responses
// arrive out of order.
type Resolver struct {
	lister ProviderTypeLister
	logger observability.Logger

	mu     sync.Mutex
	active *domain.ProviderType
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResolver creates a resolver backed by lister.
func NewResolver(lister ProviderTypeLister, logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	return &Resolver{lister: lister, logger: logger.WithComponent("resolver")}
}

// Active returns a copy of the active provider type, or nil when none is
// resolved.
func (r *Resolver) Active() *domain.ProviderType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	pt := *r.active
	return &pt
}

// Set makes pt the active type and supersedes any lookup in flight.
func (r *Resolver) Set(pt *domain.ProviderType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supersedeLocked()
	r.active = copyType(pt)
}

// Resolve looks up the provider type for modelName and makes the first
// match active. No match leaves no active type and is not an error.
func (r *Resolver) Resolve(ctx context.Context, modelName string) (*domain.ProviderType, error) {
	r.mu.Lock()
	r.supersedeLocked()
	gen := r.gen
	r.mu.Unlock()

	pt, err := r.lookup(ctx, modelName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.gen {
		r.active = copyType(pt)
	}
	return copyType(pt), nil
}

// ModelNameChanged starts a background lookup for modelName. The result
// replaces the active type once it arrives, unless superseded.
func (r *Resolver) ModelNameChanged(ctx context.Context, modelName string) {
	r.mu.Lock()
	r.supersedeLocked()
	gen := r.gen
	lookupCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()

		pt, err := r.lookup(lookupCtx, modelName)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.gen {
			r.logger.Debug("discarding superseded provider type lookup", "model", modelName)
			return
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Warn("provider type lookup failed", "model", modelName, "error", err)
			}
			return
		}
		r.active = copyType(pt)
	}()
}

// Wait blocks until all background lookups have settled.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) supersedeLocked() {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Resolver) lookup(ctx context.Context, modelName string) (*domain.ProviderType, error) {
	name := ProviderTypeName(modelName)
	types, err := r.lister.ListProviderTypes(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		r.logger.Debug("no provider type matched", "model", modelName, "name", name)
		return nil, nil
	}
	r.logger.Debug("provider type resolved", "model", modelName, "type", types[0].Name)
	return &types[0], nil
}

func copyType(pt *domain.ProviderType) *domain.ProviderType {
	if pt == nil {
		return nil
	}
	cpy := *pt
	return &cpy
}
