package sourceform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
)

func TestProviderTypeName(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"githuboauthsource", "github"},
		{"openidconnectoauthsource", "openidconnect"},
		{"oauthsource", ""},
		{"twitter", "twitter"},
		{"oauthsourceoauthsource", "oauthsource"},
	}
	for _, tt := range tests {
		if got := ProviderTypeName(tt.model); got != tt.want {
			t.Errorf("ProviderTypeName(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestResolve_FirstMatchAndMiss(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(api, observability.Discard())
	ctx := context.Background()

	pt, err := r.Resolve(ctx, "githuboauthsource")
	if err != nil || pt == nil || pt.Name != "github" {
		t.Fatalf("Resolve = %+v, %v", pt, err)
	}
	if r.Active().Name != "github" {
		t.Errorf("active = %+v", r.Active())
	}

	pt, err = r.Resolve(ctx, "nosuchoauthsource")
	if err != nil {
		t.Fatalf("miss returned error: %v", err)
	}
	if pt != nil || r.Active() != nil {
		t.Errorf("miss left active type %+v", r.Active())
	}
}

func TestResolve_NoCacheAcrossIdentifiers(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(api, observability.Discard())
	ctx := context.Background()
	for _, m := range []string{"githuboauthsource", "twitteroauthsource", "githuboauthsource"} {
		if _, err := r.Resolve(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(api.callsOf("types")); n != 3 {
		t.Errorf("lookups = %d, want 3", n)
	}
}

func TestResolve_ActiveIsACopy(t *testing.T) {
	r := NewResolver(newFakeAPI(), observability.Discard())
	r.Set(&domain.ProviderType{Name: "github"})
	r.Active().Name = "mutated"
	if r.Active().Name != "github" {
		t.Error("caller mutated the active type")
	}
}

// gatedLister blocks each lookup until its gate for that name is released.
type gatedLister struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedLister) gate(name string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[string]chan struct{}{}
	}
	ch, ok := g.gates[name]
	if !ok {
		ch = make(chan struct{})
		g.gates[name] = ch
	}
	return ch
}

func (g *gatedLister) ListProviderTypes(ctx context.Context, name string) ([]domain.ProviderType, error) {
	select {
	case <-g.gate(name):
		return []domain.ProviderType{{Name: name}}, nil
	case <-ctx.Done():
		// respond anyway to mimic a server that ignores cancellation
		<-g.gate(name)
		return []domain.ProviderType{{Name: name}}, nil
	}
}

func TestModelNameChanged_LatestInputWins(t *testing.T) {
	lister := &gatedLister{}
	r := NewResolver(lister, observability.Discard())
	ctx := context.Background()

	r.ModelNameChanged(ctx, "githuboauthsource")
	r.ModelNameChanged(ctx, "gitlaboauthsource")

	// Newer response first, stale one afterwards.
	close(lister.gate("gitlab"))
	close(lister.gate("github"))
	r.Wait()

	if pt := r.Active(); pt == nil || pt.Name != "gitlab" {
		t.Errorf("active = %+v, want gitlab", pt)
	}
}

func TestModelNameChanged_SetSupersedesLookup(t *testing.T) {
	lister := &gatedLister{}
	r := NewResolver(lister, observability.Discard())

	r.ModelNameChanged(context.Background(), "githuboauthsource")
	r.Set(&domain.ProviderType{Name: "openidconnect"})
	close(lister.gate("github"))
	r.Wait()

	if pt := r.Active(); pt == nil || pt.Name != "openidconnect" {
		t.Errorf("active = %+v, want openidconnect", pt)
	}
}

type failingLister struct{ err error }

func (f failingLister) ListProviderTypes(context.Context, string) ([]domain.ProviderType, error) {
	return nil, f.err
}

func TestModelNameChanged_ErrorKeepsActive(t *testing.T) {
	r := NewResolver(failingLister{err: errors.New("connection refused")}, observability.Discard())
	r.Set(&domain.ProviderType{Name: "github"})

	r.ModelNameChanged(context.Background(), "gitlaboauthsource")
	r.Wait()

	if pt := r.Active(); pt == nil || pt.Name != "github" {
		t.Errorf("active = %+v", pt)
	}
	if _, err := r.Resolve(context.Background(), "gitlaboauthsource"); err == nil {
		t.Error("Resolve should surface lookup errors")
	}
}
