package sourceform

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
)

func newTestForm(t *testing.T, api *fakeAPI) *Form {
	t.Helper()
	return NewForm(api, api, observability.Discard())
}

func seedGitHub(api *fakeAPI) {
	gh := api.types[0]
	api.sources["github-1"] = &domain.Source{
		PK:               "1",
		Name:             "GitHub",
		Slug:             "github-1",
		Enabled:          true,
		ProviderType:     "github",
		Type:             &gh,
		UserMatchingMode: domain.UserMatchingIdentifier,
		ConsumerKey:      "key",
		Icon:             "/media/source-icons/github.png",
		GroupsClaim:      domain.StringPtr("groups"),
	}
}

func TestSend_EditIssuesPartialUpdate(t *testing.T) {
	api := newFakeAPI()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()

	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if pt := form.ProviderType(); pt == nil || pt.Name != "github" {
		t.Fatalf("provider type = %+v", pt)
	}

	v := form.Project(api.config).Values()
	v.Name = "GitHub Org"
	saved, err := form.Send(ctx, v)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if saved.Name != "GitHub Org" {
		t.Errorf("saved name = %q", saved.Name)
	}
	if n := len(api.callsOf("create")); n != 0 {
		t.Errorf("create called %d times", n)
	}
	updates := api.callsOf("update")
	if len(updates) != 1 || updates[0].slug != "github-1" {
		t.Fatalf("updates = %+v", updates)
	}
	if updates[0].req.ConsumerSecret != nil {
		t.Error("untouched secret was sent")
	}
}

func TestSend_CreateWithoutMediaSetsIconURL(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	ctx := context.Background()

	if _, err := form.ResolveModel(ctx, "githuboauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	v := form.Project(api.config).Values()
	v.Name = "GitHub"
	v.Slug = "github"
	v.ConsumerKey = "key"
	v.ConsumerSecret = "secret"
	v.Icon = "https://example.com/i.png"

	saved, err := form.Send(ctx, v)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if saved.ProviderType != "github" {
		t.Errorf("provider type = %q", saved.ProviderType)
	}
	urls := api.callsOf("set_icon_url")
	if len(urls) != 1 || urls[0].slug != "github" || urls[0].url != "https://example.com/i.png" {
		t.Errorf("set_icon_url calls = %+v", urls)
	}
	if n := len(api.callsOf("set_icon")); n != 0 {
		t.Errorf("set_icon called %d times", n)
	}
}

func TestSend_EmptyIconURLStillSent(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	if _, err := form.Send(context.Background(), Values{Name: "n", Slug: "s"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	urls := api.callsOf("set_icon_url")
	if len(urls) != 1 || urls[0].url != "" {
		t.Errorf("set_icon_url calls = %+v", urls)
	}
}

func TestSend_ClearIconWithMedia(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()

	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	v := form.Project(api.config).Values()
	v.ClearIcon = true

	if _, err := form.Send(ctx, v); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := api.callsOf("set_icon")
	if len(calls) != 1 {
		t.Fatalf("set_icon calls = %+v", calls)
	}
	if calls[0].file != nil || !calls[0].clear || calls[0].slug != "github-1" {
		t.Errorf("set_icon = %+v", calls[0])
	}
	if n := len(api.callsOf("set_icon_url")); n != 0 {
		t.Errorf("set_icon_url called %d times", n)
	}
	if form.Icon().Phase() != IconNone {
		t.Errorf("icon phase after clear = %v", form.Icon().Phase())
	}
}

func TestSend_MediaWithoutChangeSkipsIcon(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()

	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if _, err := form.Send(ctx, form.Project(api.config).Values()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len(api.callsOf("set_icon")) + len(api.callsOf("set_icon_url")); n != 0 {
		t.Errorf("icon calls = %d, want 0", n)
	}
}

func TestSend_NewFileWithMedia(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	form := newTestForm(t, api)

	file := &domain.IconUpload{Filename: "logo.png", Data: []byte("png")}
	if err := form.Icon().ChooseFile(file); err != nil {
		t.Fatalf("ChooseFile: %v", err)
	}
	if _, err := form.Send(context.Background(), Values{Name: "n", Slug: "s"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := api.callsOf("set_icon")
	if len(calls) != 1 || calls[0].file != file || calls[0].clear {
		t.Errorf("set_icon calls = %+v", calls)
	}
}

func TestSend_CapabilitiesQueriedAfterSave(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	if _, err := form.Send(context.Background(), Values{Name: "n", Slug: "s"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var order []string
	for _, c := range api.calls {
		order = append(order, c.op)
	}
	if got := strings.Join(order, ","); got != "create,config,set_icon_url" {
		t.Errorf("call order = %s", got)
	}
}

func seedOIDC(api *fakeAPI) {
	oidc := api.types[1]
	api.sources["corp-sso"] = &domain.Source{
		PK:               "2",
		Name:             "Corp SSO",
		Slug:             "corp-sso",
		Enabled:          true,
		ProviderType:     "openidconnect",
		Type:             &oidc,
		UserMatchingMode: domain.UserMatchingIdentifier,
		ConsumerKey:      "client",
		GroupsClaim:      domain.StringPtr("groups"),
	}
}

func TestSend_EmptyGroupsClaimIsNull(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.ResolveModel(ctx, "openidconnectoauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	v := form.Project(api.config).Values()
	v.Name, v.Slug = "OIDC", "oidc"
	v.GroupsClaim = domain.StringPtr("")

	if _, err := form.Send(ctx, v); err != nil {
		t.Fatalf("Send: %v", err)
	}
	req := api.callsOf("create")[0].req
	if !req.GroupsClaim.IsNull() {
		t.Errorf("groups claim = %+v, want null", req.GroupsClaim)
	}
	b, _ := json.Marshal(req)
	if !strings.Contains(string(b), `"groups_claim":null`) {
		t.Errorf("payload = %s", b)
	}
	if api.sources["oidc"].GroupsClaim != nil {
		t.Errorf("stored groups claim = %q", *api.sources["oidc"].GroupsClaim)
	}
}

func TestSend_EditClearsGroupsClaim(t *testing.T) {
	api := newFakeAPI()
	seedOIDC(api)
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.LoadInstance(ctx, "corp-sso"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	v := form.Project(api.config).Values()
	if v.GroupsClaim == nil || *v.GroupsClaim != "groups" {
		t.Fatalf("groups claim default = %v", v.GroupsClaim)
	}
	v.GroupsClaim = domain.StringPtr("")

	saved, err := form.Send(ctx, v)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if saved.GroupsClaim != nil {
		t.Errorf("saved groups claim = %q", *saved.GroupsClaim)
	}
	if api.sources["corp-sso"].GroupsClaim != nil {
		t.Errorf("stored groups claim = %q, want cleared", *api.sources["corp-sso"].GroupsClaim)
	}
	if form.Instance().GroupsClaim != nil {
		t.Error("form instance kept the old groups claim")
	}
}

func TestSend_HiddenGroupsClaimIsUnchanged(t *testing.T) {
	api := newFakeAPI()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if _, err := form.Send(ctx, form.Project(api.config).Values()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	req := api.callsOf("update")[0].req
	if !req.GroupsClaim.IsZero() {
		t.Errorf("groups claim = %+v, want absent", req.GroupsClaim)
	}
	if gc := api.sources["github-1"].GroupsClaim; gc == nil || *gc != "groups" {
		t.Errorf("stored groups claim = %v", gc)
	}
}

func TestSend_RetryAfterFailedSaveKeepsIcon(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}

	v := form.Project(api.config).Values()
	v.ClearIcon = true
	api.saveErr = errors.New("upstream unavailable")
	if _, err := form.Send(ctx, v); !errors.Is(err, api.saveErr) {
		t.Fatalf("first Send err = %v", err)
	}
	if form.Icon().Clear() || form.Icon().Phase() != IconExisting {
		t.Errorf("failed save left icon phase %v", form.Icon().Phase())
	}

	api.saveErr = nil
	v.ClearIcon = false
	if _, err := form.Send(ctx, v); err != nil {
		t.Fatalf("retry Send: %v", err)
	}
	if calls := api.callsOf("set_icon"); len(calls) != 0 {
		t.Errorf("set_icon calls = %+v, want none", calls)
	}
	if form.Icon().Current() != "/media/source-icons/github.png" {
		t.Errorf("icon = %q", form.Icon().Current())
	}
}

func TestSend_ClearOnCreateWithMedia(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.ResolveModel(ctx, "githuboauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}

	v := form.Project(api.config).Values()
	v.Name, v.Slug, v.ConsumerKey, v.ConsumerSecret = "GitHub", "gh", "k", "s"
	v.ClearIcon = true
	if _, err := form.Send(ctx, v); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := api.callsOf("set_icon")
	if len(calls) != 1 || calls[0].slug != "gh" || calls[0].file != nil || !calls[0].clear {
		t.Errorf("set_icon calls = %+v", calls)
	}
	if form.Icon().Phase() != IconNone {
		t.Errorf("icon phase = %v", form.Icon().Phase())
	}
}

func TestSend_ClearIgnoredWithoutMedia(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.ResolveModel(ctx, "githuboauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}

	v := form.Project(api.config).Values()
	v.Name, v.Slug, v.ConsumerKey, v.ConsumerSecret = "GitHub", "gh", "k", "s"
	v.Icon = "https://example.com/gh.png"
	v.ClearIcon = true
	if _, err := form.Send(ctx, v); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len(api.callsOf("set_icon")); n != 0 {
		t.Errorf("set_icon called %d times", n)
	}
	urls := api.callsOf("set_icon_url")
	if len(urls) != 1 || urls[0].url != "https://example.com/gh.png" {
		t.Errorf("set_icon_url calls = %+v", urls)
	}
	if form.Icon().Current() != "https://example.com/gh.png" {
		t.Errorf("icon = %q", form.Icon().Current())
	}
}

func TestSend_FileAndClearConflict(t *testing.T) {
	api := newFakeAPI()
	api.config = mediaConfig()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if err := form.Icon().ChooseFile(&domain.IconUpload{Filename: "new.png", Data: []byte("PNG")}); err != nil {
		t.Fatalf("ChooseFile: %v", err)
	}
	v := form.Project(api.config).Values()
	v.ClearIcon = true
	if _, err := form.Send(ctx, v); !errors.Is(err, ErrIconConflict) {
		t.Fatalf("err = %v, want ErrIconConflict", err)
	}
	if n := len(api.callsOf("update")); n != 0 {
		t.Errorf("update called %d times", n)
	}
}

func TestSend_NoProviderTypeSendsEmptyName(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	ctx := context.Background()
	if _, err := form.ResolveModel(ctx, "unknownoauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if _, err := form.Send(ctx, Values{Name: "n", Slug: "s"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	req := api.callsOf("create")[0].req
	if req.ProviderType == nil || *req.ProviderType != "" {
		t.Errorf("provider type = %v", req.ProviderType)
	}
}

func TestSend_SaveFailureSkipsIcon(t *testing.T) {
	api := newFakeAPI()
	api.saveErr = errors.New("slug already exists")
	form := newTestForm(t, api)

	_, err := form.Send(context.Background(), Values{Name: "n", Slug: "s", Icon: "https://x"})
	if !errors.Is(err, api.saveErr) {
		t.Fatalf("err = %v", err)
	}
	if n := len(api.callsOf("config")) + len(api.callsOf("set_icon_url")); n != 0 {
		t.Errorf("icon step ran after failed save")
	}
}

func TestSend_IconFailureKeepsSave(t *testing.T) {
	api := newFakeAPI()
	api.iconErr = errors.New("media storage unavailable")
	form := newTestForm(t, api)

	saved, err := form.Send(context.Background(), Values{Name: "n", Slug: "s"})
	var iconErr *IconError
	if !errors.As(err, &iconErr) {
		t.Fatalf("err = %v, want *IconError", err)
	}
	if !errors.Is(err, api.iconErr) {
		t.Error("icon error does not unwrap to the collaborator error")
	}
	if saved == nil || saved.Slug != "s" || iconErr.Source.Slug != "s" {
		t.Errorf("saved = %+v", saved)
	}
	if _, ok := api.sources["s"]; !ok {
		t.Error("primary save was rolled back")
	}
	if form.Instance() == nil {
		t.Error("form did not switch to editing the saved source")
	}
}

func TestSend_InvalidJWKS(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	_, err := form.Send(context.Background(), Values{Name: "n", Slug: "s", OIDCJWKS: domain.StringPtr("[1,2]")})
	if err == nil {
		t.Fatal("expected error for non-object JWKS")
	}
	if n := len(api.callsOf("create")); n != 0 {
		t.Error("create called with invalid payload")
	}
}

func TestLoad_UsesManagedOrdering(t *testing.T) {
	api := newFakeAPI()
	form := newTestForm(t, api)
	if err := form.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	calls := api.callsOf("mappings")
	if len(calls) != 1 || calls[0].slug != "managed" {
		t.Errorf("mapping calls = %+v", calls)
	}
	f, _ := form.Project(domain.ServerConfig{}).Field(FieldUserPropertyMapping)
	if len(f.Options) != 2 {
		t.Errorf("options = %+v", f.Options)
	}
}

func TestLoadInstance_ResetsClearFlag(t *testing.T) {
	api := newFakeAPI()
	seedGitHub(api)
	form := newTestForm(t, api)
	ctx := context.Background()

	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if err := form.Icon().SetClear(true); err != nil {
		t.Fatalf("SetClear: %v", err)
	}
	if _, err := form.LoadInstance(ctx, "github-1"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if form.Icon().Clear() {
		t.Error("clear flag survived reload")
	}
	if form.Icon().Phase() != IconExisting {
		t.Errorf("phase = %v", form.Icon().Phase())
	}
}

func TestLoadInstance_ResolvesByProviderTypeName(t *testing.T) {
	api := newFakeAPI()
	api.sources["tw"] = &domain.Source{Slug: "tw", ProviderType: "twitter"}
	form := newTestForm(t, api)

	if _, err := form.LoadInstance(context.Background(), "tw"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	if pt := form.ProviderType(); pt == nil || pt.RequestTokenURL == "" {
		t.Errorf("provider type = %+v", pt)
	}
}

func TestReload_NoInstance(t *testing.T) {
	form := newTestForm(t, newFakeAPI())
	if _, err := form.Reload(context.Background()); !errors.Is(err, ErrNoInstance) {
		t.Errorf("err = %v", err)
	}
}
