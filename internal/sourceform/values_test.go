package sourceform

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"sourcectl/internal/domain"
)

func TestRestrict_DropsHiddenFields(t *testing.T) {
	p := Project(Input{ProviderType: &domain.ProviderType{Name: "github", URLsCustomizable: true}})
	v := Values{
		AuthorizationURL: domain.StringPtr("https://a"),
		RequestTokenURL:  domain.StringPtr("https://rt"),
		OIDCWellKnownURL: domain.StringPtr("https://wk"),
		GroupsClaim:      domain.StringPtr("groups"),
		OIDCJWKS:         domain.StringPtr("{}"),
		ClearIcon:        true,
		Icon:             "https://example.com/i.png",
	}
	got := p.Restrict(v)
	if got.AuthorizationURL == nil {
		t.Error("visible authorization url dropped")
	}
	if got.RequestTokenURL != nil || got.OIDCWellKnownURL != nil || got.GroupsClaim != nil || got.OIDCJWKS != nil {
		t.Errorf("hidden fields kept: %+v", got)
	}
	if got.ClearIcon {
		t.Error("clear flag kept without a clear toggle")
	}
	if got.Icon != "https://example.com/i.png" {
		t.Error("icon url dropped although the text field is shown")
	}

	media := Project(Input{Config: mediaConfig()})
	if media.Restrict(v).Icon != "" {
		t.Error("icon url kept although the file field is shown")
	}
}

func TestMissing(t *testing.T) {
	create := Project(Input{})
	missing := create.Missing(create.Values())
	want := []FieldName{FieldSourceName, FieldSlug, FieldConsumerKey, FieldConsumerSecret}
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("missing = %v, want %v", missing, want)
	}

	edit := Project(Input{Instance: &domain.Source{Name: "n", Slug: "s", ConsumerKey: "k"}})
	if missing := edit.Missing(edit.Values()); len(missing) != 0 {
		t.Errorf("editing needs no secret, missing = %v", missing)
	}
}

func TestValues_YAMLOverlay(t *testing.T) {
	p := Project(Input{ProviderType: &domain.ProviderType{
		Name:             "openidconnect",
		URLsCustomizable: true,
		OIDCWellKnownURL: "https://d/wk",
	}})
	v := p.Values()
	doc := []byte(`
name: Corp SSO
slug: corp-sso
consumerKey: client
groupsClaim: ""
userPropertyMappings: [m1]
`)
	if err := yaml.Unmarshal(doc, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Name != "Corp SSO" || !v.Enabled || v.UserPathTemplate != DefaultUserPathTemplate {
		t.Errorf("overlay lost defaults: %+v", v)
	}
	if v.OIDCWellKnownURL == nil || *v.OIDCWellKnownURL != "https://d/wk" {
		t.Errorf("well-known = %v", v.OIDCWellKnownURL)
	}
	req, err := BuildRequest(p.Restrict(v), &domain.ProviderType{Name: "openidconnect"})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !req.GroupsClaim.IsNull() {
		t.Errorf("groups claim = %+v, want null", req.GroupsClaim)
	}
	if *req.ProviderType != "openidconnect" || len(req.UserPropertyMappings) != 1 {
		t.Errorf("request = %+v", req)
	}
	if req.GroupPropertyMappings == nil {
		t.Error("group mappings nil")
	}
	if req.OIDCJWKS == nil || len(req.OIDCJWKS) != 0 {
		t.Errorf("jwks = %v", req.OIDCJWKS)
	}
}
