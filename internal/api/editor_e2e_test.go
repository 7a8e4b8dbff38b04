package api_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"sourcectl/internal/audit"
	"sourcectl/internal/client"
	"sourcectl/internal/domain"
	"sourcectl/internal/observability"
	"sourcectl/internal/sourceform"
	"sourcectl/internal/testutil"
)

const adminToken = "e2e-admin-token"

func startBackend(t *testing.T, withMedia bool) *testutil.TestServerComponents {
	t.Helper()
	return testutil.NewTestServer(t, testutil.TestServerConfig{AdminToken: adminToken, EnableMedia: withMedia})
}

func newEditor(t *testing.T, b *testutil.TestServerComponents) (*sourceform.Form, *client.Client) {
	t.Helper()
	c, err := client.New(client.Options{
		ServerURL: b.Server.URL,
		Token:     adminToken,
		Timeout:   5 * time.Second,
		Logger:    observability.Discard(),
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return sourceform.NewForm(c, c, observability.Discard()), c
}

func TestEditorCreateThenEditWithMedia(t *testing.T) {
	b := startBackend(t, true)
	form, c := newEditor(t, b)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if !cfg.Has(domain.CapabilityCanSaveMedia) {
		t.Fatalf("capabilities = %+v", cfg)
	}
	if err := form.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := form.ResolveModel(ctx, "githuboauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}

	proj := form.Project(*cfg)
	if !proj.Visible(sourceform.FieldAuthorizationURL) {
		t.Fatal("github urls should be customizable")
	}
	v := proj.Values()
	v.Name = "GitHub"
	v.Slug = "github"
	v.ConsumerKey = "client-id"
	v.ConsumerSecret = "client-secret"
	if missing := proj.Missing(v); len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
	if err := form.Icon().ChooseFile(&domain.IconUpload{Filename: "github.png", Data: []byte("PNG")}); err != nil {
		t.Fatalf("ChooseFile: %v", err)
	}

	saved, err := form.Send(ctx, proj.Restrict(v))
	if err != nil {
		t.Fatalf("Send create: %v", err)
	}
	if saved.Slug != "github" {
		t.Fatalf("saved = %+v", saved)
	}

	stored, err := b.Store.GetSource(ctx, "github")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if stored.Icon != "/media/source-icons/github.png" {
		t.Errorf("icon = %q", stored.Icon)
	}
	if stored.AuthorizationURL == nil || *stored.AuthorizationURL != "https://github.com/login/oauth/authorize" {
		t.Errorf("authorization_url = %v", stored.AuthorizationURL)
	}
	if plain, _ := b.Box.Open(stored.ConsumerSecretEncrypted); plain != "client-secret" {
		t.Errorf("secret = %q", plain)
	}

	// Edit: load, change the name, clear the icon. The secret stays.
	edit, _ := newEditor(t, b)
	if _, err := edit.LoadInstance(ctx, "github"); err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}
	proj = edit.Project(*cfg)
	if !proj.Visible(sourceform.FieldClearIcon) {
		t.Fatal("clear icon should be offered for a stored icon")
	}
	v = proj.Values()
	v.Name = "GitHub Org"
	v.ClearIcon = true
	if _, err := edit.Send(ctx, proj.Restrict(v)); err != nil {
		t.Fatalf("Send update: %v", err)
	}

	stored, _ = b.Store.GetSource(ctx, "github")
	if stored.Name != "GitHub Org" || stored.Icon != "" {
		t.Errorf("after edit = %+v", stored)
	}
	if plain, _ := b.Box.Open(stored.ConsumerSecretEncrypted); plain != "client-secret" {
		t.Errorf("secret changed to %q", plain)
	}
}

func TestEditorWithoutMediaUsesIconURL(t *testing.T) {
	b := startBackend(t, false)
	form, c := newEditor(t, b)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if _, err := form.ResolveModel(ctx, "discordoauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	proj := form.Project(*cfg)
	if proj.Visible(sourceform.FieldAuthorizationURL) {
		t.Error("discord urls are not customizable")
	}
	v := proj.Values()
	v.Name = "Discord"
	v.Slug = "discord"
	v.ConsumerKey = "id"
	v.ConsumerSecret = "secret"
	v.Icon = "https://cdn.example.com/discord.svg"
	if _, err := form.Send(ctx, proj.Restrict(v)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	stored, err := b.Store.GetSource(ctx, "discord")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if stored.Icon != "https://cdn.example.com/discord.svg" || stored.AuthorizationURL != nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestEditorIconFailureKeepsSavedSource(t *testing.T) {
	b := startBackend(t, false)
	form, c := newEditor(t, b)
	ctx := context.Background()

	cfg, _ := c.GetConfig(ctx)
	if _, err := form.ResolveModel(ctx, "discordoauthsource"); err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	v := form.Project(*cfg).Values()
	v.Name, v.Slug, v.ConsumerKey, v.ConsumerSecret = "Discord", "discord", "id", "secret"
	v.Icon = "javascript:alert(1)"

	_, err := form.Send(ctx, v)
	var iconErr *sourceform.IconError
	if !errors.As(err, &iconErr) {
		t.Fatalf("err = %v, want *IconError", err)
	}
	if _, err := b.Store.GetSource(ctx, "discord"); err != nil {
		t.Errorf("source not saved before the icon step: %v", err)
	}
}

func TestEditorRejectsBadToken(t *testing.T) {
	b := startBackend(t, false)
	c, err := client.New(client.Options{ServerURL: b.Server.URL, Token: "wrong", Logger: observability.Discard()})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	_, err = c.GetConfig(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
}

func TestRawAPIWithToken(t *testing.T) {
	b := startBackend(t, false)

	req, err := testutil.AuthenticatedRequest(http.MethodPost, b.URL("/api/v3/sources/oauth/"), adminToken, testutil.JSONBody(t, map[string]any{
		"name":            "GitLab",
		"slug":            "gitlab",
		"provider_type":   "gitlab",
		"consumer_key":    "id",
		"consumer_secret": "secret",
		"profile_url":     "ftp://gitlab.example.com/me",
	}))
	if err != nil {
		t.Fatalf("AuthenticatedRequest: %v", err)
	}
	resp := testutil.DoRequest(t, nil, req)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusBadRequest)

	req, _ = testutil.AuthenticatedRequest(http.MethodPost, b.URL("/api/v3/sources/oauth/"), adminToken, testutil.JSONBody(t, map[string]any{
		"name":            "GitLab",
		"slug":            "gitlab",
		"provider_type":   "gitlab",
		"consumer_key":    "id",
		"consumer_secret": "secret",
	}))
	resp = testutil.DoRequest(t, nil, req)
	testutil.AssertStatus(t, resp.StatusCode, http.StatusCreated)
	var created domain.Source
	testutil.ReadJSONResponse(t, resp, &created)
	if created.Slug != "gitlab" || created.ConsumerSecretEncrypted != "" {
		t.Errorf("created = %+v", created)
	}

	events, total, _ := b.AuditLogger.List(context.Background(), audit.ListOptions{ResourceID: "gitlab"})
	if total != 1 || events[0].Action != audit.ActionCreate || events[0].Actor != "admin" {
		t.Errorf("audit = %d %+v", total, events)
	}

	req, _ = testutil.AuthenticatedRequest(http.MethodGet, b.URL("/api/v3/sources/oauth/gitlab/"), "", nil)
	resp = testutil.DoRequest(t, nil, req)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusUnauthorized)
}
