// Package providers is the catalog of OAuth provider types a source can be
// built on.
package providers

import (
	"sort"
	"strings"

	"sourcectl/internal/domain"
)

// Catalog is an immutable set of provider types keyed by name.
type Catalog struct {
	types map[string]domain.ProviderType
}

// New builds a catalog. Later entries replace earlier ones with the same
// name.
func New(types ...domain.ProviderType) *Catalog {
	c := &Catalog{types: make(map[string]domain.ProviderType, len(types))}
	for _, t := range types {
		c.types[t.Name] = t
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(builtin...)
}

// Get returns the type with exactly this name.
func (c *Catalog) Get(name string) (domain.ProviderType, bool) {
	t, ok := c.types[name]
	return t, ok
}

// List returns all types ordered by name.
func (c *Catalog) List() []domain.ProviderType {
	return c.Lookup("")
}

// Lookup returns the types whose name starts with prefix. An exact match
// comes first, the rest are ordered by name.
func (c *Catalog) Lookup(prefix string) []domain.ProviderType {
	out := make([]domain.ProviderType, 0)
	for name, t := range c.types {
		if strings.HasPrefix(name, prefix) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].Name == prefix, out[j].Name == prefix
		if ei != ej {
			return ei
		}
		return out[i].Name < out[j].Name
	})
	return out
}

var builtin = []domain.ProviderType{
	{
		Name:             "apple",
		VerboseName:      "Apple",
		AuthorizationURL: "https://appleid.apple.com/auth/authorize",
		AccessTokenURL:   "https://appleid.apple.com/auth/token",
		OIDCJWKSURL:      "https://appleid.apple.com/auth/keys",
	},
	{
		Name:             "azuread",
		VerboseName:      "Azure AD",
		URLsCustomizable: true,
		AuthorizationURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		AccessTokenURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		ProfileURL:       "https://graph.microsoft.com/v1.0/me",
		OIDCWellKnownURL: "https://login.microsoftonline.com/common/.well-known/openid-configuration",
		OIDCJWKSURL:      "https://login.microsoftonline.com/common/discovery/keys",
	},
	{
		Name:             "discord",
		VerboseName:      "Discord",
		AuthorizationURL: "https://discord.com/api/oauth2/authorize",
		AccessTokenURL:   "https://discord.com/api/oauth2/token",
		ProfileURL:       "https://discord.com/api/users/@me",
	},
	{
		Name:             "entraid",
		VerboseName:      "Entra ID",
		URLsCustomizable: true,
		AuthorizationURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		AccessTokenURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		ProfileURL:       "https://graph.microsoft.com/v1.0/me",
		OIDCWellKnownURL: "https://login.microsoftonline.com/common/v2.0/.well-known/openid-configuration",
		OIDCJWKSURL:      "https://login.microsoftonline.com/common/discovery/v2.0/keys",
	},
	{
		Name:             "facebook",
		VerboseName:      "Facebook",
		AuthorizationURL: "https://www.facebook.com/v7.0/dialog/oauth",
		AccessTokenURL:   "https://graph.facebook.com/v7.0/oauth/access_token",
		ProfileURL:       "https://graph.facebook.com/v7.0/me?fields=id,name,email",
	},
	{
		Name:             "github",
		VerboseName:      "GitHub",
		URLsCustomizable: true,
		AuthorizationURL: "https://github.com/login/oauth/authorize",
		AccessTokenURL:   "https://github.com/login/oauth/access_token",
		ProfileURL:       "https://api.github.com/user",
	},
	{
		Name:             "gitlab",
		VerboseName:      "GitLab",
		URLsCustomizable: true,
		AuthorizationURL: "https://gitlab.com/oauth/authorize",
		AccessTokenURL:   "https://gitlab.com/oauth/token",
		ProfileURL:       "https://gitlab.com/oauth/userinfo",
		OIDCWellKnownURL: "https://gitlab.com/.well-known/openid-configuration",
		OIDCJWKSURL:      "https://gitlab.com/oauth/discovery/keys",
	},
	{
		Name:             "google",
		VerboseName:      "Google",
		AuthorizationURL: "https://accounts.google.com/o/oauth2/auth",
		AccessTokenURL:   "https://oauth2.googleapis.com/token",
		ProfileURL:       "https://www.googleapis.com/oauth2/v1/userinfo",
	},
	{
		Name:             "keycloak",
		VerboseName:      "Keycloak",
		URLsCustomizable: true,
	},
	{
		Name:             "mailcow",
		VerboseName:      "Mailcow",
		URLsCustomizable: true,
	},
	{
		Name:             "okta",
		VerboseName:      "Okta",
		URLsCustomizable: true,
	},
	{
		Name:             domain.ProviderTypeOpenIDConnect,
		VerboseName:      "OpenID Connect",
		URLsCustomizable: true,
	},
	{
		Name:             "patreon",
		VerboseName:      "Patreon",
		AuthorizationURL: "https://www.patreon.com/oauth2/authorize",
		AccessTokenURL:   "https://www.patreon.com/api/oauth2/token",
		ProfileURL:       "https://www.patreon.com/api/oauth2/v2/identity",
	},
	{
		Name:             "reddit",
		VerboseName:      "Reddit",
		AuthorizationURL: "https://www.reddit.com/api/v1/authorize",
		AccessTokenURL:   "https://www.reddit.com/api/v1/access_token",
		ProfileURL:       "https://oauth.reddit.com/api/v1/me",
	},
	{
		Name:             "twitch",
		VerboseName:      "Twitch",
		AuthorizationURL: "https://id.twitch.tv/oauth2/authorize",
		AccessTokenURL:   "https://id.twitch.tv/oauth2/token",
		ProfileURL:       "https://id.twitch.tv/oauth2/userinfo",
	},
	{
		// OAuth 1.0a: the only built-in type with a request token step.
		Name:             "twitter",
		VerboseName:      "Twitter",
		URLsCustomizable: true,
		RequestTokenURL:  "https://api.twitter.com/oauth/request_token",
		AuthorizationURL: "https://api.twitter.com/oauth/authenticate",
		AccessTokenURL:   "https://api.twitter.com/oauth/access_token",
		ProfileURL:       "https://api.twitter.com/1.1/account/verify_credentials.json?include_email=true",
	},
}
