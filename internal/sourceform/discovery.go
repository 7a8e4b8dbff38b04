package sourceform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// Discovery holds the endpoints published by an OIDC well-known document.
type Discovery struct {
	Issuer           string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JWKSURL          string
}

// Discover fetches the OIDC configuration at wellKnownURL. The issuer in the
// document is not required to match the URL, since several providers serve
// multi-tenant documents. client may be nil.
func Discover(ctx context.Context, client *http.Client, wellKnownURL string) (*Discovery, error) {
	issuer, ok := strings.CutSuffix(strings.TrimSpace(wellKnownURL), wellKnownSuffix)
	if !ok || issuer == "" {
		return nil, fmt.Errorf("well-known url %q must end in %s", wellKnownURL, wellKnownSuffix)
	}
	if client != nil {
		ctx = gooidc.ClientContext(ctx, client)
	}
	ctx = gooidc.InsecureIssuerURLContext(ctx, issuer)

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}

	endpoint := provider.Endpoint()
	return &Discovery{
		Issuer:           doc.Issuer,
		AuthorizationURL: endpoint.AuthURL,
		TokenURL:         endpoint.TokenURL,
		UserInfoURL:      provider.UserInfoEndpoint(),
		JWKSURL:          doc.JWKSURI,
	}, nil
}
