package sourceform

import (
	"sourcectl/internal/domain"
)

// BuildRequest normalizes submitted values into the payload for a create
// or partial update.
//
// The provider type is the active type's name, or "" when none resolved.
// An empty groups claim is sent as absent. An empty consumer secret is
// omitted so a partial update keeps the stored one.
func BuildRequest(v Values, active *domain.ProviderType) (*domain.SourceRequest, error) {
	providerType := ""
	if active != nil {
		providerType = active.Name
	}
	mode := v.UserMatchingMode
	req := &domain.SourceRequest{
		Name:                  domain.StringPtr(v.Name),
		Slug:                  domain.StringPtr(v.Slug),
		Enabled:               &v.Enabled,
		ProviderType:          &providerType,
		UserMatchingMode:      &mode,
		UserPathTemplate:      domain.StringPtr(v.UserPathTemplate),
		ConsumerKey:           domain.StringPtr(v.ConsumerKey),
		AdditionalScopes:      domain.StringPtr(v.AdditionalScopes),
		AuthorizationURL:      copyString(v.AuthorizationURL),
		AccessTokenURL:        copyString(v.AccessTokenURL),
		ProfileURL:            copyString(v.ProfileURL),
		RequestTokenURL:       copyString(v.RequestTokenURL),
		OIDCWellKnownURL:      copyString(v.OIDCWellKnownURL),
		OIDCJWKSURL:           copyString(v.OIDCJWKSURL),
		UserPropertyMappings:  nonNil(v.UserPropertyMappings),
		GroupPropertyMappings: nonNil(v.GroupPropertyMappings),
		Icon:                  v.Icon,
	}
	if v.ConsumerSecret != "" {
		req.ConsumerSecret = domain.StringPtr(v.ConsumerSecret)
	}
	// An empty claim is sent as null so an edit clears the stored value.
	if v.GroupsClaim != nil {
		if *v.GroupsClaim == "" {
			req.GroupsClaim = domain.NullString()
		} else {
			req.GroupsClaim = domain.SetString(*v.GroupsClaim)
		}
	}
	if v.OIDCJWKS != nil {
		jwks, err := ParseJWKS(*v.OIDCJWKS)
		if err != nil {
			return nil, err
		}
		req.OIDCJWKS = jwks
	}
	if v.AuthenticationFlow != "" {
		req.AuthenticationFlow = domain.StringPtr(v.AuthenticationFlow)
	}
	if v.EnrollmentFlow != "" {
		req.EnrollmentFlow = domain.StringPtr(v.EnrollmentFlow)
	}
	return req, nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	return domain.StringPtr(*p)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
