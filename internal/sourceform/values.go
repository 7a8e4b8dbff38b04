package sourceform

import (
	"strconv"

	"sourcectl/internal/domain"
)

// Values are the field values submitted by the host.
//
// Pointer fields belong to conditionally visible fields; nil means the field
// was not part of the submitted form.
type Values struct {
	Name             string                  `yaml:"name"`
	Slug             string                  `yaml:"slug"`
	Enabled          bool                    `yaml:"enabled"`
	UserMatchingMode domain.UserMatchingMode `yaml:"userMatchingMode"`
	UserPathTemplate string                  `yaml:"userPathTemplate"`
	Icon             string                  `yaml:"icon,omitempty"`
	ClearIcon        bool                    `yaml:"clearIcon,omitempty"`
	ConsumerKey      string                  `yaml:"consumerKey"`
	ConsumerSecret   string                  `yaml:"consumerSecret,omitempty"`
	AdditionalScopes string                  `yaml:"additionalScopes"`

	AuthorizationURL *string `yaml:"authorizationUrl,omitempty"`
	AccessTokenURL   *string `yaml:"accessTokenUrl,omitempty"`
	ProfileURL       *string `yaml:"profileUrl,omitempty"`
	RequestTokenURL  *string `yaml:"requestTokenUrl,omitempty"`
	OIDCWellKnownURL *string `yaml:"oidcWellKnownUrl,omitempty"`
	OIDCJWKSURL      *string `yaml:"oidcJwksUrl,omitempty"`
	GroupsClaim      *string `yaml:"groupsClaim,omitempty"`
	OIDCJWKS         *string `yaml:"oidcJwks,omitempty"`

	UserPropertyMappings  []string `yaml:"userPropertyMappings"`
	GroupPropertyMappings []string `yaml:"groupPropertyMappings"`
	AuthenticationFlow    string   `yaml:"authenticationFlow"`
	EnrollmentFlow        string   `yaml:"enrollmentFlow"`
}

// Values returns the form as it would be submitted untouched: every visible
// field at its rendered default. Write-only fields stay empty.
func (p Projection) Values() Values {
	v := Values{}
	for _, f := range p.Fields {
		def := f.Default
		switch f.Name {
		case FieldSourceName:
			v.Name = def
		case FieldSlug:
			v.Slug = def
		case FieldEnabled:
			v.Enabled, _ = strconv.ParseBool(def)
		case FieldUserMatchingMode:
			v.UserMatchingMode = domain.UserMatchingMode(def)
		case FieldUserPathTemplate:
			v.UserPathTemplate = def
		case FieldIcon:
			if f.Kind == KindText {
				v.Icon = def
			}
		case FieldConsumerKey:
			v.ConsumerKey = def
		case FieldAdditionalScopes:
			v.AdditionalScopes = def
		case FieldAuthorizationURL:
			v.AuthorizationURL = domain.StringPtr(def)
		case FieldAccessTokenURL:
			v.AccessTokenURL = domain.StringPtr(def)
		case FieldProfileURL:
			v.ProfileURL = domain.StringPtr(def)
		case FieldRequestTokenURL:
			v.RequestTokenURL = domain.StringPtr(def)
		case FieldOIDCWellKnownURL:
			v.OIDCWellKnownURL = domain.StringPtr(def)
		case FieldOIDCJWKSURL:
			v.OIDCJWKSURL = domain.StringPtr(def)
		case FieldGroupsClaim:
			v.GroupsClaim = domain.StringPtr(def)
		case FieldOIDCJWKS:
			v.OIDCJWKS = domain.StringPtr(def)
		case FieldUserPropertyMapping:
			v.UserPropertyMappings = selected(f.Options)
		case FieldGroupPropertyMapping:
			v.GroupPropertyMappings = selected(f.Options)
		case FieldAuthenticationFlow:
			v.AuthenticationFlow = def
		case FieldEnrollmentFlow:
			v.EnrollmentFlow = def
		}
	}
	return v
}

// Restrict drops the values of fields the projection hides, the way a
// rendered form never submits an input it did not render.
func (p Projection) Restrict(v Values) Values {
	hide := func(name FieldName, dst **string) {
		if !p.Visible(name) {
			*dst = nil
		}
	}
	hide(FieldAuthorizationURL, &v.AuthorizationURL)
	hide(FieldAccessTokenURL, &v.AccessTokenURL)
	hide(FieldProfileURL, &v.ProfileURL)
	hide(FieldRequestTokenURL, &v.RequestTokenURL)
	hide(FieldOIDCWellKnownURL, &v.OIDCWellKnownURL)
	hide(FieldOIDCJWKSURL, &v.OIDCJWKSURL)
	hide(FieldGroupsClaim, &v.GroupsClaim)
	hide(FieldOIDCJWKS, &v.OIDCJWKS)
	if !p.Visible(FieldClearIcon) {
		v.ClearIcon = false
	}
	if f, ok := p.Field(FieldIcon); !ok || f.Kind != KindText {
		v.Icon = ""
	}
	return v
}

// Missing lists the required fields that have no value. The consumer
// secret is only required when it has no stored value to keep.
func (p Projection) Missing(v Values) []FieldName {
	var missing []FieldName
	for _, f := range p.Fields {
		if !f.Required {
			continue
		}
		var empty bool
		switch f.Name {
		case FieldSourceName:
			empty = v.Name == ""
		case FieldSlug:
			empty = v.Slug == ""
		case FieldUserMatchingMode:
			empty = v.UserMatchingMode == ""
		case FieldConsumerKey:
			empty = v.ConsumerKey == ""
		case FieldConsumerSecret:
			empty = v.ConsumerSecret == "" && !f.WriteOnly
		case FieldAuthenticationFlow:
			empty = v.AuthenticationFlow == ""
		case FieldEnrollmentFlow:
			empty = v.EnrollmentFlow == ""
		}
		if empty {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// ApplyDiscovery fills empty URL fields from a discovered OIDC
// configuration. Fields that are hidden or already set are left alone.
func (v *Values) ApplyDiscovery(d *Discovery) {
	if d == nil {
		return
	}
	fill := func(dst *string, val string) {
		if dst != nil && *dst == "" && val != "" {
			*dst = val
		}
	}
	fill(v.AuthorizationURL, d.AuthorizationURL)
	fill(v.AccessTokenURL, d.TokenURL)
	fill(v.ProfileURL, d.UserInfoURL)
	fill(v.OIDCJWKSURL, d.JWKSURL)
}

func selected(opts []Option) []string {
	out := []string{}
	for _, o := range opts {
		if o.Selected {
			out = append(out, o.Value)
		}
	}
	return out
}
