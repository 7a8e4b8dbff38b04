package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// UserMatchingMode controls how an identity from the external provider is
// associated with an existing local user.
type UserMatchingMode string

const (
	UserMatchingIdentifier   UserMatchingMode = "identifier"
	UserMatchingEmailLink    UserMatchingMode = "email_link"
	UserMatchingEmailDeny    UserMatchingMode = "email_deny"
	UserMatchingUsernameLink UserMatchingMode = "username_link"
	UserMatchingUsernameDeny UserMatchingMode = "username_deny"
)

// DefaultUserPathTemplate places users created by a source under a path
// derived from the source slug.
const DefaultUserPathTemplate = "sourced.io/sources/%(slug)s"

// UserMatchingModes returns all modes in display order.
func UserMatchingModes() []UserMatchingMode {
	return []UserMatchingMode{
		UserMatchingIdentifier,
		UserMatchingEmailLink,
		UserMatchingEmailDeny,
		UserMatchingUsernameLink,
		UserMatchingUsernameDeny,
	}
}

// IsValidUserMatchingMode checks if the given mode is known.
func IsValidUserMatchingMode(m UserMatchingMode) bool {
	switch m {
	case UserMatchingIdentifier, UserMatchingEmailLink, UserMatchingEmailDeny,
		UserMatchingUsernameLink, UserMatchingUsernameDeny:
		return true
	}
	return false
}

// Label returns a short human readable description of the mode.
func (m UserMatchingMode) Label() string {
	switch m {
	case UserMatchingIdentifier:
		return "Link users on unique identifier"
	case UserMatchingEmailLink:
		return "Link to a user with identical email address"
	case UserMatchingEmailDeny:
		return "Use the user's email address, but deny enrollment when the email address already exists"
	case UserMatchingUsernameLink:
		return "Link to a user with identical username"
	case UserMatchingUsernameDeny:
		return "Use the user's username, but deny enrollment when the username already exists"
	}
	return string(m)
}

// Source is a persisted OAuth source.
//
// URL fields and GroupsClaim are pointers: nil means the source has no
// value of its own, so editors fall back to the provider type default.
type Source struct {
	PK                      string           `json:"pk"`
	Name                    string           `json:"name"`
	Slug                    string           `json:"slug"`
	Enabled                 bool             `json:"enabled"`
	ProviderType            string           `json:"provider_type"`
	Type                    *ProviderType    `json:"type,omitempty"`
	UserMatchingMode        UserMatchingMode `json:"user_matching_mode"`
	UserPathTemplate        string           `json:"user_path_template"`
	Icon                    string           `json:"icon,omitempty"`
	ConsumerKey             string           `json:"consumer_key"`
	ConsumerSecretEncrypted string           `json:"-"`
	AdditionalScopes        string           `json:"additional_scopes"`
	AuthorizationURL        *string          `json:"authorization_url"`
	AccessTokenURL          *string          `json:"access_token_url"`
	ProfileURL              *string          `json:"profile_url"`
	RequestTokenURL         *string          `json:"request_token_url"`
	OIDCWellKnownURL        *string          `json:"oidc_well_known_url"`
	OIDCJWKSURL             *string          `json:"oidc_jwks_url"`
	GroupsClaim             *string          `json:"groups_claim"`
	OIDCJWKS                map[string]any   `json:"oidc_jwks,omitempty"`
	UserPropertyMappings    []string         `json:"user_property_mappings"`
	GroupPropertyMappings   []string         `json:"group_property_mappings"`
	AuthenticationFlow      *string          `json:"authentication_flow"`
	EnrollmentFlow          *string          `json:"enrollment_flow"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// SourceRequest is the payload for creating or partially updating a source.
//
// Nil pointers are omitted from the wire form, which a partial update treats
// as "leave unchanged". The mapping slices and JWKS are sent even when empty; a nil
// value decodes from JSON null and is likewise treated as unchanged. The groups
// claim is the one field that can be cleared, so it carries an explicit null.
type SourceRequest struct {
	Name                  *string           `json:"name,omitempty"`
	Slug                  *string           `json:"slug,omitempty"`
	Enabled               *bool             `json:"enabled,omitempty"`
	ProviderType          *string           `json:"provider_type,omitempty"`
	UserMatchingMode      *UserMatchingMode `json:"user_matching_mode,omitempty"`
	UserPathTemplate      *string           `json:"user_path_template,omitempty"`
	ConsumerKey           *string           `json:"consumer_key,omitempty"`
	ConsumerSecret        *string           `json:"consumer_secret,omitempty"`
	AdditionalScopes      *string           `json:"additional_scopes,omitempty"`
	AuthorizationURL      *string           `json:"authorization_url,omitempty"`
	AccessTokenURL        *string           `json:"access_token_url,omitempty"`
	ProfileURL            *string           `json:"profile_url,omitempty"`
	RequestTokenURL       *string           `json:"request_token_url,omitempty"`
	OIDCWellKnownURL      *string           `json:"oidc_well_known_url,omitempty"`
	OIDCJWKSURL           *string           `json:"oidc_jwks_url,omitempty"`
	GroupsClaim           NullableString    `json:"groups_claim,omitzero"`
	OIDCJWKS              map[string]any    `json:"oidc_jwks"`
	UserPropertyMappings  []string          `json:"user_property_mappings"`
	GroupPropertyMappings []string          `json:"group_property_mappings"`
	AuthenticationFlow    *string           `json:"authentication_flow,omitempty"`
	EnrollmentFlow        *string           `json:"enrollment_flow,omitempty"`

	// Icon travels with the payload but is applied through the icon
	// endpoints after the source itself has been saved.
	Icon string `json:"-"`
}

// Apply copies every field present in req onto s. The encrypted secret is
// handled by the caller since it needs the server's key.
func (s *Source) Apply(req *SourceRequest) {
	setString(&s.Name, req.Name)
	setString(&s.Slug, req.Slug)
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	setString(&s.ProviderType, req.ProviderType)
	if req.UserMatchingMode != nil {
		s.UserMatchingMode = *req.UserMatchingMode
	}
	setString(&s.UserPathTemplate, req.UserPathTemplate)
	setString(&s.ConsumerKey, req.ConsumerKey)
	setString(&s.AdditionalScopes, req.AdditionalScopes)
	setOptional(&s.AuthorizationURL, req.AuthorizationURL)
	setOptional(&s.AccessTokenURL, req.AccessTokenURL)
	setOptional(&s.ProfileURL, req.ProfileURL)
	setOptional(&s.RequestTokenURL, req.RequestTokenURL)
	setOptional(&s.OIDCWellKnownURL, req.OIDCWellKnownURL)
	setOptional(&s.OIDCJWKSURL, req.OIDCJWKSURL)
	if req.GroupsClaim.Set {
		s.GroupsClaim = cloneString(req.GroupsClaim.Value)
	}
	if req.OIDCJWKS != nil {
		s.OIDCJWKS = req.OIDCJWKS
	}
	if req.UserPropertyMappings != nil {
		s.UserPropertyMappings = append([]string{}, req.UserPropertyMappings...)
	}
	if req.GroupPropertyMappings != nil {
		s.GroupPropertyMappings = append([]string{}, req.GroupPropertyMappings...)
	}
	setOptional(&s.AuthenticationFlow, req.AuthenticationFlow)
	setOptional(&s.EnrollmentFlow, req.EnrollmentFlow)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setOptional(dst **string, v *string) {
	if v != nil {
		val := *v
		*dst = &val
	}
}

// Clone returns a deep copy of the source.
func (s *Source) Clone() *Source {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Type != nil {
		t := *s.Type
		cpy.Type = &t
	}
	cpy.AuthorizationURL = cloneString(s.AuthorizationURL)
	cpy.AccessTokenURL = cloneString(s.AccessTokenURL)
	cpy.ProfileURL = cloneString(s.ProfileURL)
	cpy.RequestTokenURL = cloneString(s.RequestTokenURL)
	cpy.OIDCWellKnownURL = cloneString(s.OIDCWellKnownURL)
	cpy.OIDCJWKSURL = cloneString(s.OIDCJWKSURL)
	cpy.GroupsClaim = cloneString(s.GroupsClaim)
	cpy.AuthenticationFlow = cloneString(s.AuthenticationFlow)
	cpy.EnrollmentFlow = cloneString(s.EnrollmentFlow)
	if s.OIDCJWKS != nil {
		cpy.OIDCJWKS = make(map[string]any, len(s.OIDCJWKS))
		for k, v := range s.OIDCJWKS {
			cpy.OIDCJWKS[k] = v
		}
	}
	if s.UserPropertyMappings != nil {
		cpy.UserPropertyMappings = append([]string{}, s.UserPropertyMappings...)
	}
	if s.GroupPropertyMappings != nil {
		cpy.GroupPropertyMappings = append([]string{}, s.GroupPropertyMappings...)
	}
	return &cpy
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// PropertyMapping translates claims from the external provider into local
// user or group attributes. Read-only for the source editor.
type PropertyMapping struct {
	PK      string `json:"pk"`
	Name    string `json:"name"`
	Managed string `json:"managed,omitempty"`
}

// IconUpload is an icon file selected for upload.
type IconUpload struct {
	Filename string
	Data     []byte
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// NullableString is a request field with three states: absent (the zero
// value, omitted from the wire form), null, and a string value.
type NullableString struct {
	Set   bool
	Value *string
}

// SetString returns a present field holding v.
func SetString(v string) NullableString { return NullableString{Set: true, Value: &v} }

// NullString returns a present field that clears the stored value.
func NullString() NullableString { return NullableString{Set: true} }

// IsZero reports whether the field is absent.
func (n NullableString) IsZero() bool { return !n.Set }

// IsNull reports whether the field is present and null.
func (n NullableString) IsNull() bool { return n.Set && n.Value == nil }

func (n NullableString) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	n.Value = nil
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}
