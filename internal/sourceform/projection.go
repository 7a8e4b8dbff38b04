package sourceform

import (
	"encoding/json"
	"strconv"

	"sourcectl/internal/domain"
)

// FieldName identifies a form field. The values match the payload keys the
// admin UI has always used, so YAML files written for it keep working.
type FieldName string

const (
	FieldSourceName           FieldName = "name"
	FieldSlug                 FieldName = "slug"
	FieldEnabled              FieldName = "enabled"
	FieldUserMatchingMode     FieldName = "userMatchingMode"
	FieldUserPathTemplate     FieldName = "userPathTemplate"
	FieldIcon                 FieldName = "icon"
	FieldClearIcon            FieldName = "clearIcon"
	FieldConsumerKey          FieldName = "consumerKey"
	FieldConsumerSecret       FieldName = "consumerSecret"
	FieldAdditionalScopes     FieldName = "additionalScopes"
	FieldAuthorizationURL     FieldName = "authorizationUrl"
	FieldAccessTokenURL       FieldName = "accessTokenUrl"
	FieldProfileURL           FieldName = "profileUrl"
	FieldRequestTokenURL      FieldName = "requestTokenUrl"
	FieldOIDCWellKnownURL     FieldName = "oidcWellKnownUrl"
	FieldOIDCJWKSURL          FieldName = "oidcJwksUrl"
	FieldGroupsClaim          FieldName = "groupsClaim"
	FieldOIDCJWKS             FieldName = "oidcJwks"
	FieldUserPropertyMapping  FieldName = "userPropertyMappings"
	FieldGroupPropertyMapping FieldName = "groupPropertyMappings"
	FieldAuthenticationFlow   FieldName = "authenticationFlow"
	FieldEnrollmentFlow       FieldName = "enrollmentFlow"
)

// Group is the section a field is rendered in.
type Group string

const (
	GroupGeneral  Group = "general"
	GroupProtocol Group = "protocol"
	GroupURLs     Group = "urls"
	GroupMappings Group = "mappings"
	GroupFlows    Group = "flows"
)

// Kind is the input control a field needs.
type Kind string

const (
	KindText        Kind = "text"
	KindTextarea    Kind = "textarea"
	KindSwitch      Kind = "switch"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multiselect"
	KindFile        Kind = "file"
	KindJSON        Kind = "json"
	KindFlow        Kind = "flow"
)

const (
	// DefaultUserPathTemplate is used when a source has no user path yet.
	DefaultUserPathTemplate = domain.DefaultUserPathTemplate
	// DefaultAuthenticationFlow and DefaultEnrollmentFlow are the fallback
	// flow slugs offered when a source has no flow assigned.
	DefaultAuthenticationFlow = "default-source-authentication"
	DefaultEnrollmentFlow     = "default-source-enrollment"
	// PropertyMappingOrdering is the ordering used to load mapping options.
	PropertyMappingOrdering = "managed"
)

// Option is one entry of a select field.
type Option struct {
	Value    string `json:"value" yaml:"value"`
	Label    string `json:"label" yaml:"label"`
	Selected bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// Field is a visible form field with its rendered default.
type Field struct {
	Name      FieldName `json:"name" yaml:"name"`
	Group     Group     `json:"group" yaml:"group"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Required  bool      `json:"required,omitempty" yaml:"required,omitempty"`
	WriteOnly bool      `json:"write_only,omitempty" yaml:"write_only,omitempty"`
	Default   string    `json:"default,omitempty" yaml:"default,omitempty"`
	// Current shows the value already stored for file fields, which cannot
	// be pre-filled.
	Current string   `json:"current,omitempty" yaml:"current,omitempty"`
	Options []Option `json:"options,omitempty" yaml:"options,omitempty"`
}

// Projection is the evaluated form: the visible fields in render order.
type Projection struct {
	ProviderType string  `json:"provider_type" yaml:"provider_type"`
	Fields       []Field `json:"fields" yaml:"fields"`
}

// Field returns the visible field with the given name.
func (p Projection) Field(name FieldName) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Visible reports whether the named field is part of the projection.
func (p Projection) Visible(name FieldName) bool {
	_, ok := p.Field(name)
	return ok
}

// GroupVisible reports whether any field of g is visible.
func (p Projection) GroupVisible(g Group) bool {
	for _, f := range p.Fields {
		if f.Group == g {
			return true
		}
	}
	return false
}

// Input is everything a projection is computed from.
type Input struct {
	ProviderType *domain.ProviderType
	Instance     *domain.Source
	Config       domain.ServerConfig
	Mappings     []domain.PropertyMapping
}

type fieldRule struct {
	name     FieldName
	group    Group
	kind     Kind
	required bool
	visible  func(in *Input) bool
	render   func(in *Input, f *Field)
}

// rules is the field table in render order. Visibility predicates only look
// at the provider type, the instance and the capability snapshot.
var rules = []fieldRule{
	{name: FieldSourceName, group: GroupGeneral, kind: KindText, required: true, visible: always,
		render: func(in *Input, f *Field) { f.Default = instanceString(in, func(s *domain.Source) string { return s.Name }) }},
	{name: FieldSlug, group: GroupGeneral, kind: KindText, required: true, visible: always,
		render: func(in *Input, f *Field) { f.Default = instanceString(in, func(s *domain.Source) string { return s.Slug }) }},
	{name: FieldEnabled, group: GroupGeneral, kind: KindSwitch, visible: always,
		render: func(in *Input, f *Field) {
			enabled := true
			if in.Instance != nil {
				enabled = in.Instance.Enabled
			}
			f.Default = strconv.FormatBool(enabled)
		}},
	{name: FieldUserMatchingMode, group: GroupGeneral, kind: KindSelect, required: true, visible: always,
		render: renderUserMatchingMode},
	{name: FieldUserPathTemplate, group: GroupGeneral, kind: KindText, visible: always,
		render: func(in *Input, f *Field) {
			f.Default = DefaultUserPathTemplate
			if in.Instance != nil {
				f.Default = in.Instance.UserPathTemplate
			}
		}},
	{name: FieldIcon, group: GroupGeneral, kind: KindFile, visible: canSaveMedia,
		render: func(in *Input, f *Field) { f.Current = instanceString(in, func(s *domain.Source) string { return s.Icon }) }},
	{name: FieldClearIcon, group: GroupGeneral, kind: KindSwitch, visible: hasClearableIcon,
		render: func(_ *Input, f *Field) { f.Default = "false" }},
	{name: FieldIcon, group: GroupGeneral, kind: KindText, visible: not(canSaveMedia),
		render: func(in *Input, f *Field) { f.Default = instanceString(in, func(s *domain.Source) string { return s.Icon }) }},

	{name: FieldConsumerKey, group: GroupProtocol, kind: KindText, required: true, visible: always,
		render: func(in *Input, f *Field) {
			f.Default = instanceString(in, func(s *domain.Source) string { return s.ConsumerKey })
		}},
	{name: FieldConsumerSecret, group: GroupProtocol, kind: KindTextarea, required: true, visible: always,
		render: func(in *Input, f *Field) { f.WriteOnly = in.Instance != nil }},
	{name: FieldAdditionalScopes, group: GroupProtocol, kind: KindText, visible: always,
		render: func(in *Input, f *Field) {
			f.Default = instanceString(in, func(s *domain.Source) string { return s.AdditionalScopes })
		}},

	{name: FieldAuthorizationURL, group: GroupURLs, kind: KindText, visible: urlsCustomizable,
		render: urlDefault(func(s *domain.Source) *string { return s.AuthorizationURL },
			func(p *domain.ProviderType) string { return p.AuthorizationURL })},
	{name: FieldAccessTokenURL, group: GroupURLs, kind: KindText, visible: urlsCustomizable,
		render: urlDefault(func(s *domain.Source) *string { return s.AccessTokenURL },
			func(p *domain.ProviderType) string { return p.AccessTokenURL })},
	{name: FieldProfileURL, group: GroupURLs, kind: KindText, visible: urlsCustomizable,
		render: urlDefault(func(s *domain.Source) *string { return s.ProfileURL },
			func(p *domain.ProviderType) string { return p.ProfileURL })},
	{name: FieldRequestTokenURL, group: GroupURLs, kind: KindText, visible: hasRequestTokenURL,
		render: urlDefault(func(s *domain.Source) *string { return s.RequestTokenURL },
			func(p *domain.ProviderType) string { return p.RequestTokenURL })},
	{name: FieldOIDCWellKnownURL, group: GroupURLs, kind: KindText, visible: showWellKnown,
		render: urlDefault(func(s *domain.Source) *string { return s.OIDCWellKnownURL },
			func(p *domain.ProviderType) string { return p.OIDCWellKnownURL })},
	{name: FieldOIDCJWKSURL, group: GroupURLs, kind: KindText, visible: showJWKS,
		render: urlDefault(func(s *domain.Source) *string { return s.OIDCJWKSURL },
			func(p *domain.ProviderType) string { return p.OIDCJWKSURL })},
	{name: FieldGroupsClaim, group: GroupURLs, kind: KindText, visible: showJWKS,
		render: func(in *Input, f *Field) {
			if in.Instance != nil && in.Instance.GroupsClaim != nil {
				f.Default = *in.Instance.GroupsClaim
			}
		}},
	{name: FieldOIDCJWKS, group: GroupURLs, kind: KindJSON, visible: showJWKS,
		render: func(in *Input, f *Field) {
			var jwks map[string]any
			if in.Instance != nil {
				jwks = in.Instance.OIDCJWKS
			}
			f.Default = FormatJWKS(jwks)
		}},

	{name: FieldUserPropertyMapping, group: GroupMappings, kind: KindMultiSelect, visible: always,
		render: mappingOptions(func(s *domain.Source) []string { return s.UserPropertyMappings })},
	{name: FieldGroupPropertyMapping, group: GroupMappings, kind: KindMultiSelect, visible: always,
		render: mappingOptions(func(s *domain.Source) []string { return s.GroupPropertyMappings })},

	{name: FieldAuthenticationFlow, group: GroupFlows, kind: KindFlow, required: true, visible: always,
		render: flowDefault(func(s *domain.Source) *string { return s.AuthenticationFlow }, DefaultAuthenticationFlow)},
	{name: FieldEnrollmentFlow, group: GroupFlows, kind: KindFlow, required: true, visible: always,
		render: flowDefault(func(s *domain.Source) *string { return s.EnrollmentFlow }, DefaultEnrollmentFlow)},
}

// Project evaluates the field table once for in.
func Project(in Input) Projection {
	p := Projection{}
	if in.ProviderType != nil {
		p.ProviderType = in.ProviderType.Name
	}
	for _, r := range rules {
		if !r.visible(&in) {
			continue
		}
		f := Field{Name: r.name, Group: r.group, Kind: r.kind, Required: r.required}
		if r.render != nil {
			r.render(&in, &f)
		}
		p.Fields = append(p.Fields, f)
	}
	return p
}

func always(*Input) bool { return true }

func not(pred func(*Input) bool) func(*Input) bool {
	return func(in *Input) bool { return !pred(in) }
}

func canSaveMedia(in *Input) bool {
	return in.Config.Has(domain.CapabilityCanSaveMedia)
}

func hasClearableIcon(in *Input) bool {
	return canSaveMedia(in) && in.Instance != nil && in.Instance.Icon != ""
}

func urlsCustomizable(in *Input) bool {
	return in.ProviderType != nil && in.ProviderType.URLsCustomizable
}

func hasRequestTokenURL(in *Input) bool {
	return urlsCustomizable(in) && in.ProviderType.RequestTokenURL != ""
}

func showWellKnown(in *Input) bool {
	return urlsCustomizable(in) &&
		(in.ProviderType.IsOpenIDConnect() || in.ProviderType.OIDCWellKnownURL != "")
}

// showJWKS gates the JWKS URL, groups claim and raw JWKS fields. It requires
// the well-known predicate and its own JWKS-URL predicate.
func showJWKS(in *Input) bool {
	return showWellKnown(in) &&
		(in.ProviderType.IsOpenIDConnect() || in.ProviderType.OIDCJWKSURL != "")
}

func instanceString(in *Input, get func(*domain.Source) string) string {
	if in.Instance == nil {
		return ""
	}
	return get(in.Instance)
}

// urlDefault renders the instance value, else the provider type default,
// else the empty string.
func urlDefault(inst func(*domain.Source) *string, typ func(*domain.ProviderType) string) func(*Input, *Field) {
	return func(in *Input, f *Field) {
		if in.Instance != nil {
			if v := inst(in.Instance); v != nil {
				f.Default = *v
				return
			}
		}
		if in.ProviderType != nil {
			f.Default = typ(in.ProviderType)
		}
	}
}

func flowDefault(inst func(*domain.Source) *string, fallback string) func(*Input, *Field) {
	return func(in *Input, f *Field) {
		f.Default = fallback
		if in.Instance != nil {
			if v := inst(in.Instance); v != nil && *v != "" {
				f.Default = *v
			}
		}
	}
}

func renderUserMatchingMode(in *Input, f *Field) {
	current := domain.UserMatchingIdentifier
	if in.Instance != nil && domain.IsValidUserMatchingMode(in.Instance.UserMatchingMode) {
		current = in.Instance.UserMatchingMode
	}
	f.Default = string(current)
	for _, m := range domain.UserMatchingModes() {
		f.Options = append(f.Options, Option{
			Value:    string(m),
			Label:    m.Label(),
			Selected: m == current,
		})
	}
}

func mappingOptions(selected func(*domain.Source) []string) func(*Input, *Field) {
	return func(in *Input, f *Field) {
		chosen := map[string]bool{}
		if in.Instance != nil {
			for _, pk := range selected(in.Instance) {
				chosen[pk] = true
			}
		}
		for _, m := range in.Mappings {
			f.Options = append(f.Options, Option{Value: m.PK, Label: m.Name, Selected: chosen[m.PK]})
		}
	}
}

// FormatJWKS renders raw JWKS data for the editor; nil renders as "{}".
func FormatJWKS(jwks map[string]any) string {
	if jwks == nil {
		return "{}"
	}
	b, err := json.Marshal(jwks)
	if err != nil {
		return "{}"
	}
	return string(b)
}
