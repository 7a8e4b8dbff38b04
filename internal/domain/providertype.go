package domain

// ProviderTypeOpenIDConnect is the name of the generic OpenID Connect
// provider type. It always exposes the OIDC specific settings.
const ProviderTypeOpenIDConnect = "openidconnect"

// ProviderType describes an identity-provider family: its default endpoints
// and whether an administrator may override them.
type ProviderType struct {
	Name             string `json:"name"`
	VerboseName      string `json:"verbose_name"`
	URLsCustomizable bool   `json:"urls_customizable"`
	RequestTokenURL  string `json:"request_token_url,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	AccessTokenURL   string `json:"access_token_url,omitempty"`
	ProfileURL       string `json:"profile_url,omitempty"`
	OIDCWellKnownURL string `json:"oidc_well_known_url,omitempty"`
	OIDCJWKSURL      string `json:"oidc_jwks_url,omitempty"`
}

// IsOpenIDConnect reports whether the type is the generic OIDC type.
func (p *ProviderType) IsOpenIDConnect() bool {
	return p != nil && p.Name == ProviderTypeOpenIDConnect
}

// Capability is a feature flag advertised by the backend.
type Capability string

const (
	CapabilityCanSaveMedia   Capability = "can_save_media"
	CapabilityCanGeoIP       Capability = "can_geo_ip"
	CapabilityCanImpersonate Capability = "can_impersonate"
	CapabilityCanDebug       Capability = "can_debug"
)

// ServerConfig is the backend's root configuration as seen by clients.
type ServerConfig struct {
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether the backend advertises c.
func (c ServerConfig) Has(capability Capability) bool {
	for _, v := range c.Capabilities {
		if v == capability {
			return true
		}
	}
	return false
}
