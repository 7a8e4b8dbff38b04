package sourceform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// ParseJWKS turns the raw JWKS editor text into a JSON object. Empty text
// is an empty object. When the object carries a "keys" member, every key
// must be a well-formed JWK.
func ParseJWKS(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("oidc jwks: not a JSON object: %w", err)
	}
	if obj == nil {
		return map[string]any{}, nil
	}
	if _, ok := obj["keys"]; ok {
		var set jose.JSONWebKeySet
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			return nil, fmt.Errorf("oidc jwks: invalid key set: %w", err)
		}
		for i, k := range set.Keys {
			if !k.Valid() {
				return nil, fmt.Errorf("oidc jwks: key %d (%q) is not valid", i, k.KeyID)
			}
		}
	}
	return obj, nil
}
