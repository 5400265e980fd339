// Package discovery builds the OpenID Provider Metadata document served at
// /.well-known/openid-configuration.
package discovery

import (
	"fmt"
	"slices"

	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/openkcm/openid-provider/internal/keys"
	"github.com/openkcm/openid-provider/internal/routes"
)

// Document is the subset of
// https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
// this provider publishes.
type Document struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	CheckSessionIframe                string   `json:"check_session_iframe"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ClaimTypesSupported               []string `json:"claim_types_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// Capabilities are the configurable parts of the document. Empty fields
// fall back to the defaults below.
type Capabilities struct {
	Scopes                   []string
	GrantTypes               []string
	TokenEndpointAuthMethods []string
	Claims                   []string
}

var (
	DefaultScopes = []string{
		oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail, oidc.ScopeAddress, oidc.ScopePhone,
	}
	DefaultGrantTypes = []string{
		string(oidc.GrantTypeCode), string(oidc.GrantTypeRefreshToken),
	}
	DefaultTokenEndpointAuthMethods = []string{
		string(oidc.AuthMethodBasic), string(oidc.AuthMethodPost),
	}
)

// RouteResolver turns a route name into an absolute URL below origin.
type RouteResolver interface {
	AbsoluteURL(origin, name string) (string, error)
}

type Publisher struct {
	capabilities Capabilities
}

func NewPublisher(c Capabilities) *Publisher {
	return &Publisher{
		capabilities: Capabilities{
			Scopes:                   orDefault(c.Scopes, DefaultScopes),
			GrantTypes:               orDefault(c.GrantTypes, DefaultGrantTypes),
			TokenEndpointAuthMethods: orDefault(c.TokenEndpointAuthMethods, DefaultTokenEndpointAuthMethods),
			Claims:                   orDefault(c.Claims, []string{"sub"}),
		},
	}
}

// Publish builds the document for origin, the scheme and host of the
// current request. Issuer and endpoints always share that origin.
func (p *Publisher) Publish(origin string, resolver RouteResolver) (Document, error) {
	endpoints := map[string]*string{}
	doc := Document{
		Issuer:                            origin,
		ScopesSupported:                   slices.Clone(p.capabilities.Scopes),
		ResponseTypesSupported:            []string{string(oidc.ResponseTypeCode), string(oidc.ResponseTypeIDTokenOnly)},
		ResponseModesSupported:            []string{string(oidc.ResponseModeQuery), string(oidc.ResponseModeFragment)},
		GrantTypesSupported:               slices.Clone(p.capabilities.GrantTypes),
		TokenEndpointAuthMethodsSupported: slices.Clone(p.capabilities.TokenEndpointAuthMethods),
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{string(keys.Algorithm)},
		ClaimTypesSupported:               []string{"normal"},
		ClaimsSupported:                   slices.Clone(p.capabilities.Claims),
	}

	endpoints[routes.Authorize] = &doc.AuthorizationEndpoint
	endpoints[routes.Token] = &doc.TokenEndpoint
	endpoints[routes.Userinfo] = &doc.UserinfoEndpoint
	endpoints[routes.Revoke] = &doc.RevocationEndpoint
	endpoints[routes.Certs] = &doc.JwksURI
	endpoints[routes.CheckSession] = &doc.CheckSessionIframe

	for name, field := range endpoints {
		u, err := resolver.AbsoluteURL(origin, name)
		if err != nil {
			return Document{}, fmt.Errorf("resolving %s endpoint: %w", name, err)
		}
		*field = u
	}

	return doc, nil
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return slices.Clone(def)
	}
	return slices.Clone(v)
}
