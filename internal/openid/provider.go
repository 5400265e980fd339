// Package openid wires the OpenID Connect components together and serves
// them over HTTP.
package openid

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/openkcm/openid-provider/internal/accesstoken"
	"github.com/openkcm/openid-provider/internal/authn"
	"github.com/openkcm/openid-provider/internal/discovery"
	"github.com/openkcm/openid-provider/internal/idtoken"
	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/userinfo"
)

const DefaultAccessTokenTTL = time.Hour

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (authn.Context, error)
	Verify(token string) (idtoken.AccessTokenClaims, error)
}

type ClaimResolver interface {
	Resolve(ctx context.Context, subjectID string, scopes []string) (userinfo.ClaimSet, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, atc idtoken.AccessTokenContext, origin, nonce string) (string, error)
	IssueAccessToken(ctx context.Context, atc idtoken.AccessTokenContext, origin string) (string, error)
}

type KeySet interface {
	JWKS() jose.JSONWebKeySet
}

type RouteResolver interface {
	discovery.RouteResolver
	Path(name string) (string, error)
}

// Provider bundles the components behind the OpenID Connect endpoints.
type Provider struct {
	Keys          KeySet
	Issuer        TokenIssuer
	Authenticator Authenticator
	Claims        ClaimResolver
	Tokens        accesstoken.Repository
	Publisher     *discovery.Publisher
	Routes        RouteResolver

	// Now is the clock CompleteGrant stamps tokens with. Defaults to time.Now.
	Now func() time.Time
}

// Grant is a completed authorization grant as handed over by the OAuth2
// grant machinery.
type Grant struct {
	ClientID string
	Subject  string
	Scopes   []string

	// Nonce is the nonce of the original authorization request, if any.
	Nonce string

	// TTL of the access token. Zero means DefaultAccessTokenTTL.
	TTL time.Duration
}

// TokenResponse is the successful token endpoint response of RFC6749
// section 5.1 extended with the id_token of OpenID Connect.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
}

// CompleteGrant issues and records the access token for g and, when the
// openid scope was granted, the identity token that accompanies it.
// origin becomes the issuer of both tokens.
func (p *Provider) CompleteGrant(ctx context.Context, origin string, g Grant) (TokenResponse, error) {
	if g.ClientID == "" || g.Subject == "" {
		return TokenResponse{}, serviceerr.ErrInvalidGrant.WithDescription("client and subject are required")
	}

	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	// Sub-second precision is lost in the exp claim; keep the record in line.
	expiry := now().Add(ttl).Truncate(time.Second)

	atc := idtoken.AccessTokenContext{
		ID:       uuid.NewString(),
		ClientID: g.ClientID,
		Subject:  g.Subject,
		Scopes:   slices.Clone(g.Scopes),
		Expiry:   expiry,
	}

	accessToken, err := p.Issuer.IssueAccessToken(ctx, atc, origin)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("issuing access token: %w", err)
	}

	if err := p.Tokens.Save(ctx, accesstoken.AccessToken{
		ID:       atc.ID,
		ClientID: atc.ClientID,
		Subject:  atc.Subject,
		Scopes:   atc.Scopes,
		Expiry:   atc.Expiry,
	}); err != nil {
		return TokenResponse{}, fmt.Errorf("saving access token: %w", err)
	}

	resp := TokenResponse{
		AccessToken: accessToken,
		TokenType:   oidc.BearerToken,
		ExpiresIn:   int64(ttl / time.Second),
		Scope:       strings.Join(g.Scopes, " "),
	}

	if slices.Contains(g.Scopes, oidc.ScopeOpenID) {
		atc.Token = accessToken
		resp.IDToken, err = p.Issuer.Issue(ctx, atc, origin, g.Nonce)
		if err != nil {
			return TokenResponse{}, fmt.Errorf("issuing identity token: %w", err)
		}
	}

	return resp, nil
}
