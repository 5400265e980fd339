// Package authn authenticates bearer tokens presented to protected
// endpoints.
package authn

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/accesstoken"
	"github.com/openkcm/openid-provider/internal/idtoken"
	"github.com/openkcm/openid-provider/internal/keys"
	"github.com/openkcm/openid-provider/internal/serviceerr"
)

var (
	// ErrAuthenticationFailed is returned for every invalid token,
	// whatever the reason.
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrStoreUnavailable = errors.New("access token store unavailable")
)

// Context is what a successfully authenticated request knows about its caller.
type Context struct {
	Subject  string
	ClientID string
	TokenID  string
	Scopes   []string
}

type Authenticator struct {
	key    *keys.SigningKeyPair
	tokens accesstoken.Repository
	skew   time.Duration
	now    func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithClockSkew tolerates clocks that are off by up to d when checking
// exp, nbf and iat.
func WithClockSkew(d time.Duration) Option {
	return func(a *Authenticator) { a.skew = d }
}

func NewAuthenticator(key *keys.SigningKeyPair, tokens accesstoken.Repository, opts ...Option) *Authenticator {
	a := &Authenticator{
		key:    key,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate validates the signature, the validity window and the
// store record of bearer. All checks are evaluated before the outcome is
// decided, so a failure does not reveal which of them failed. A token
// that fails on its own is rejected even when the store cannot be reached;
// otherwise a store error other than "not found" is reported as
// ErrStoreUnavailable.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (Context, error) {
	now := a.now()

	var (
		failures []string
		claims   idtoken.AccessTokenClaims
	)

	parsed, err := jwt.ParseSigned(bearer, []jose.SignatureAlgorithm{keys.Algorithm})
	switch {
	case err != nil:
		failures = append(failures, "malformed")
		parsed = nil
	case len(parsed.Headers) != 1 || !isAccessTokenType(parsed.Headers[0]):
		failures = append(failures, "wrong token type")
	}

	if parsed != nil {
		if a.key == nil {
			failures = append(failures, "no verification key")
			_ = parsed.UnsafeClaimsWithoutVerification(&claims)
		} else if err := parsed.Claims(a.key.PublicKey(), &claims); err != nil {
			failures = append(failures, "signature")
			_ = parsed.UnsafeClaimsWithoutVerification(&claims)
		}
	}

	if claims.Expiry == nil {
		failures = append(failures, "missing exp")
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Time: now}, a.skew); err != nil {
		failures = append(failures, "validity window: "+err.Error())
	}

	// Consulted for every token, valid or not.
	record, storeErr := a.tokens.Load(ctx, claims.ID)
	storeDown := storeErr != nil && !errors.Is(storeErr, serviceerr.ErrNotFound)
	switch {
	case errors.Is(storeErr, serviceerr.ErrNotFound):
		failures = append(failures, "unknown token")
	case storeDown:
		// Decided after the token's own checks.
	default:
		if record.Revoked {
			failures = append(failures, "revoked")
		}
		if record.Expired(now.Add(-a.skew)) {
			failures = append(failures, "record expired")
		}
		if record.Subject != claims.Subject {
			failures = append(failures, "subject mismatch")
		}
		if !slices.Contains(claims.Audience, record.ClientID) {
			failures = append(failures, "audience mismatch")
		}
	}

	if claims.ID == "" {
		failures = append(failures, "missing jti")
	}

	if len(failures) > 0 {
		slogctx.Debug(ctx, "Bearer token rejected", "reasons", strings.Join(failures, ", "))
		return Context{}, ErrAuthenticationFailed
	}

	if storeDown {
		slogctx.Error(ctx, "Failed to consult access token store", "error", storeErr)
		return Context{}, errors.Join(ErrStoreUnavailable, storeErr)
	}

	return Context{
		Subject:  record.Subject,
		ClientID: record.ClientID,
		TokenID:  record.ID,
		Scopes:   slices.Clone(record.Scopes),
	}, nil
}

// Verify checks the signature of token without consulting the store and
// returns its claims. It is used by revocation, which must accept tokens
// that are already expired or unknown.
func (a *Authenticator) Verify(token string) (idtoken.AccessTokenClaims, error) {
	var claims idtoken.AccessTokenClaims
	if a.key == nil {
		return claims, ErrAuthenticationFailed
	}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{keys.Algorithm})
	if err != nil || len(parsed.Headers) != 1 || !isAccessTokenType(parsed.Headers[0]) {
		return claims, ErrAuthenticationFailed
	}

	if err := parsed.Claims(a.key.PublicKey(), &claims); err != nil {
		return idtoken.AccessTokenClaims{}, ErrAuthenticationFailed
	}

	return claims, nil
}

func isAccessTokenType(h jose.Header) bool {
	typ, _ := h.ExtraHeaders[jose.HeaderType].(string)
	return strings.EqualFold(typ, string(idtoken.TypeAccessToken)) ||
		strings.EqualFold(typ, "application/"+string(idtoken.TypeAccessToken))
}
