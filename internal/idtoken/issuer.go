// Package idtoken issues the signed JWTs handed out when an authorization
// grant completes: the identity token and the access token it accompanies.
package idtoken

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/keys"
)

const (
	// TypeIDToken is the typ header of identity tokens.
	TypeIDToken jose.ContentType = "JWT"

	// TypeAccessToken is the typ header of access tokens (RFC 9068).
	TypeAccessToken jose.ContentType = "at+jwt"
)

var (
	ErrSigning        = errors.New("signing token")
	ErrInvalidContext = errors.New("invalid access token context")
	ErrInvalidOrigin  = errors.New("invalid issuer origin")
)

// AccessTokenContext describes the access token an identity token is
// issued alongside.
type AccessTokenContext struct {
	ID       string
	ClientID string
	Subject  string
	Scopes   []string
	Expiry   time.Time

	// Token is the serialized access token. When set the identity token
	// carries its at_hash.
	Token string
}

// Claims is the payload of an identity token.
type Claims struct {
	jwt.Claims

	Nonce  string `json:"nonce,omitempty"`
	AtHash string `json:"at_hash,omitempty"`
}

// AccessTokenClaims is the payload of an access token.
type AccessTokenClaims struct {
	jwt.Claims

	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
}

type Issuer struct {
	key *keys.SigningKeyPair
	now func() time.Time
}

type Option func(*Issuer)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(key *keys.SigningKeyPair, opts ...Option) *Issuer {
	i := &Issuer{
		key: key,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Issue signs an identity token for atc. origin is the scheme and host of
// the request being served and becomes the iss claim. The audience is
// always the client the access token was issued to.
func (i *Issuer) Issue(ctx context.Context, atc AccessTokenContext, origin, nonce string) (string, error) {
	issuer, err := normalizeOrigin(origin)
	if err != nil {
		return "", err
	}

	now := i.now()
	if err := atc.validate(now); err != nil {
		return "", err
	}

	claims := Claims{
		Claims: jwt.Claims{
			Issuer:    issuer,
			Subject:   atc.Subject,
			Audience:  jwt.Audience{atc.ClientID},
			Expiry:    jwt.NewNumericDate(atc.Expiry),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        atc.ID,
		},
		Nonce: nonce,
	}

	if atc.Token != "" {
		claims.AtHash = AtHash(atc.Token)
	}

	token, err := i.sign(TypeIDToken, claims)
	if err != nil {
		return "", err
	}

	slogctx.Debug(ctx, "Issued identity token", "jti", atc.ID, "client_id", atc.ClientID, "issuer", issuer)

	return token, nil
}

// IssueAccessToken signs the JWT form of the access token described by atc.
// Its jti is atc.ID, which is the key the access token store is consulted with.
func (i *Issuer) IssueAccessToken(ctx context.Context, atc AccessTokenContext, origin string) (string, error) {
	issuer, err := normalizeOrigin(origin)
	if err != nil {
		return "", err
	}

	now := i.now()
	if err := atc.validate(now); err != nil {
		return "", err
	}

	claims := AccessTokenClaims{
		Claims: jwt.Claims{
			Issuer:    issuer,
			Subject:   atc.Subject,
			Audience:  jwt.Audience{atc.ClientID},
			Expiry:    jwt.NewNumericDate(atc.Expiry),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        atc.ID,
		},
		ClientID: atc.ClientID,
		Scope:    strings.Join(atc.Scopes, " "),
	}

	token, err := i.sign(TypeAccessToken, claims)
	if err != nil {
		return "", err
	}

	slogctx.Debug(ctx, "Issued access token", "jti", atc.ID, "client_id", atc.ClientID)

	return token, nil
}

func (i *Issuer) sign(typ jose.ContentType, claims any) (string, error) {
	if i.key == nil {
		return "", errors.Join(ErrSigning, errors.New("no signing key loaded"))
	}

	signer, err := i.key.NewSigner(typ)
	if err != nil {
		return "", errors.Join(ErrSigning, err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", errors.Join(ErrSigning, fmt.Errorf("serializing token: %w", err))
	}

	return token, nil
}

// AtHash is the base64url encoded left half of the SHA-256 digest of
// an access token (OpenID Connect Core 3.1.3.6).
func AtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func (c AccessTokenContext) validate(now time.Time) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing token id", ErrInvalidContext)
	case c.ClientID == "":
		return fmt.Errorf("%w: missing client id", ErrInvalidContext)
	case c.Subject == "":
		return fmt.Errorf("%w: missing subject", ErrInvalidContext)
	case !c.Expiry.After(now):
		return fmt.Errorf("%w: access token already expired", ErrInvalidContext)
	}

	return nil
}

// normalizeOrigin accepts "scheme://host[:port]" and strips a trailing slash.
func normalizeOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) origin", ErrInvalidOrigin, origin)
	}

	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", fmt.Errorf("%w: %q must only consist of scheme and host", ErrInvalidOrigin, origin)
	}

	return u.Scheme + "://" + u.Host, nil
}
