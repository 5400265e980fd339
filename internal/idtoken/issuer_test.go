package idtoken_test

import (
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	golangjwt "github.com/golang-jwt/jwt/v5"

	"github.com/openkcm/openid-provider/internal/idtoken"
	"github.com/openkcm/openid-provider/internal/keys/keystest"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func validContext() idtoken.AccessTokenContext {
	return idtoken.AccessTokenContext{
		ID:       "at-123",
		ClientID: "client-one",
		Subject:  "u1",
		Scopes:   []string{"openid", "email"},
		Expiry:   fixedNow.Add(time.Hour),
	}
}

func TestIssuer_Issue(t *testing.T) {
	pair := keystest.NewSigningKeyPair(t)
	issuer := idtoken.NewIssuer(pair, idtoken.WithClock(func() time.Time { return fixedNow }))

	atc := validContext()
	atc.Token = "opaque-access-token"

	token, err := issuer.Issue(t.Context(), atc, "https://idp.example.com", "n-0S6_WzA2Mj")
	require.NoError(t, err)

	t.Run("is a compact JWS", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.NotEmpty(t, p)
			assert.NotContains(t, p, "=")
		}
	})

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	require.NoError(t, err)

	t.Run("header", func(t *testing.T) {
		require.Len(t, parsed.Headers, 1)
		assert.Equal(t, "RS256", parsed.Headers[0].Algorithm)
		assert.Equal(t, pair.KeyID(), parsed.Headers[0].KeyID)
		assert.Equal(t, "JWT", parsed.Headers[0].ExtraHeaders[jose.HeaderType])
	})

	t.Run("claims", func(t *testing.T) {
		var claims idtoken.Claims
		require.NoError(t, parsed.Claims(pair.PublicKey(), &claims))

		assert.Equal(t, "https://idp.example.com", claims.Issuer)
		assert.Equal(t, jwt.Audience{"client-one"}, claims.Audience)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, "at-123", claims.ID)
		assert.Equal(t, atc.Expiry.Unix(), claims.Expiry.Time().Unix())
		assert.Equal(t, fixedNow.Unix(), claims.IssuedAt.Time().Unix())
		assert.Equal(t, fixedNow.Unix(), claims.NotBefore.Time().Unix())
		assert.Equal(t, "n-0S6_WzA2Mj", claims.Nonce)
		assert.Equal(t, idtoken.AtHash("opaque-access-token"), claims.AtHash)
	})

	t.Run("fails verification with another key", func(t *testing.T) {
		other := keystest.NewSigningKeyPair(t)

		var claims idtoken.Claims
		assert.Error(t, parsed.Claims(other.PublicKey(), &claims))
	})
}

func TestIssuer_Issue_InteroperatesWithGolangJWT(t *testing.T) {
	pair := keystest.NewSigningKeyPair(t)
	issuer := idtoken.NewIssuer(pair)

	atc := validContext()
	atc.Expiry = time.Now().Add(time.Hour)

	token, err := issuer.Issue(t.Context(), atc, "https://idp.example.com", "")
	require.NoError(t, err)

	claims := golangjwt.MapClaims{}
	parsed, err := golangjwt.ParseWithClaims(token, claims, func(tok *golangjwt.Token) (any, error) {
		return pair.PublicKey(), nil
	},
		golangjwt.WithValidMethods([]string{"RS256"}),
		golangjwt.WithIssuer("https://idp.example.com"),
		golangjwt.WithAudience("client-one"),
		golangjwt.WithExpirationRequired(),
		golangjwt.WithIssuedAt(),
	)
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, pair.KeyID(), parsed.Header["kid"])
	assert.Equal(t, "u1", claims["sub"])
	assert.NotContains(t, claims, "nonce")
	assert.NotContains(t, claims, "at_hash")
}

func TestIssuer_Issue_AudienceIsAlwaysTheClient(t *testing.T) {
	issuer := idtoken.NewIssuer(keystest.NewSigningKeyPair(t), idtoken.WithClock(func() time.Time { return fixedNow }))

	for _, clientID := range []string{"client-one", "client-two", "a-very-long-client-identifier"} {
		t.Run(clientID, func(t *testing.T) {
			atc := validContext()
			atc.ClientID = clientID
			atc.Expiry = fixedNow.Add(17 * time.Minute)

			token, err := issuer.Issue(t.Context(), atc, "https://idp.example.com", "")
			require.NoError(t, err)

			parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
			require.NoError(t, err)

			var claims jwt.Claims
			require.NoError(t, parsed.UnsafeClaimsWithoutVerification(&claims))
			assert.Equal(t, jwt.Audience{clientID}, claims.Audience)
			assert.Equal(t, atc.Expiry.Unix(), claims.Expiry.Time().Unix())
		})
	}
}

func TestIssuer_Issue_Errors(t *testing.T) {
	pair := keystest.NewSigningKeyPair(t)

	tests := []struct {
		name    string
		issuer  *idtoken.Issuer
		modify  func(*idtoken.AccessTokenContext)
		origin  string
		wantErr error
	}{
		{
			name:    "no key material",
			issuer:  idtoken.NewIssuer(nil, idtoken.WithClock(func() time.Time { return fixedNow })),
			origin:  "https://idp.example.com",
			wantErr: idtoken.ErrSigning,
		},
		{
			name:    "missing client",
			modify:  func(c *idtoken.AccessTokenContext) { c.ClientID = "" },
			origin:  "https://idp.example.com",
			wantErr: idtoken.ErrInvalidContext,
		},
		{
			name:    "missing subject",
			modify:  func(c *idtoken.AccessTokenContext) { c.Subject = "" },
			origin:  "https://idp.example.com",
			wantErr: idtoken.ErrInvalidContext,
		},
		{
			name:    "missing id",
			modify:  func(c *idtoken.AccessTokenContext) { c.ID = "" },
			origin:  "https://idp.example.com",
			wantErr: idtoken.ErrInvalidContext,
		},
		{
			name:    "expired access token",
			modify:  func(c *idtoken.AccessTokenContext) { c.Expiry = fixedNow.Add(-time.Second) },
			origin:  "https://idp.example.com",
			wantErr: idtoken.ErrInvalidContext,
		},
		{
			name:    "origin without scheme",
			origin:  "idp.example.com",
			wantErr: idtoken.ErrInvalidOrigin,
		},
		{
			name:    "origin with path",
			origin:  "https://idp.example.com/tenant",
			wantErr: idtoken.ErrInvalidOrigin,
		},
		{
			name:    "non http scheme",
			origin:  "ftp://idp.example.com",
			wantErr: idtoken.ErrInvalidOrigin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := tt.issuer
			if issuer == nil {
				issuer = idtoken.NewIssuer(pair, idtoken.WithClock(func() time.Time { return fixedNow }))
			}

			atc := validContext()
			if tt.modify != nil {
				tt.modify(&atc)
			}

			token, err := issuer.Issue(t.Context(), atc, tt.origin, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, token)
		})
	}
}

func TestIssuer_Issue_TrailingSlashOrigin(t *testing.T) {
	pair := keystest.NewSigningKeyPair(t)
	issuer := idtoken.NewIssuer(pair, idtoken.WithClock(func() time.Time { return fixedNow }))

	token, err := issuer.Issue(t.Context(), validContext(), "http://localhost:8080/", "")
	require.NoError(t, err)

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	require.NoError(t, err)

	var claims jwt.Claims
	require.NoError(t, parsed.Claims(pair.PublicKey(), &claims))
	assert.Equal(t, "http://localhost:8080", claims.Issuer)
}

func TestIssuer_IssueAccessToken(t *testing.T) {
	pair := keystest.NewSigningKeyPair(t)
	issuer := idtoken.NewIssuer(pair, idtoken.WithClock(func() time.Time { return fixedNow }))

	token, err := issuer.IssueAccessToken(t.Context(), validContext(), "https://idp.example.com")
	require.NoError(t, err)

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	require.NoError(t, err)
	assert.Equal(t, "at+jwt", parsed.Headers[0].ExtraHeaders[jose.HeaderType])

	var claims idtoken.AccessTokenClaims
	require.NoError(t, parsed.Claims(pair.PublicKey(), &claims))
	assert.Equal(t, "at-123", claims.ID)
	assert.Equal(t, "client-one", claims.ClientID)
	assert.Equal(t, "openid email", claims.Scope)
	assert.Equal(t, jwt.Audience{"client-one"}, claims.Audience)
}

func TestAtHash(t *testing.T) {
	// Example from OpenID Connect Core 1.0 Appendix A.3.
	assert.Equal(t, "77QmUPtjPfzWtF2AnpK9RQ", idtoken.AtHash("jHkWEdUXMU1BwAsC4vtUsZwnerJp6DxoZ"))
}
