package openid

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/authn"
	"github.com/openkcm/openid-provider/internal/middleware/origin"
	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/userinfo"
)

type endpoints struct {
	provider   *Provider
	jwksMaxAge time.Duration
}

func (e *endpoints) configuration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, err := origin.FromContext(ctx)
	if err != nil {
		slogctx.Error(ctx, "Missing request origin", "error", err)
		serviceerr.WriteJSON(w, serviceerr.ErrServerError)
		return
	}

	doc, err := e.provider.Publisher.Publish(o, e.provider.Routes)
	if err != nil {
		slogctx.Error(ctx, "Failed to build the discovery document", "error", err)
		serviceerr.WriteJSON(w, serviceerr.ErrServerError)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (e *endpoints) userinfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bearer, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	actx, err := e.provider.Authenticator.Authenticate(ctx, bearer)
	switch {
	case errors.Is(err, authn.ErrStoreUnavailable):
		serviceerr.WriteJSON(w, serviceerr.ErrTemporarilyUnavailable)
		return
	case err != nil:
		w.Header().Set("WWW-Authenticate", `Bearer error="`+string(serviceerr.CodeInvalidToken)+`"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	claims, err := e.provider.Claims.Resolve(ctx, actx.Subject, actx.Scopes)
	if err != nil {
		slogctx.Error(ctx, "Failed to resolve userinfo claims", "error", err)
		if errors.Is(err, userinfo.ErrStoreUnavailable) {
			serviceerr.WriteJSON(w, serviceerr.ErrTemporarilyUnavailable)
			return
		}
		serviceerr.WriteJSON(w, serviceerr.ErrServerError)
		return
	}

	resp := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		resp[k] = v
	}
	resp["sub"] = actx.Subject

	writeJSON(w, http.StatusOK, resp)
}

// revoke implements RFC7009. Unknown, invalid and foreign tokens are
// answered with 200 like successfully revoked ones.
func (e *endpoints) revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidRequest.WithDescription("malformed form body"))
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidRequest.WithDescription("token is required"))
		return
	}

	claims, err := e.provider.Authenticator.Verify(token)
	if err != nil {
		slogctx.Debug(ctx, "Ignoring revocation of an invalid token")
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	clientID := r.PostForm.Get("client_id")
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		clientID = user
	}

	if clientID != "" && !slices.Contains(claims.Audience, clientID) {
		slogctx.Info(ctx, "Ignoring revocation by a client the token was not issued to", "client_id", clientID, "jti", claims.ID)
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	if err := e.provider.Tokens.Revoke(ctx, claims.ID); err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		slogctx.Error(ctx, "Failed to revoke access token", "error", err, "jti", claims.ID)
		serviceerr.WriteJSON(w, serviceerr.ErrTemporarilyUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

func (e *endpoints) certs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(e.jwksMaxAge/time.Second)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	writeJSON(w, http.StatusOK, e.provider.Keys.JWKS())
}

func (e *endpoints) checkSession(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
