// Package origin derives the scheme and host a request was addressed to
// and makes it available to later handlers. The origin is what the
// provider uses as its issuer identifier.
package origin

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/serviceerr"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// OriginKey is the context key used to store the origin of the request.
const OriginKey contextKey = "origin"

// Policy controls which request headers are trusted and which hosts are
// accepted.
type Policy struct {
	// AllowedHosts lists the hosts (with port, if any) that may act as
	// issuer. An empty list accepts every host.
	AllowedHosts []string

	// TrustForwardedHeaders takes X-Forwarded-Proto and X-Forwarded-Host
	// into account. Only enable it behind a proxy that sets them.
	TrustForwardedHeaders bool
}

// Middleware stores the origin of every request in its context and
// answers 400 for hosts outside of the allow-list.
func Middleware(policy Policy) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(policy.AllowedHosts))
	for _, h := range policy.AllowedHosts {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(h)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, host := fromRequest(r, policy.TrustForwardedHeaders)
			o, ok := build(scheme, host)
			if !ok || (len(allowed) > 0 && !slices.Contains(allowed, host)) {
				slogctx.Warn(r.Context(), "Rejected request for a host that is not allowed", "host", host)
				serviceerr.WriteJSON(w, serviceerr.ErrHostNotAllowed)
				return
			}

			ctx := context.WithValue(r.Context(), OriginKey, o)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the origin stored by Middleware.
func FromContext(ctx context.Context) (string, error) {
	o, ok := ctx.Value(OriginKey).(string)
	if !ok {
		return "", errors.New("origin not found in context")
	}
	return o, nil
}

// fromRequest returns the lowercased scheme and host of r.
func fromRequest(r *http.Request, trustForwarded bool) (scheme, host string) {
	scheme = "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host = r.Host

	if trustForwarded {
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
	}

	return scheme, strings.ToLower(host)
}

// build joins scheme and host into an origin. It fails unless host is a
// bare host with an optional port.
func build(scheme, host string) (string, bool) {
	if host == "" || strings.HasSuffix(host, ":") || strings.ContainsAny(host, "/?#@\\ ") {
		return "", false
	}

	o := (&url.URL{Scheme: scheme, Host: host}).String()

	u, err := url.Parse(o)
	if err != nil || u.Host != host || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}

	return o, true
}

func firstValue(header string) string {
	v, _, _ := strings.Cut(header, ",")
	return strings.ToLower(strings.TrimSpace(v))
}
