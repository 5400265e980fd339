// Package routes names the HTTP routes of the provider and turns them
// into absolute URLs for a given origin.
package routes

import (
	"errors"
	"fmt"
	"net/url"
)

const (
	Authorize           = "oauth2_authorize"
	Token               = "oauth2_token"
	Userinfo            = "oauth2_userinfo"
	Revoke              = "oauth2_revoke"
	Certs               = "oauth2_certs"
	CheckSession        = "oauth2_checksession"
	OpenIDConfiguration = "openid_configuration"
)

var ErrRouteResolution = errors.New("resolving route")

// DefaultPaths maps every route name to its path. The authorize and token
// routes are served by the OAuth2 grant machinery, not by this service.
var DefaultPaths = map[string]string{
	Authorize:           "/authorize",
	Token:               "/token",
	Userinfo:            "/oauth2/userinfo",
	Revoke:              "/oauth2/revoke",
	Certs:               "/oauth2/certs",
	CheckSession:        "/oauth2/checksession",
	OpenIDConfiguration: "/.well-known/openid-configuration",
}

// Resolver resolves route names against a fixed table.
type Resolver struct {
	paths map[string]string
}

// NewResolver returns a Resolver over DefaultPaths with overrides applied.
func NewResolver(overrides map[string]string) *Resolver {
	paths := make(map[string]string, len(DefaultPaths))
	for name, path := range DefaultPaths {
		paths[name] = path
	}
	for name, path := range overrides {
		paths[name] = path
	}
	return &Resolver{paths: paths}
}

func (r *Resolver) Path(name string) (string, error) {
	path, ok := r.paths[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown route %q", ErrRouteResolution, name)
	}
	return path, nil
}

// AbsoluteURL joins origin ("scheme://host") and the path of route name.
func (r *Resolver) AbsoluteURL(origin, name string) (string, error) {
	path, err := r.Path(name)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: invalid origin %q", ErrRouteResolution, origin)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("%w: invalid path %q: %w", ErrRouteResolution, path, err)
	}

	// An absolute override (e.g. an external authorization server) is kept as is.
	if ref.IsAbs() {
		return ref.String(), nil
	}

	return base.ResolveReference(ref).String(), nil
}
