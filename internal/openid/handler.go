package openid

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openkcm/openid-provider/internal/middleware/origin"
	"github.com/openkcm/openid-provider/internal/routes"
)

const defaultJWKSMaxAge = time.Hour

type HandlerConfig struct {
	Enabled    bool
	Origin     origin.Policy
	JWKSMaxAge time.Duration
}

// NewHandler resolves the enabled flag once. A disabled provider is
// served by a handler that answers every request with 404 and an empty
// body; an enabled one by the router of all OpenID Connect endpoints.
func NewHandler(cfg HandlerConfig, p *Provider) (http.Handler, error) {
	if !cfg.Enabled {
		return disabledHandler{}, nil
	}

	if p == nil || p.Keys == nil || p.Authenticator == nil || p.Claims == nil ||
		p.Tokens == nil || p.Publisher == nil || p.Routes == nil {
		return nil, errors.New("openid provider is enabled but not fully configured")
	}

	if cfg.JWKSMaxAge <= 0 {
		cfg.JWKSMaxAge = defaultJWKSMaxAge
	}

	e := &endpoints{
		provider:   p,
		jwksMaxAge: cfg.JWKSMaxAge,
	}

	r := chi.NewRouter()
	r.Use(origin.Middleware(cfg.Origin))

	for _, route := range []struct {
		name    string
		methods []string
		handler http.HandlerFunc
	}{
		{routes.OpenIDConfiguration, []string{http.MethodGet}, e.configuration},
		{routes.Userinfo, []string{http.MethodGet, http.MethodPost}, e.userinfo},
		{routes.Revoke, []string{http.MethodPost}, e.revoke},
		{routes.Certs, []string{http.MethodGet}, e.certs},
		{routes.CheckSession, []string{http.MethodGet}, e.checkSession},
	} {
		path, err := p.Routes.Path(route.name)
		if err != nil {
			return nil, fmt.Errorf("registering %s: %w", route.name, err)
		}

		for _, method := range route.methods {
			r.Method(method, path, route.handler)
		}
	}

	return r, nil
}

type disabledHandler struct{}

func (disabledHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
