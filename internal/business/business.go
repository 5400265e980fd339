package business

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/accesstoken"
	accesstokenvalkey "github.com/openkcm/openid-provider/internal/accesstoken/valkey"
	"github.com/openkcm/openid-provider/internal/authn"
	"github.com/openkcm/openid-provider/internal/business/server"
	"github.com/openkcm/openid-provider/internal/config"
	"github.com/openkcm/openid-provider/internal/discovery"
	"github.com/openkcm/openid-provider/internal/idtoken"
	"github.com/openkcm/openid-provider/internal/keys"
	"github.com/openkcm/openid-provider/internal/middleware/origin"
	"github.com/openkcm/openid-provider/internal/openid"
	"github.com/openkcm/openid-provider/internal/routes"
	"github.com/openkcm/openid-provider/internal/subject"
	subjectcache "github.com/openkcm/openid-provider/internal/subject/cache"
	subjectsql "github.com/openkcm/openid-provider/internal/subject/sql"
	"github.com/openkcm/openid-provider/internal/userinfo"
)

// Main starts both API servers
func Main(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errChan is used to capture the first error and shutdown the servers.
	errChan := make(chan error, 2)

	// wg is used to wait for all servers to shutdown.
	var wg sync.WaitGroup

	// start public HTTP API server
	wg.Go(func() {
		errChan <- publicMain(ctx, cfg)
	})

	// start internal gRPC health server
	wg.Go(func() {
		errChan <- internalMain(ctx, cfg)
	})

	// wait for any error to initiate the shutdown
	err := <-errChan
	if err != nil {
		slogctx.Error(ctx, "Shutting down servers", "error", err)
	}
	cancel()

	// wait for all servers to shutdown
	wg.Wait()

	return err
}

// publicMain starts the HTTP server of the OpenID Connect endpoints.
func publicMain(ctx context.Context, cfg *config.Config) error {
	handler, closeFn, err := initOpenIDHandler(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the openid provider: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, handler)
}

// internalMain starts the gRPC health server.
func internalMain(ctx context.Context, cfg *config.Config) error {
	return server.StartGRPCServer(ctx, cfg)
}

// initOpenIDHandler builds the OpenID Connect handler. A disabled provider
// needs neither key material nor any store.
func initOpenIDHandler(ctx context.Context, cfg *config.Config) (_ http.Handler, closeFn func(), _ error) {
	if !cfg.OpenID.Enabled {
		slogctx.Info(ctx, "OpenID Connect is disabled")

		handler, err := openid.NewHandler(openid.HandlerConfig{Enabled: false}, nil)
		return handler, func() {}, err
	}

	key, err := keys.LoadSigningKey(cfg.OpenID.SigningKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading signing key: %w", err)
	}

	slogctx.Info(ctx, "Loaded signing key", "kid", key.KeyID(), "path", cfg.OpenID.SigningKeyFile)

	db, err := newDBPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	valkeyClient, err := newValkeyClient(cfg.ValKey)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	closeFn = func() {
		valkeyClient.Close()
		db.Close()
	}

	handler, err := newOpenIDHandler(cfg, key, subjectsql.NewRepository(db),
		accesstokenvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix))
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	return handler, closeFn, nil
}

func newOpenIDHandler(
	cfg *config.Config,
	key *keys.SigningKeyPair,
	subjects subject.Repository,
	tokens accesstoken.Repository,
) (http.Handler, error) {
	if cfg.OpenID.SubjectCacheTTL > 0 {
		subjects = subjectcache.NewRepository(subjects, cfg.OpenID.SubjectCacheTTL)
	}

	resolver := userinfo.NewResolver(subjects, cfg.OpenID.ScopeClaims)

	claims := cfg.OpenID.Claims
	if len(claims) == 0 {
		claims = append([]string{"sub"}, resolver.SupportedClaims()...)
	}

	provider := &openid.Provider{
		Keys:          key,
		Issuer:        idtoken.NewIssuer(key),
		Authenticator: authn.NewAuthenticator(key, tokens, authn.WithClockSkew(cfg.OpenID.ClockSkew)),
		Claims:        resolver,
		Tokens:        tokens,
		Publisher: discovery.NewPublisher(discovery.Capabilities{
			Scopes:                   cfg.OpenID.Scopes,
			GrantTypes:               cfg.OpenID.GrantTypes,
			TokenEndpointAuthMethods: cfg.OpenID.TokenEndpointAuthMethods,
			Claims:                   claims,
		}),
		Routes: routes.NewResolver(cfg.OpenID.Routes),
	}

	handler, err := openid.NewHandler(openid.HandlerConfig{
		Enabled: true,
		Origin: origin.Policy{
			AllowedHosts:          cfg.OpenID.AllowedHosts,
			TrustForwardedHeaders: cfg.OpenID.TrustForwardedHeaders,
		},
		JWKSMaxAge: cfg.OpenID.JWKSMaxAge,
	}, provider)
	if err != nil {
		return nil, fmt.Errorf("creating openid handler: %w", err)
	}

	return handler, nil
}

func newDBPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	if err := otelpgx.RecordStats(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording pgxpool stats: %w", err)
	}

	return db, nil
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}
