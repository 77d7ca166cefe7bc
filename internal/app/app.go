// Package app assembles the gateway from configuration: one adapter per
// upstream, the credential cache and its token sources, the dispatcher, the
// health aggregator and the HTTP router.
package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/boddenberg/agency-tool-gateway/internal/config"
	"github.com/boddenberg/agency-tool-gateway/internal/handler"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/boltstore"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/cache"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/oauth"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/resilience"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/upstream"
	"github.com/boddenberg/agency-tool-gateway/internal/port"
	"github.com/boddenberg/agency-tool-gateway/internal/service"
	"github.com/boddenberg/agency-tool-gateway/internal/tools"

	"go.uber.org/zap"
)

// Gateway is a fully wired gateway.
type Gateway struct {
	Registry    *service.ToolRegistry
	Dispatcher  *service.Dispatcher
	Health      *service.HealthAggregator
	Credentials *service.CredentialCache
	Metrics     *observability.Metrics
	Handler     http.Handler

	closers []io.Closer
}

// New builds the gateway. Upstreams whose secrets are missing are still
// registered; their tools fail with UNAUTHORIZED and their probes warn.
func New(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	g := &Gateway{Metrics: observability.NewMetrics()}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	registry, err := service.NewToolRegistry(tools.All())
	if err != nil {
		return nil, fmt.Errorf("tool catalog: %w", err)
	}
	g.Registry = registry

	resilienceCfg := resilience.Config{MaxConcurrency: cfg.MaxConcurrency}
	adapters := make(map[string]port.ServiceAdapter, len(tools.Services()))
	for _, svc := range tools.Services() {
		opts := upstreamOptions(cfg, svc)
		adapters[svc] = upstream.NewClient(httpClient, opts, resilienceCfg, logger)
		if len(opts.MissingSettings) > 0 {
			logger.Warn("upstream not configured",
				zap.String("upstream", svc),
				zap.Strings("missing", opts.MissingSettings),
			)
		}
	}

	store, err := credentialStore(cfg)
	if err != nil {
		return nil, err
	}
	g.closers = append(g.closers, store)

	sources, err := tokenSources(cfg, httpClient)
	if err != nil {
		g.Close()
		return nil, err
	}

	var credOpts []service.CredentialOption
	credOpts = append(credOpts, service.WithRefreshSkew(cfg.CredentialRefreshSkew))
	if cfg.CredentialSingleflight {
		credOpts = append(credOpts, service.WithSingleflight())
	}
	g.Credentials = service.NewCredentialCache(store, sources, g.Metrics, logger, credOpts...)

	classifier := service.NewErrorClassifier(tools.GoogleServices()...)

	g.Dispatcher, err = service.NewDispatcher(registry, adapters, g.Credentials, classifier, g.Metrics, logger)
	if err != nil {
		g.Close()
		return nil, err
	}

	g.Health, err = service.NewHealthAggregator(tools.Probes(), adapters, g.Credentials, classifier,
		service.HealthConfig{
			Version:      cfg.Version,
			ToolCount:    registry.Len(),
			ProbeTimeout: cfg.HealthProbeTimeout,
		}, g.Metrics, logger)
	if err != nil {
		g.Close()
		return nil, err
	}

	g.Handler = handler.NewRouter(handler.Options{
		Name:               cfg.Name,
		Version:            cfg.Version,
		APIKey:             cfg.APIKey,
		APIKeyHash:         cfg.APIKeyHash,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, registry, g.Dispatcher, g.Health, g.Metrics, logger)

	return g, nil
}

// Close releases the credential store.
func (g *Gateway) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type closableStore interface {
	port.CredentialStore
	io.Closer
}

func credentialStore(cfg *config.Config) (closableStore, error) {
	if cfg.CredentialStore == config.StoreBolt {
		store, err := boltstore.Open(cfg.CredentialStorePath, cfg.CacheNamespace)
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		return store, nil
	}
	return cache.NewCredentialStore(), nil
}

// tokenSources prefers a service account over the refresh-token grant.
func tokenSources(cfg *config.Config, httpClient *http.Client) (map[string]port.TokenSource, error) {
	sources := map[string]port.TokenSource{}
	g := cfg.Google
	switch {
	case g.ServiceAccountFile != "":
		key, err := oauth.LoadServiceAccountKey(g.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		src, err := oauth.NewServiceAccountSource(httpClient, tools.GoogleIdentity, key, g.Scopes, g.ImpersonateSubject)
		if err != nil {
			return nil, err
		}
		sources[tools.GoogleIdentity] = src
	case g.HasRefreshToken():
		sources[tools.GoogleIdentity] = oauth.NewRefreshTokenSource(httpClient, tools.GoogleIdentity,
			g.TokenURL, g.ClientID, g.ClientSecret, g.RefreshToken)
	}
	return sources, nil
}

// upstreamOptions maps configuration onto the adapter for one upstream.
func upstreamOptions(cfg *config.Config, svc string) upstream.Options {
	opts := upstream.Options{
		Name:    svc,
		BaseURL: cfg.BaseURL(svc),
		Auth:    upstream.AuthBearer,
	}
	var missing []string
	need := func(value, setting string) {
		if value == "" {
			missing = append(missing, setting)
		}
	}

	switch svc {
	case tools.Gmail, tools.Calendar, tools.Drive, tools.Sheets, tools.Docs, tools.GAds:
		opts.Identity = tools.GoogleIdentity
		if cfg.Google.ServiceAccountFile == "" && !cfg.Google.HasRefreshToken() {
			missing = append(missing, "GOOGLE_REFRESH_TOKEN or GOOGLE_SERVICE_ACCOUNT_FILE")
		}
		if svc == tools.GAds {
			need(cfg.Google.AdsDeveloperToken, "GOOGLE_ADS_DEVELOPER_TOKEN")
			opts.Header = http.Header{"Developer-Token": {cfg.Google.AdsDeveloperToken}}
			if cfg.Google.AdsLoginCustomerID != "" {
				opts.Header.Set("Login-Customer-Id", cfg.Google.AdsLoginCustomerID)
			}
		}
	case tools.Meta:
		opts.APIKey = cfg.MetaAccessToken
		opts.Auth = upstream.AuthQuery
		opts.AuthParam = "access_token"
		need(cfg.MetaAccessToken, "META_ACCESS_TOKEN")
	case tools.Vercel:
		opts.APIKey = cfg.VercelToken
		if cfg.VercelTeamID != "" {
			opts.Query = url.Values{"teamId": {cfg.VercelTeamID}}
		}
		need(cfg.VercelToken, "VERCEL_TOKEN")
	case tools.Sentry:
		opts.APIKey = cfg.SentryAuthToken
		need(cfg.SentryAuthToken, "SENTRY_AUTH_TOKEN")
		need(cfg.SentryOrg, "SENTRY_ORG")
	case tools.Mercury:
		opts.APIKey = cfg.MercuryAPIKey
		need(cfg.MercuryAPIKey, "MERCURY_API_KEY")
	case tools.Browser:
		opts.APIKey = cfg.BrowserlessToken
		opts.Auth = upstream.AuthQuery
		opts.AuthParam = "token"
		need(cfg.BrowserlessToken, "BROWSERLESS_TOKEN")
	case tools.Supabase:
		opts.APIKey = cfg.SupabaseServiceRoleKey
		opts.Header = http.Header{"Apikey": {cfg.SupabaseServiceRoleKey}}
		need(cfg.SupabaseURL, "SUPABASE_URL")
		need(cfg.SupabaseServiceRoleKey, "SUPABASE_SERVICE_ROLE_KEY")
	case tools.Memory:
		if cfg.MemoryAPIKey != "" {
			opts.APIKey = "Token " + cfg.MemoryAPIKey
		}
		opts.Auth = upstream.AuthHeader
		opts.AuthParam = "Authorization"
		need(cfg.MemoryAPIKey, "MEMORY_API_KEY")
	}

	if opts.BaseURL == "" && len(missing) == 0 {
		missing = append(missing, fmt.Sprintf("%s base URL", svc))
	}
	opts.MissingSettings = missing
	return opts
}
