package handler

import (
	"net/http"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"
	"github.com/boddenberg/agency-tool-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Options are the transport-level settings of the router.
type Options struct {
	Name    string
	Version string
	// APIKey or APIKeyHash (bcrypt) guards the REST fallback surface.
	APIKey             string
	APIKeyHash         string
	CORSAllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	opts Options,
	registry *service.ToolRegistry,
	dispatcher *service.Dispatcher,
	health *service.HealthAggregator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		MaxAge:         300,
	}))

	// --- JSON-RPC ---
	rpc := mcpHandler(opts, registry, dispatcher, logger)
	r.Post("/", rpc)
	r.Post("/mcp", rpc)

	// --- Diagnostics ---
	r.Get("/health", livenessHandler(opts, registry))
	r.Get("/health/full", fullHealthHandler(health))
	r.Get("/health/{service}", serviceHealthHandler(health))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- REST fallback, one prefix per upstream ---
	if opts.APIKey == "" && opts.APIKeyHash == "" {
		logger.Warn("no gateway API key configured, REST routes will reject every request")
	}
	byService := map[string][]domain.Tool{}
	for _, t := range registry.Tools() {
		byService[t.Service] = append(byService[t.Service], t)
	}
	for _, svc := range registry.Services() {
		r.Route("/"+svc, func(r chi.Router) {
			r.Use(APIKeyMiddleware(opts.APIKey, opts.APIKeyHash, logger))
			for _, t := range byService[svc] {
				r.Method(t.Route.Method, t.Route.Path, restToolHandler(t, dispatcher))
			}
			unknown := unknownEndpointHandler(svc)
			r.NotFound(unknown)
			r.MethodNotAllowed(unknown)
		})
	}

	return r
}
