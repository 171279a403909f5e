package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	healthhandler "github.com/circuitpointe-dev/centora-sub011/internal/health/handler"
	"github.com/circuitpointe-dev/centora-sub011/internal/server/middleware"
)

// Routes mounts API endpoints on a router that already carries the API middleware chain.
type Routes interface {
	Routes(r chi.Router)
}

// Instrumenter wraps handlers with HTTP metrics and exposes them.
type Instrumenter interface {
	Instrument(next http.Handler) http.Handler
	Handler() http.Handler
}

// HTTPDeps holds what the HTTP router needs. Metrics and Limiter may be nil.
type HTTPDeps struct {
	Log          logrus.FieldLogger
	Tokens       middleware.AccessValidator
	Readiness    healthhandler.ReadinessChecker
	Metrics      Instrumenter
	Limiter      *middleware.RateLimiter
	MaxBodyBytes int64
	API          []Routes
}

// NewRouter builds the HTTP handler: probes and /metrics at the root, API routes behind
// auth, rate limiting and the body cap. Every route gets request ids, logging, metrics and spans.
func NewRouter(deps HTTPDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.ClientIP, middleware.Logging(deps.Log))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}

	r.Get("/healthz", healthhandler.Liveness)
	r.Get("/readyz", healthhandler.Readiness(deps.Readiness))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(api chi.Router) {
		if deps.Limiter != nil {
			api.Use(deps.Limiter.Middleware)
		}
		if deps.MaxBodyBytes > 0 {
			api.Use(middleware.MaxBodyBytes(deps.MaxBodyBytes))
		}
		api.Use(middleware.Authenticate(deps.Tokens, deps.Log))
		for _, routes := range deps.API {
			routes.Routes(api)
		}
	})

	return otelhttp.NewHandler(r, "centora.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
