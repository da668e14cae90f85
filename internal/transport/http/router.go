package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"windrisk/internal/config"
	"windrisk/internal/cube"
	apierrors "windrisk/internal/errors"
	custommw "windrisk/internal/middleware"
	"windrisk/internal/services"
	"windrisk/internal/websocket"
)

// RouterDeps carries everything the router needs.
type RouterDeps struct {
	Config     *config.Config
	Service    *services.RiskService
	Hub        *websocket.Hub
	Logger     *slog.Logger
	Version    string
	Prometheus http.Handler
	Tracer     trace.Tracer
}

// NewRouter assembles the middleware chain and mounts all API routes.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	errorHandler := apierrors.NewErrorHandler(logger)

	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	if deps.Tracer != nil {
		r.Use(custommw.Tracing(deps.Tracer))
	}
	r.Use(custommw.StructuredLogger(logger))
	r.Use(custommw.Recoverer(logger))
	r.Use(custommw.SecurityHeaders)
	if deps.Config.Security.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(
			deps.Config.Security.RateLimit.RPS,
			deps.Config.Security.RateLimit.Burst,
			logger,
		)
		r.Use(limiter.Handler)
	}

	defaults := deps.Config.Engine.BuildParams()

	cubeHandler := NewCubeHandler(deps.Service, deps.Config.Paths.ScenarioFile, defaults, logger, errorHandler)
	metricsHandler := NewMetricsHandler(deps.Service, cube.Percentile(deps.Config.Engine.Primary), logger, errorHandler)
	sensitivityHandler := NewSensitivityHandler(deps.Service, logger, errorHandler)
	healthHandler := NewHealthHandler(deps.Service, deps.Version, logger)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/cube", cubeHandler.Routes())
		r.Mount("/metrics", metricsHandler.Routes())
		r.Mount("/sensitivity", sensitivityHandler.Routes())

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
	})

	if deps.Hub != nil {
		r.Get("/ws", websocket.ServeWS(deps.Hub, logger))
	}
	if deps.Prometheus != nil {
		r.Handle("/metrics", deps.Prometheus)
	}

	return r
}
