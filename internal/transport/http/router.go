package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aqcli/internal/config"
	apierrors "aqcli/internal/errors"
	"aqcli/internal/middleware"
)

// RouterOptions carries the dependencies the router needs.
type RouterOptions struct {
	Config     *config.Config
	Paths      *config.Paths
	Operations OperationService
	Data       DataService
	Logger     *slog.Logger
	OTel       *middleware.OTelMiddleware
}

// NewRouter assembles the API router with the full middleware chain.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.OTel != nil {
		r.Use(opts.OTel.Handler)
	}
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.StripSlashes)
	r.Use(MetricsMiddleware)

	if opts.Config.Security.EnableCORS {
		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: opts.Config.Security.AllowedOrigins,
			Logger:         logger,
		}))
	}
	if opts.Config.Security.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			opts.Config.Security.RateLimit.RPS,
			opts.Config.Security.RateLimit.Burst,
			logger,
		)
		r.Use(limiter.Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	dataHandler := NewDataHandler(opts.Data, logger, errorHandler)
	operationsHandler := NewOperationsHandler(opts.Operations, opts.Data, logger, errorHandler)
	healthHandler := NewHealthHandler(opts.Paths, logger)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/data", dataHandler.Routes())
		r.Mount("/operations", operationsHandler.Routes())
	})
	r.Get("/healthz", healthHandler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())

	return r
}
