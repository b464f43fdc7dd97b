package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"aqcli/internal/config"
)

// Version is the build version, overridable at link time.
var Version = "dev"

// HealthHandler answers liveness probes with basic process information.
type HealthHandler struct {
	paths   *config.Paths
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(paths *config.Paths, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		paths:   paths,
		logger:  logger.With(slog.String("component", "health_handler")),
		started: time.Now(),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":         "ok",
		"version":        Version,
		"uptime":         time.Since(h.started).String(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"processed_data": config.FileExists(h.paths.ProcessedCSV),
	})
}
