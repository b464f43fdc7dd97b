package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"aqcli/internal/analytics"
	apierrors "aqcli/internal/errors"
	"aqcli/internal/middleware"
)

// DataHandler serves KPI queries and artifact downloads with RFC 7807
// error responses.
type DataHandler struct {
	service      DataService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a new data handler
func NewDataHandler(service DataService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the data routes
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/summary", h.GetSummary)
	r.Get("/kpi", h.GetKPI)
	r.Get("/download/{filename}", h.DownloadArtifact)

	return r
}

// GetSummary handles GET /api/data/summary
func (h *DataHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build summary",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, summary)
}

// GetKPI handles GET /api/data/kpi. Query parameters: pollutant
// (required; pm25, pm10 or no2), region (WHO region code or Global),
// years (comma-separated).
func (h *DataHandler) GetKPI(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	query, err := parseKPIQuery(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	kpi, err := h.service.KPI(r.Context(), query)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "kpi computation failed",
			slog.String("error", err.Error()),
			slog.String("pollutant", query.Pollutant),
			slog.String("request_id", reqID),
		)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, kpi)
}

// DownloadArtifact handles GET /api/data/download/{filename}
func (h *DataHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.service.ArtifactPath(filename)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "serving artifact",
		slog.String("filename", filename),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	ServeArtifact(w, r, path)
}

// parseKPIQuery builds the analytics query from URL parameters.
func parseKPIQuery(r *http.Request) (analytics.Query, error) {
	q := analytics.Query{
		Pollutant: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("pollutant"))),
		Region:    strings.TrimSpace(r.URL.Query().Get("region")),
	}
	if q.Pollutant == "" {
		return q, apierrors.ErrValidation("pollutant", "pollutant query parameter is required")
	}

	if years := r.URL.Query().Get("years"); years != "" {
		for _, part := range strings.Split(years, ",") {
			year, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return q, apierrors.ErrValidation("years", "invalid year: "+part)
			}
			q.Years = append(q.Years, year)
		}
	}
	return q, nil
}
