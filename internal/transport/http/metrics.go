package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqcli_http_requests_total",
		Help: "HTTP requests served, by method and status code.",
	}, []string{"method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aqcli_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqcli_operations_total",
		Help: "Pipeline operations started, by final status.",
	}, []string{"status"})

	cellsFilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqcli_cells_filled_total",
		Help: "Dataset cells imputed across all pipeline runs.",
	})
)

// MetricsHandler exposes the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method))
		next.ServeHTTP(ww, r)
		timer.ObserveDuration()

		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}
