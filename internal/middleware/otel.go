package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aqcli/internal/infrastructure"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelMiddleware opens a server span per request and makes its trace ID
// the log correlation ID for everything downstream.
type OTelMiddleware struct {
	tracer trace.Tracer
	logger *slog.Logger
}

// NewOTelMiddleware builds the middleware from initialized providers.
func NewOTelMiddleware(providers *infrastructure.OTelProviders) *OTelMiddleware {
	return &OTelMiddleware{
		tracer: providers.Tracer,
		logger: providers.Logger,
	}
}

// Handler is the chi middleware. Incoming W3C trace context is honored so
// spans join a caller's trace when one is propagated.
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		r = r.WithContext(infrastructure.WithTraceID(ctx, traceID))

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		span.SetAttributes(
			semconv.HTTPResponseStatusCodeKey.Int(ww.Status()),
			semconv.HTTPResponseBodySizeKey.Int64(int64(ww.BytesWritten())),
			attribute.Float64("http.request.duration", elapsed.Seconds()),
		)
		if ww.Status() >= 400 {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}

		m.logger.DebugContext(r.Context(), "request traced",
			slog.String("route", routePattern(r)),
			slog.Int("status_code", ww.Status()),
			slog.Duration("duration", elapsed),
			slog.String("trace_id", traceID),
		)
	})
}

// routePattern prefers the resolved chi pattern over the raw path, so
// /api/operations/{id} aggregates as one route.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
