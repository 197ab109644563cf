package observability

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware opens a server span per request, continuing any trace
// carried in the request headers, records request duration, and logs
// server errors. route names the span; the method is prefixed.
func HTTPMiddleware(route string, logger *slog.Logger, next http.Handler) http.Handler {
	tracer := Tracer("http")
	duration, _ := Meter("http").Float64Histogram(
		"time_engine_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		attrs := []attribute.KeyValue{
			attribute.String("http.route", route),
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_code", rec.status),
		}
		span.SetAttributes(attrs...)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
			WithTraceID(ctx, logger).ErrorContext(ctx, "request failed",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", rec.status),
			)
		}
		if duration != nil {
			duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
	})
}
