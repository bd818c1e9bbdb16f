package observability

import (
	"net/http"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meterOnce       sync.Once
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
)

func httpInstruments() (metric.Int64Counter, metric.Float64Histogram) {
	meterOnce.Do(func() {
		meter := otel.Meter("github.com/shopward/api/internal/platform/observability")
		requestCounter, _ = meter.Int64Counter("http.server.request.count",
			metric.WithDescription("Completed HTTP requests"))
		requestDuration, _ = meter.Float64Histogram("http.server.request.duration",
			metric.WithDescription("HTTP request latency"),
			metric.WithUnit("ms"))
	})
	return requestCounter, requestDuration
}

// MetricsMiddleware records a counter and latency histogram per request,
// labelled by method and response status class.
func MetricsMiddleware() func(http.Handler) http.Handler {
	counter, duration := httpInstruments()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.Int("http.response.status_code", ww.Status()),
			)
			ctx := r.Context()
			if counter != nil {
				counter.Add(ctx, 1, attrs)
			}
			if duration != nil {
				duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)
			}
		})
	}
}
