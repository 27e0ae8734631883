package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests no route matched, so scanners probing
// random paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records the HTTP server instruments.
type Metrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	size     metric.Int64Histogram
	problems metric.Int64Counter
}

// NewMetrics creates the HTTP server instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	// Route computation fans out to the provider and the fact store, so the
	// upper buckets reach well past a typical API call.
	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15),
	); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.size, err = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.problems, err = meter.Int64Counter("saferoute.http.problems",
		metric.WithDescription("Responses answered with a problem status (4xx or 5xx)"),
		metric.WithUnit("{response}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records one observation per request, labelled by chi route
// pattern. Coordinates never appear in paths, but flag names and extents do.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			method := attribute.String("http.request.method", r.Method)

			m.active.Add(ctx, 1, metric.WithAttributes(method))
			defer m.active.Add(ctx, -1, metric.WithAttributes(method))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				method,
				attribute.String("http.route", metricRoute(r)),
				attribute.Int("http.response.status_code", rec.status),
			)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.size.Record(ctx, rec.written, attrs)
			if rec.status >= http.StatusBadRequest {
				m.problems.Add(ctx, 1, attrs)
			}
		})
	}
}

func metricRoute(r *http.Request) string {
	if pattern, ok := matchedRoute(r); ok {
		return pattern
	}
	return unmatchedRoute
}
