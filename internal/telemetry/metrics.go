package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProviderMetrics records directions-provider calls and route cache outcomes.
// It satisfies routing.Metrics.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewProviderMetrics creates provider instruments on meter.
func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"saferoute.provider.request.duration",
		metric.WithDescription("Duration of directions provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"saferoute.provider.request.total",
		metric.WithDescription("Total number of directions provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"saferoute.route_cache.hit",
		metric.WithDescription("Candidate route cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"saferoute.route_cache.miss",
		metric.WithDescription("Candidate route cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

func providerAttrs(provider, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
}

// RecordRequest records one provider call.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := append(providerAttrs(provider, operation), attribute.Bool("error", err != nil))
	// Recorded after the request context may already be cancelled.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a route cache hit.
func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.cacheHits.Add(context.Background(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// RecordCacheMiss records a route cache miss.
func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.cacheMisses.Add(context.Background(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// GraphMetrics records walking-graph rebuilds.
type GraphMetrics struct {
	buildDuration metric.Float64Histogram
	buildTotal    metric.Int64Counter
	edges         metric.Int64Gauge
}

// NewGraphMetrics creates graph rebuild instruments on meter.
func NewGraphMetrics(meter metric.Meter) (*GraphMetrics, error) {
	buildDuration, err := meter.Float64Histogram(
		"saferoute.graph.build.duration",
		metric.WithDescription("Duration of walking graph builds in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	buildTotal, err := meter.Int64Counter(
		"saferoute.graph.build.total",
		metric.WithDescription("Walking graph build attempts"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, err
	}

	edges, err := meter.Int64Gauge(
		"saferoute.graph.edges",
		metric.WithDescription("Edge count of the last built walking graph"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		return nil, err
	}

	return &GraphMetrics{buildDuration: buildDuration, buildTotal: buildTotal, edges: edges}, nil
}

// RecordBuild records one graph build for extent.
func (m *GraphMetrics) RecordBuild(ctx context.Context, extent string, duration time.Duration, edgeCount int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("graph.extent", extent),
		attribute.Bool("error", err != nil),
	)
	m.buildDuration.Record(ctx, duration.Seconds(), attrs)
	m.buildTotal.Add(ctx, 1, attrs)
	if err == nil {
		m.edges.Record(ctx, int64(edgeCount), metric.WithAttributes(attribute.String("graph.extent", extent)))
	}
}
