package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/saferoute/saferoute/internal/api/middleware"
)

func newTestMetrics(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := middleware.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}

func attr(t *testing.T, set attribute.Set, key string) attribute.Value {
	t.Helper()
	v, ok := set.Value(attribute.Key(key))
	require.True(t, ok, "missing attribute %s", key)
	return v
}

func metricsRouter(m *middleware.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Put("/v1/admin/feature-flags/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/v1/routes:recommend", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"ROUTING_UNAVAILABLE"}`))
	})
	return r
}

func TestMetrics_DurationByRoutePattern(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := metricsRouter(m)

	for _, flag := range []string{"graph_routing", "lighting_model"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/v1/admin/feature-flags/"+flag, http.NoBody))
	}

	hist, ok := collect(t, reader, "http.server.request.duration").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(2), dp.Count)
	assert.Equal(t, "/v1/admin/feature-flags/{name}", attr(t, dp.Attributes, "http.route").AsString())
	assert.Equal(t, int64(http.StatusNoContent), attr(t, dp.Attributes, "http.response.status_code").AsInt64())
	assert.Equal(t, "PUT", attr(t, dp.Attributes, "http.request.method").AsString())

	assert.Nil(t, collect(t, reader, "saferoute.http.problems"), "2xx responses are not problems")
}

func TestMetrics_ProblemsAndBodySize(t *testing.T) {
	m, reader := newTestMetrics(t)
	metricsRouter(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/routes:recommend", http.NoBody))

	problems, ok := collect(t, reader, "saferoute.http.problems").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, problems.DataPoints, 1)
	assert.Equal(t, int64(1), problems.DataPoints[0].Value)
	assert.Equal(t, int64(http.StatusBadGateway), attr(t, problems.DataPoints[0].Attributes, "http.response.status_code").AsInt64())

	size, ok := collect(t, reader, "http.server.response.body.size").(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, size.DataPoints, 1)
	assert.Equal(t, int64(len(`{"code":"ROUTING_UNAVAILABLE"}`)), size.DataPoints[0].Sum)
}

func TestMetrics_UnmatchedPathsShareOneLabel(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := metricsRouter(m)

	for _, path := range []string{"/wp-login.php", "/.env", "/admin/config.php"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	hist, ok := collect(t, reader, "http.server.request.duration").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, "unmatched", attr(t, hist.DataPoints[0].Attributes, "http.route").AsString())
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
}

func TestMetrics_ActiveRequestsSettle(t *testing.T) {
	m, reader := newTestMetrics(t)
	var during bool
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		active, ok := collect(t, reader, "http.server.active_requests").(metricdata.Sum[int64])
		during = ok && len(active.DataPoints) == 1 && active.DataPoints[0].Value == 1
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.True(t, during)
	active, ok := collect(t, reader, "http.server.active_requests").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Zero(t, active.DataPoints[0].Value)
}
