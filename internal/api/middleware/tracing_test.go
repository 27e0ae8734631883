package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/saferoute/saferoute/internal/api/middleware"
)

// installTracer swaps in a recording provider for one test.
func installTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func tracedRouter(status int, inHandler func(*http.Request)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing("saferoute-api"))
	r.Post("/v1/admin/feature-flags/{name}", func(w http.ResponseWriter, req *http.Request) {
		if inHandler != nil {
			inHandler(req)
		}
		w.WriteHeader(status)
	})
	return r
}

func TestTracing_ServerSpan(t *testing.T) {
	sr := installTracer(t)

	var handlerSpan trace.SpanContext
	h := tracedRouter(http.StatusAccepted, func(r *http.Request) {
		handlerSpan = trace.SpanFromContext(r.Context()).SpanContext()
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/feature-flags/graph_routing", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "req_trace1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "POST /v1/admin/feature-flags/{name}", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, span.SpanContext().SpanID(), handlerSpan.SpanID())

	route, _ := spanAttr(span, "http.route")
	assert.Equal(t, "/v1/admin/feature-flags/{name}", route.AsString())
	status, _ := spanAttr(span, "http.response.status_code")
	assert.Equal(t, int64(http.StatusAccepted), status.AsInt64())
	id, _ := spanAttr(span, "request.id")
	assert.Equal(t, "req_trace1", id.AsString())
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	sr := installTracer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/feature-flags/x", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	tracedRouter(http.StatusOK, nil).ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", spans[0].Parent().SpanID().String())
}

func TestTracing_ErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		want   codes.Code
	}{
		{http.StatusBadRequest, codes.Unset},
		{http.StatusNotFound, codes.Unset},
		{http.StatusBadGateway, codes.Error},
		{http.StatusServiceUnavailable, codes.Error},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := installTracer(t)
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/feature-flags/x", http.NoBody)
			tracedRouter(tt.status, nil).ServeHTTP(httptest.NewRecorder(), req)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.want, spans[0].Status().Code)
		})
	}
}

func TestTracing_UnroutedRequestKeepsPath(t *testing.T) {
	sr := installTracer(t)

	h := middleware.Tracing("saferoute-api")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/ops/ready", spans[0].Name())
}
