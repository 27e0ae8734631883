package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
)

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	return lines
}

func loggedRouter(log zerolog.Logger, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing("saferoute-api"))
	r.Use(middleware.Logger(log))
	write := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"routes":[]}`))
	}
	r.Post("/v1/routes:recommend", write)
	r.Get("/v1/ops/health", write)
	return r
}

func TestLogger_RequestLine(t *testing.T) {
	installTracer(t)
	var buf bytes.Buffer

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:recommend", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "req_log1")
	req.Header.Set("User-Agent", "campus-app/2.1")
	loggedRouter(zerolog.New(&buf), http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "request completed", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "req_log1", line["request_id"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/v1/routes:recommend", line["route"])
	assert.Equal(t, float64(200), line["status"])
	assert.Equal(t, float64(len(`{"routes":[]}`)), line["bytes"])
	assert.Equal(t, "campus-app/2.1", line["user_agent"])
	assert.Len(t, line["trace_id"], 32)
	assert.Len(t, line["span_id"], 16)
}

func TestLogger_NoSpanNoTraceFields(t *testing.T) {
	var buf bytes.Buffer
	h := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "trace_id")
	assert.Equal(t, "/metrics", lines[0]["route"])
	assert.Equal(t, float64(200), lines[0]["status"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
		level  string
	}{
		{"route ok", http.MethodPost, "/v1/routes:recommend", http.StatusOK, "info"},
		{"out of bounds", http.MethodPost, "/v1/routes:recommend", http.StatusBadRequest, "warn"},
		{"provider down", http.MethodPost, "/v1/routes:recommend", http.StatusBadGateway, "error"},
		{"health probe", http.MethodGet, "/v1/ops/health", http.StatusOK, "debug"},
		{"failing probe", http.MethodGet, "/v1/ops/health", http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := loggedRouter(zerolog.New(&buf), tt.status)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, http.NoBody))

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
		})
	}
}

func TestLogger_ProbesSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	loggedRouter(log, http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Zero(t, buf.Len())
}
