package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/models"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		kind   models.Kind
		status int
		code   string
	}{
		{models.KindValidation, http.StatusBadRequest, models.CodeValidation},
		{models.KindInvalidTime, http.StatusBadRequest, models.CodeInvalidTime},
		{models.KindOutOfBounds, http.StatusBadRequest, models.CodeOutOfBounds},
		{models.KindUnauthorized, http.StatusUnauthorized, ""},
		{models.KindForbidden, http.StatusForbidden, ""},
		{models.KindNotFound, http.StatusNotFound, ""},
		{models.KindNoPath, http.StatusNotFound, models.CodeNoPath},
		{models.KindUnsupportedMedia, http.StatusUnsupportedMediaType, models.CodeValidation},
		{models.KindTooManyRequests, http.StatusTooManyRequests, ""},
		{models.KindInternal, http.StatusInternalServerError, ""},
		{models.KindRoutingUnavailable, http.StatusBadGateway, models.CodeRoutingUnavailable},
		{models.KindGraphUnavailable, http.StatusServiceUnavailable, models.CodeGraphUnavailable},
		{models.KindUnavailable, http.StatusServiceUnavailable, ""},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.kind.Title, func(t *testing.T) {
			p := tt.kind.New("req_1", "detail")

			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.code, p.Code)
			assert.Equal(t, tt.kind.Type, p.Type)
			assert.Equal(t, "detail", p.Detail)
			assert.Equal(t, "req_1", p.TraceID)
			assert.NotEmpty(t, p.Title)
			assert.False(t, seen[p.Type], "duplicate problem type %s", p.Type)
			seen[p.Type] = true
		})
	}
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "request validation failed", []models.FieldError{
		{Field: "destination.lon", Message: "is required", Code: "REQUIRED"},
	})
	p.Instance = "/v1/routes:recommend"

	rec := httptest.NewRecorder()
	p.Write(rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", rec.Header().Get("X-Request-Id"))

	var got models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, *p, got)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	rec := httptest.NewRecorder()
	models.KindNoPath.New("", "").Write(rec)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, set := rec.Header()["X-Request-Id"]
	assert.False(t, set)
	assert.NotContains(t, rec.Body.String(), `"detail"`)
	assert.Contains(t, rec.Body.String(), `"traceId":""`)
}

func TestProblem_Error(t *testing.T) {
	assert.Equal(t, "No path", models.KindNoPath.New("req_1", "").Error())
	assert.Equal(t, "Location out of bounds: origin is in Jefferson City",
		models.KindOutOfBounds.New("req_1", "origin is in Jefferson City").Error())
}
