package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/featureflags"
	"github.com/saferoute/saferoute/internal/graph"
)

func ptr(f float64) *float64 { return &f }

func TestValidate_RecommendRequest(t *testing.T) {
	valid := models.RecommendRequest{
		Origin:      &models.Point{Lat: ptr(38.9424), Lon: ptr(-92.3271)},
		Destination: &models.Point{Lat: ptr(38.9447), Lon: ptr(-92.3268)},
	}

	tests := []struct {
		name      string
		mutate    func(*models.RecommendRequest)
		wantField string
		wantCode  string
	}{
		{"valid", func(*models.RecommendRequest) {}, "", ""},
		{"missing origin", func(r *models.RecommendRequest) { r.Origin = nil }, "origin", "REQUIRED"},
		{"missing lat", func(r *models.RecommendRequest) { r.Destination = &models.Point{Lon: ptr(0)} }, "destination.lat", "REQUIRED"},
		{"zero lat is allowed", func(r *models.RecommendRequest) { r.Origin.Lat = ptr(0) }, "", ""},
		{"lat out of range", func(r *models.RecommendRequest) { r.Origin.Lat = ptr(91) }, "origin.lat", "LTE"},
		{"lon out of range", func(r *models.RecommendRequest) { r.Origin.Lon = ptr(-181) }, "origin.lon", "GTE"},
		{"unknown user mode", func(r *models.RecommendRequest) { r.UserMode = "visitor" }, "userMode", "ONEOF"},
		{"unknown priority", func(r *models.RecommendRequest) { r.Priority = "scenic" }, "priority", "ONEOF"},
		{"unknown source", func(r *models.RecommendRequest) { r.Source = "cache" }, "source", "ONEOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			o, d := *valid.Origin, *valid.Destination
			req.Origin, req.Destination = &o, &d
			tt.mutate(&req)

			errs := models.Validate(req)
			if tt.wantField == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantField, errs[0].Field)
			assert.Equal(t, tt.wantCode, errs[0].Code)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}

func TestGraphRouteRequest_CostFunction(t *testing.T) {
	assert.Equal(t, graph.CostSafety, models.GraphRouteRequest{}.CostFunction())
	assert.Equal(t, graph.CostDistance, models.GraphRouteRequest{Cost: "distance"}.CostFunction())

	errs := models.Validate(models.GraphRouteRequest{
		Origin:      &models.Point{Lat: ptr(1), Lon: ptr(1)},
		Destination: &models.Point{Lat: ptr(1), Lon: ptr(1)},
		Cost:        "scenic",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "cost", errs[0].Field)
}

func TestValidate_FlagUpdateRequest(t *testing.T) {
	errs := models.Validate(featureflags.FlagUpdateRequest{})
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"updates", "reason"}, fields)

	errs = models.Validate(featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: ""}},
		Reason:  "rollout",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "updates[0].key", errs[0].Field)
}
