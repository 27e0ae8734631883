package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/models"
)

func TestTimestamp_JSON(t *testing.T) {
	central := time.FixedZone("CDT", -5*3600)
	at := time.Date(2026, 10, 19, 21, 30, 15, 500, central)

	raw, err := json.Marshal(models.Timestamp(at))
	require.NoError(t, err)
	assert.Equal(t, `"2026-10-20T02:30:15Z"`, string(raw))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Time().Equal(at.Truncate(time.Second)))

	var untouched models.Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &untouched))
	assert.True(t, untouched.Time().IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &back))
	assert.Error(t, json.Unmarshal([]byte(`42`), &back))
}

func TestStamp(t *testing.T) {
	assert.Nil(t, models.Stamp(nil))
	assert.Nil(t, models.Stamp(&time.Time{}))

	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	got := models.Stamp(&at)
	require.NotNil(t, got)
	assert.Equal(t, at, got.Time())
}

func TestPoint_Coordinate(t *testing.T) {
	lat, lon := 38.9404, -92.3277
	c := models.Point{Lat: &lat, Lon: &lon}.Coordinate()
	assert.Equal(t, lat, c.Lat)
	assert.Equal(t, lon, c.Lon)

	zero := models.Point{}.Coordinate()
	assert.Zero(t, zero.Lat)
}
