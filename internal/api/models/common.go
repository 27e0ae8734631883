// Package models provides request and response models for the SafeRoute API.
package models

import (
	"encoding/json"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Point represents a geographic coordinate. Pointers distinguish a missing
// field from a zero coordinate.
type Point struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// Coordinate converts a validated point.
func (p Point) Coordinate() spatial.Coordinate {
	var c spatial.Coordinate
	if p.Lat != nil {
		c.Lat = *p.Lat
	}
	if p.Lon != nil {
		c.Lon = *p.Lon
	}
	return c
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp renders as RFC 3339 in UTC with second precision.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339))
}

// UnmarshalJSON accepts an RFC 3339 string or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil || s == nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Stamp converts an optional time. Nil and zero times yield nil.
func Stamp(at *time.Time) *Timestamp {
	if at == nil || at.IsZero() {
		return nil
	}
	ts := Timestamp(*at)
	return &ts
}
