// Package spatial provides geographic primitives for route safety scoring:
// WGS84 coordinates, a local planar projection, a uniform grid index and
// route proximity queries backed by S2 geometry.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all geodesic conversions.
const EarthRadiusMeters = 6371000.0

// Sentinel errors for spatial input validation.
var (
	// ErrInvalidCoordinate indicates a latitude or longitude outside WGS84 range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidGeometry indicates a route geometry with fewer than two points.
	ErrInvalidGeometry = errors.New("geometry must contain at least two points")
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate lies within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// LatLng converts the coordinate to an S2 LatLng.
func (c Coordinate) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// Point converts the coordinate to a point on the S2 unit sphere.
func (c Coordinate) Point() s2.Point {
	return s2.PointFromLatLng(c.LatLng())
}

// Rounded returns the coordinate rounded to the given number of decimal places.
func (c Coordinate) Rounded(places int) Coordinate {
	scale := math.Pow(10, float64(places))
	return Coordinate{
		Lat: math.Round(c.Lat*scale) / scale,
		Lon: math.Round(c.Lon*scale) / scale,
	}
}

// Distance returns the great-circle distance between two coordinates in meters.
func Distance(a, b Coordinate) float64 {
	return a.LatLng().Distance(b.LatLng()).Radians() * EarthRadiusMeters
}

// Geometry is an ordered list of coordinates describing a walkable line.
type Geometry []Coordinate

// Validate checks that the geometry has at least two valid points.
func (g Geometry) Validate() error {
	if len(g) < 2 {
		return ErrInvalidGeometry
	}
	for i, c := range g {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// Length returns the geodesic length of the geometry in meters.
func (g Geometry) Length() float64 {
	var total float64
	for i := 1; i < len(g); i++ {
		total += Distance(g[i-1], g[i])
	}
	return total
}

// Polyline converts the geometry to an S2 polyline.
func (g Geometry) Polyline() *s2.Polyline {
	latLngs := make([]s2.LatLng, len(g))
	for i, c := range g {
		latLngs[i] = c.LatLng()
	}
	return s2.PolylineFromLatLngs(latLngs)
}
