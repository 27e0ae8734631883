package spatial

import (
	"math"

	"github.com/golang/geo/r2"
)

// Projection maps WGS84 coordinates onto a local planar frame in meters.
// It is an equirectangular projection centred on the extent being modelled,
// accurate to well under a meter across a campus-sized area.
type Projection struct {
	origin Coordinate
	cosLat float64
}

// NewProjection creates a projection centred on origin.
func NewProjection(origin Coordinate) Projection {
	return Projection{
		origin: origin,
		cosLat: math.Cos(origin.Lat * math.Pi / 180),
	}
}

// ProjectionForExtent creates a projection centred on the bounding box of coords.
func ProjectionForExtent(coords []Coordinate) Projection {
	if len(coords) == 0 {
		return NewProjection(Coordinate{})
	}
	minLat, maxLat := coords[0].Lat, coords[0].Lat
	minLon, maxLon := coords[0].Lon, coords[0].Lon
	for _, c := range coords[1:] {
		minLat = math.Min(minLat, c.Lat)
		maxLat = math.Max(maxLat, c.Lat)
		minLon = math.Min(minLon, c.Lon)
		maxLon = math.Max(maxLon, c.Lon)
	}
	return NewProjection(Coordinate{Lat: (minLat + maxLat) / 2, Lon: (minLon + maxLon) / 2})
}

// Origin returns the projection centre.
func (p Projection) Origin() Coordinate {
	return p.origin
}

// Project converts a coordinate to planar meters relative to the origin.
func (p Projection) Project(c Coordinate) r2.Point {
	const rad = math.Pi / 180
	return r2.Point{
		X: (c.Lon - p.origin.Lon) * rad * EarthRadiusMeters * p.cosLat,
		Y: (c.Lat - p.origin.Lat) * rad * EarthRadiusMeters,
	}
}

// Unproject converts planar meters back to a coordinate.
func (p Projection) Unproject(pt r2.Point) Coordinate {
	const deg = 180 / math.Pi
	lon := p.origin.Lon
	if p.cosLat != 0 {
		lon += pt.X / (EarthRadiusMeters * p.cosLat) * deg
	}
	return Coordinate{
		Lat: p.origin.Lat + pt.Y/EarthRadiusMeters*deg,
		Lon: lon,
	}
}

// Midpoint returns the planar midpoint of two projected points.
func Midpoint(a, b r2.Point) r2.Point {
	return a.Add(b).Mul(0.5)
}
