package spatial

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
)

// ErrInvalidBoundary indicates a boundary ring with fewer than three distinct vertices.
var ErrInvalidBoundary = errors.New("boundary must contain at least three distinct points")

// RouteProximity answers repeated "within radius of the route" queries for a
// single geometry without rebuilding the S2 polyline each time.
type RouteProximity struct {
	line   *s2.Polyline
	single *Coordinate
}

// NewRouteProximity prepares proximity queries against g.
func NewRouteProximity(g Geometry) *RouteProximity {
	if len(g) == 1 {
		c := g[0]
		return &RouteProximity{single: &c}
	}
	return &RouteProximity{line: g.Polyline()}
}

// Distance returns the shortest geodesic distance in meters from c to any
// point on the route. An empty route is infinitely far away.
func (r *RouteProximity) Distance(c Coordinate) float64 {
	if r.single != nil {
		return Distance(c, *r.single)
	}
	if r.line == nil || len(*r.line) == 0 {
		return math.Inf(1)
	}
	pt := c.Point()
	projected, _ := r.line.Project(pt)
	return pt.Distance(projected).Radians() * EarthRadiusMeters
}

// Within reports whether c lies within radius meters of the route.
func (r *RouteProximity) Within(c Coordinate, radius float64) bool {
	return r.Distance(c) <= radius
}

// Boundary is a closed polygon on the sphere, such as a campus perimeter.
type Boundary struct {
	loop *s2.Loop
}

// NewBoundary builds a boundary from a ring of coordinates. A repeated closing
// vertex is accepted and dropped.
func NewBoundary(ring []Coordinate) (*Boundary, error) {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, ErrInvalidBoundary
	}
	points := make([]s2.Point, len(ring))
	for i, c := range ring {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		points[i] = c.Point()
	}
	loop := s2.LoopFromPoints(points)
	// Winding order in source data is not guaranteed.
	loop.Normalize()
	return &Boundary{loop: loop}, nil
}

// Contains reports whether c lies inside the boundary.
func (b *Boundary) Contains(c Coordinate) bool {
	if b == nil || b.loop == nil {
		return false
	}
	return b.loop.ContainsPoint(c.Point())
}
