package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saferoute/saferoute/internal/routing"
)

// CandidateSourceName identifies routes produced from the prebuilt graph.
const CandidateSourceName = "safety-graph"

// DefaultWalkingSpeed is the pace used to estimate graph route durations,
// in meters per second.
const DefaultWalkingSpeed = 1.4

// CandidateSource exposes a Router as a routing.Provider. It returns the
// shortest path and, when it differs, the safest path.
type CandidateSource struct {
	router       *Router
	walkingSpeed float64
}

// NewCandidateSource wraps r. A non-positive speed uses DefaultWalkingSpeed.
func NewCandidateSource(r *Router, walkingSpeed float64) *CandidateSource {
	if walkingSpeed <= 0 {
		walkingSpeed = DefaultWalkingSpeed
	}
	return &CandidateSource{router: r, walkingSpeed: walkingSpeed}
}

// Name returns the provider name.
func (s *CandidateSource) Name() string {
	return CandidateSourceName
}

// GetDirections searches the graph under both cost functions. No-path is
// reported as routing.ErrNoRouteFound and still matches ErrNoPath.
func (s *CandidateSource) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := routing.ValidateEndpoints(CandidateSourceName, req); err != nil {
		return nil, err
	}
	if s.router == nil {
		return nil, routing.Unavailable(CandidateSourceName, "GRAPH_NOT_LOADED", "safety graph is not loaded", nil)
	}

	var routes []routing.Route
	var seen []Path
	for _, cost := range []CostFunction{CostDistance, CostSafety} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, coords, err := s.router.Route(req.Origin, req.Destination, cost)
		switch {
		case errors.Is(err, ErrNoPath):
			return nil, &routing.Error{
				Provider: CandidateSourceName,
				Code:     routing.CodeNoRoute,
				Message:  "no path between the given points",
				Err:      fmt.Errorf("%w: %w", routing.ErrNoRouteFound, err),
			}
		case errors.Is(err, ErrEmptyGraph):
			return nil, routing.Unavailable(CandidateSourceName, "GRAPH_EMPTY", "safety graph has no nodes", err)
		case err != nil:
			return nil, fmt.Errorf("graph search (%s): %w", cost, err)
		}

		if len(coords) < 2 || containsPath(seen, path) {
			continue
		}
		seen = append(seen, path)

		routes = append(routes, routing.Route{
			ID:              fmt.Sprintf("graph_%s", cost),
			Geometry:        coords,
			DistanceMeters:  path.DistanceCost,
			DurationSeconds: path.DistanceCost / s.walkingSpeed,
			Waypoints:       routing.EndpointWaypoints(coords),
			Summary:         fmt.Sprintf("%s path over the campus walk network", cost),
			Source:          CandidateSourceName,
		})
	}

	if len(routes) == 0 {
		// Both endpoints snapped to the same node.
		return nil, routing.NoRoute(CandidateSourceName, "origin and destination snap to the same junction")
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  CandidateSourceName,
		FetchedAt: time.Now(),
	}, nil
}

func containsPath(paths []Path, p Path) bool {
	for _, q := range paths {
		if len(q.Nodes) != len(p.Nodes) {
			continue
		}
		same := true
		for i := range q.Nodes {
			if q.Nodes[i] != p.Nodes[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}
