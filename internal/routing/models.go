// Package routing provides walking route candidates from external routing
// engines and caches them per origin/destination pair.
package routing

import (
	"context"
	"strconv"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Provider produces candidate walking routes between two points.
type Provider interface {
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name labels the provider in logs, metrics and Route.Source.
	Name() string
}

// RouteProfile names a travel mode. Providers translate it into their own
// profile identifiers.
type RouteProfile string

const ProfileWalk RouteProfile = "walking"

// DefaultMaxAlternatives applies when a request leaves MaxAlternatives unset.
const DefaultMaxAlternatives = 2

// DirectionsRequest asks for candidate routes between two points.
type DirectionsRequest struct {
	Origin          spatial.Coordinate
	Destination     spatial.Coordinate
	Profile         RouteProfile
	MaxAlternatives int

	// ForceRefresh bypasses the cache read; the answer is still cached.
	ForceRefresh bool
}

// Alternatives returns MaxAlternatives or the default when unset.
func (r DirectionsRequest) Alternatives() int {
	if r.MaxAlternatives > 0 {
		return r.MaxAlternatives
	}
	return DefaultMaxAlternatives
}

// DirectionsResponse carries the candidates one provider returned.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is one candidate walking route.
type Route struct {
	ID              string               `json:"id"`
	Geometry        spatial.Geometry     `json:"geometry"`
	DistanceMeters  float64              `json:"distanceMeters"`
	DurationSeconds float64              `json:"durationSeconds"`
	Waypoints       []spatial.Coordinate `json:"waypoints"`
	Summary         string               `json:"summary,omitempty"`
	Source          string               `json:"source"`
}

// EndpointWaypoints returns the first and last coordinates of g.
func EndpointWaypoints(g spatial.Geometry) []spatial.Coordinate {
	if len(g) == 0 {
		return nil
	}
	return []spatial.Coordinate{g[0], g[len(g)-1]}
}

// NewResponse numbers routes route_1..route_n, stamps their source and
// wraps them in a response fetched now.
func NewResponse(provider string, routes []Route) *DirectionsResponse {
	for i := range routes {
		routes[i].ID = "route_" + strconv.Itoa(i+1)
		routes[i].Source = provider
		if routes[i].Waypoints == nil {
			routes[i].Waypoints = EndpointWaypoints(routes[i].Geometry)
		}
	}
	return &DirectionsResponse{Routes: routes, Provider: provider, FetchedAt: time.Now()}
}
