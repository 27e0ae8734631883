// Package recommend turns a route request into ranked, safety-scored walking
// routes: candidates are fetched, facts gathered per route, each route
// analyzed and the set ranked by the user's priority.
package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

var (
	// ErrInvalidRequest indicates a malformed request, rejected before any lookup.
	ErrInvalidRequest = errors.New("invalid route request")
	// ErrInvalidTime indicates the request time could not be parsed.
	ErrInvalidTime = errors.New("invalid request time")
	// ErrOutOfBounds indicates an endpoint outside the campus boundary.
	ErrOutOfBounds = errors.New("location outside the campus boundary")
	// ErrGraphNotLoaded indicates no safety graph has been loaded yet.
	ErrGraphNotLoaded = errors.New("safety graph not loaded")
	// ErrGraphRoutingDisabled indicates graph routing is switched off by flag.
	ErrGraphRoutingDisabled = errors.New("graph routing is disabled")
)

// Source selects where candidate routes come from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceGraph    Source = "graph"
	SourceBoth     Source = "both"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceProvider || s == SourceGraph || s == SourceBoth
}

// Request is a route recommendation request.
type Request struct {
	Origin       spatial.Coordinate
	Destination  spatial.Coordinate
	UserMode     safety.UserMode
	Priority     ranking.Priority
	Time         string // "current" or an RFC 3339 timestamp
	ForceRefresh bool
	Source       Source
}

// Recommendation is the ranked set with the primary route called out.
type Recommendation struct {
	Routes                []ranking.RankedRoute `json:"routes"`
	PrimaryRecommendation ranking.RankedRoute   `json:"primaryRecommendation"`
	Explanation           string                `json:"explanation"`
	Comparison            string                `json:"comparison"`
}

// Response is the result of Recommend.
type Response struct {
	RequestID       string               `json:"requestId"`
	Recommendation  Recommendation       `json:"recommendation"`
	Incidents       []safety.Incident    `json:"incidents"`
	EmergencyPhones []spatial.Coordinate `json:"emergencyPhones"`
	EvaluatedAt     time.Time            `json:"evaluatedAt"`
	Priority        ranking.Priority     `json:"priority"`
	ScoringModel    safety.Model         `json:"scoringModel"`
	Source          Source               `json:"source"`
}

// GraphRoute is a single path over the prebuilt graph.
type GraphRoute struct {
	Extent         string               `json:"extent"`
	Cost           graph.CostFunction   `json:"cost"`
	Coordinates    []spatial.Coordinate `json:"coordinates"`
	DistanceMeters float64              `json:"distanceMeters"`
	SafetyCost     float64              `json:"safetyCost"`
}

// GraphStatus describes the loaded graph.
type GraphStatus struct {
	Loaded  bool        `json:"loaded"`
	Extent  string      `json:"extent,omitempty"`
	BuiltAt time.Time   `json:"builtAt,omitempty"`
	Stats   graph.Stats `json:"stats"`
}

// Flags are the runtime switches the pipeline consults. Implemented by
// featureflags.Service.
type Flags interface {
	ScoringModel(ctx context.Context) string
	IsGraphRoutingDisabled(ctx context.Context) bool
}

// GraphLoader loads a persisted graph. Implemented by badgerstore.Store.
type GraphLoader interface {
	Load(ctx context.Context, extent string) (*graph.Graph, error)
}
