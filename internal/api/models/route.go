package models

import (
	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/recommend"
	"github.com/saferoute/saferoute/internal/safety"
)

// RecommendRequest is the body of POST /v1/routes:recommend.
type RecommendRequest struct {
	Origin       *Point `json:"origin" validate:"required"`
	Destination  *Point `json:"destination" validate:"required"`
	UserMode     string `json:"userMode" validate:"omitempty,oneof=student community"`
	Priority     string `json:"priority" validate:"omitempty,oneof=safety speed balanced"`
	Time         string `json:"time" validate:"omitempty,max=64"`
	ForceRefresh bool   `json:"forceRefresh"`
	Source       string `json:"source" validate:"omitempty,oneof=provider graph both"`
}

// ToDomain converts a validated request.
func (r RecommendRequest) ToDomain() recommend.Request {
	return recommend.Request{
		Origin:       r.Origin.Coordinate(),
		Destination:  r.Destination.Coordinate(),
		UserMode:     safety.UserMode(r.UserMode),
		Priority:     ranking.Priority(r.Priority),
		Time:         r.Time,
		ForceRefresh: r.ForceRefresh,
		Source:       recommend.Source(r.Source),
	}
}

// GraphRouteRequest is the body of POST /v1/routes:graph.
type GraphRouteRequest struct {
	Origin      *Point `json:"origin" validate:"required"`
	Destination *Point `json:"destination" validate:"required"`
	Cost        string `json:"cost" validate:"omitempty,oneof=distance safety"`
}

// CostFunction returns the requested cost, defaulting to safety.
func (r GraphRouteRequest) CostFunction() graph.CostFunction {
	if r.Cost == "" {
		return graph.CostSafety
	}
	return graph.CostFunction(r.Cost)
}
