package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/recommend"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

// maxBodyBytes bounds request bodies; a route request is a few hundred bytes.
const maxBodyBytes = 64 << 10

// Recommender is the route pipeline. Implemented by recommend.Service.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	GraphRoute(ctx context.Context, origin, destination spatial.Coordinate, cost graph.CostFunction) (*recommend.GraphRoute, error)
}

// RouteHandler serves route recommendations and direct graph lookups.
type RouteHandler struct {
	recommender Recommender
	logger      zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(recommender Recommender, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{recommender: recommender, logger: logger}
}

// Recommend handles POST /v1/routes:recommend.
func (h *RouteHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.recommender.Recommend(r.Context(), req.ToDomain())
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// GraphRoute handles POST /v1/routes:graph.
func (h *RouteHandler) GraphRoute(w http.ResponseWriter, r *http.Request) {
	var req models.GraphRouteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	route, err := h.recommender.GraphRoute(r.Context(), req.Origin.Coordinate(), req.Destination.Coordinate(), req.CostFunction())
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, route)
}

// writeRouteError maps pipeline errors onto problems. Anything unrecognised
// is logged and reported as a 500 without internal detail.
func (h *RouteHandler) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := response.TraceID(r)
	switch {
	case errors.Is(err, recommend.ErrInvalidTime):
		response.Problem(w, r, models.KindInvalidTime, err.Error())
	case errors.Is(err, recommend.ErrOutOfBounds):
		response.Problem(w, r, models.KindOutOfBounds, "origin and destination must both be on campus")
	case errors.Is(err, recommend.ErrInvalidRequest),
		errors.Is(err, safety.ErrInvalidInput),
		errors.Is(err, ranking.ErrInvalidPriority),
		errors.Is(err, routing.ErrInvalidCoordinates):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, graph.ErrNoPath), errors.Is(err, routing.ErrNoRouteFound):
		response.Problem(w, r, models.KindNoPath, "no walking route connects these points")
	case errors.Is(err, recommend.ErrGraphNotLoaded):
		response.Problem(w, r, models.KindGraphUnavailable, "the safety graph has not been loaded")
	case errors.Is(err, recommend.ErrGraphRoutingDisabled):
		response.Problem(w, r, models.KindGraphUnavailable, "graph routing is temporarily disabled")
	case errors.Is(err, routing.ErrProviderUnavailable), errors.Is(err, routing.ErrRateLimitExceeded):
		h.logger.Warn().Err(err).Str("request_id", traceID).Msg("routing provider unavailable")
		response.Problem(w, r, models.KindRoutingUnavailable, "the directions provider is unavailable; try again shortly")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		h.logger.Debug().Str("request_id", traceID).Msg("route request cancelled")
	default:
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("route request failed")
		response.InternalError(w, r, "route computation failed")
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 problem itself and reports whether the handler may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, r, "request body is not valid JSON: "+err.Error(), nil)
		return false
	}
	if errs := models.Validate(dst); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return false
	}
	return true
}
