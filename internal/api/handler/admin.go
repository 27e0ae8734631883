package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/graph/badgerstore"
	"github.com/saferoute/saferoute/internal/recommend"
)

// GraphReloader swaps in the persisted safety graph. Implemented by
// recommend.Service.
type GraphReloader interface {
	ReloadGraph(ctx context.Context) (recommend.GraphStatus, error)
}

// CacheInvalidator drops cached candidate routes. Implemented by routing.Service.
type CacheInvalidator interface {
	InvalidateCache() int
}

// AdminHandler serves operator actions on the graph and route cache.
type AdminHandler struct {
	graphs GraphReloader
	cache  CacheInvalidator
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler. cache may be nil when the API
// runs without a directions provider.
func NewAdminHandler(graphs GraphReloader, cache CacheInvalidator, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{graphs: graphs, cache: cache, logger: logger}
}

// ReloadGraph handles POST /v1/admin/graph:reload.
func (h *AdminHandler) ReloadGraph(w http.ResponseWriter, r *http.Request) {
	status, err := h.graphs.ReloadGraph(r.Context())
	if err != nil {
		if errors.Is(err, badgerstore.ErrNotFound) {
			response.NotFound(w, r, "no graph artifact has been built for this extent")
			return
		}
		h.logger.Error().Err(err).Str("request_id", response.TraceID(r)).Msg("graph reload failed")
		response.Problem(w, r, models.KindGraphUnavailable, "graph reload failed")
		return
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Str("extent", status.Extent).
		Int("edges", status.Stats.Edges).
		Msg("graph reloaded by operator")
	response.JSON(w, r, http.StatusOK, status)
}

// InvalidateCache handles POST /v1/admin/cache:invalidate.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	removed := 0
	if h.cache != nil {
		removed = h.cache.InvalidateCache()
	}
	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Int("entries_removed", removed).
		Msg("route cache invalidated by operator")
	response.JSON(w, r, http.StatusOK, models.CacheInvalidated{EntriesRemoved: removed})
}
