package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/featureflags"
)

// FlagService manages runtime flags. Implemented by featureflags.Service.
type FlagService interface {
	List(ctx context.Context) featureflags.FlagList
	SetFlags(ctx context.Context, updates []featureflags.FlagUpdate, change featureflags.Change) ([]*featureflags.Flag, error)
	InvalidateCache()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service FlagService
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service FlagService, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.List(r.Context()))
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags. The batch is
// applied all or nothing and the full flag list is returned.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	change := featureflags.Change{Subject: middleware.GetSubject(r.Context()), Reason: req.Reason}
	if _, err := h.service.SetFlags(r.Context(), req.Updates, change); err != nil {
		if errors.Is(err, featureflags.ErrInvalidFlag) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Str("request_id", response.TraceID(r)).Msg("updating feature flags failed")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	keys := make([]string, 0, len(req.Updates))
	for _, u := range req.Updates {
		keys = append(keys, u.Key)
	}
	h.logger.Info().
		Str("subject", change.Subject).
		Strs("keys", keys).
		Str("reason", req.Reason).
		Msg("feature flags updated")

	response.JSON(w, r, http.StatusOK, h.service.List(r.Context()))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
