// Package handler provides HTTP handlers for the SafeRoute API.
package handler

import (
	"net/http"
	"time"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/recommend"
	"github.com/saferoute/saferoute/internal/routing"
)

// GraphStatusSource reports the loaded safety graph. Implemented by
// recommend.Service.
type GraphStatusSource interface {
	GraphStatus() recommend.GraphStatus
}

// CacheStatsSource reports route cache occupancy. Implemented by routing.Service.
type CacheStatsSource interface {
	CacheStats() routing.CacheStats
}

// OpsConfig configures the OpsHandler. Cache and Registry are optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Graph     GraphStatusSource
	Cache     CacheStatsSource
	Registry  *resilience.Registry
	Now       func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health. It only proves the process serves.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The API is not ready until a
// safety graph is loaded.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	graph := h.cfg.Graph.GraphStatus()
	health := models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(h.cfg.Now()),
		Details: map[string]interface{}{"graphLoaded": graph.Loaded},
	}
	status := http.StatusOK
	if !graph.Loaded {
		health.Status = models.HealthStatusFail
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	out := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(h.cfg.Now()),
		Graph:        h.cfg.Graph.GraphStatus(),
		Dependencies: []models.DependencyStatus{},
	}
	if h.cfg.Cache != nil {
		stats := h.cfg.Cache.CacheStats()
		out.Cache = &stats
	}
	if h.cfg.Registry != nil {
		for _, dep := range h.cfg.Registry.All() {
			out.Dependencies = append(out.Dependencies, dependencyStatus(dep))
		}
	}

	if !out.Graph.Loaded {
		out.Status = models.HealthStatusDegraded
	}
	for _, d := range out.Dependencies {
		if d.Status == models.HealthStatusFail {
			out.Status = models.HealthStatusDegraded
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

func dependencyStatus(h resilience.Health) models.DependencyStatus {
	ds := models.DependencyStatus{
		Name:         h.Name,
		Status:       models.HealthStatusOK,
		CircuitState: h.State.String(),
		Requests:     h.Counts.Requests,
		Failures:     h.Counts.TotalFailures,
	}
	switch {
	case h.Down():
		ds.Status = models.HealthStatusFail
	case h.Degraded():
		ds.Status = models.HealthStatusDegraded
	}
	ds.LastSuccessAt = models.Stamp(h.LastSuccessAt)
	ds.LastFailureAt = models.Stamp(h.LastFailureAt)
	ds.StateChangedAt = models.Stamp(h.StateChangedAt)
	if h.LastError != "" {
		msg := h.LastError
		ds.Message = &msg
	}
	return ds
}
