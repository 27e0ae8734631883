// Package api provides the HTTP API for SafeRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// RouteService is the recommendation pipeline plus its graph controls.
// Implemented by recommend.Service.
type RouteService interface {
	handler.Recommender
	handler.GraphReloader
	handler.GraphStatusSource
}

// RouteCache is the candidate route cache. Implemented by routing.Service.
type RouteCache interface {
	handler.CacheInvalidator
	handler.CacheStatsSource
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Routes       RouteService
	Cache        RouteCache // optional
	FeatureFlags handler.FlagService
	Authorizer   middleware.TokenAuthorizer
	Registry     *resilience.Registry // optional

	// Zero values fall back to the middleware defaults.
	RouteRateLimit middleware.RateLimit
	AdminRateLimit middleware.RateLimit
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "saferoute-api"
	}

	// Order matters: request ID first so every later layer can log it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})

	var cache handler.CacheStatsSource
	var invalidator handler.CacheInvalidator
	if cfg.Cache != nil {
		cache, invalidator = cfg.Cache, cfg.Cache
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Graph:     cfg.Routes,
		Cache:     cache,
		Registry:  cfg.Registry,
	})
	routeHandler := handler.NewRouteHandler(cfg.Routes, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Routes, invalidator, cfg.Logger)
	flagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlags, cfg.Logger)

	requireAdmin := middleware.RequireRole(cfg.Authorizer, auth.RoleAdmin)

	routeLimit, adminLimit := cfg.RouteRateLimit, cfg.AdminRateLimit
	if routeLimit == (middleware.RateLimit{}) {
		routeLimit = middleware.DefaultRouteRateLimit
	}
	if adminLimit == (middleware.RateLimit{}) {
		adminLimit = middleware.DefaultAdminRateLimit
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(requireAdmin).Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(routeLimit.ByIP())
			r.Post("/routes:recommend", routeHandler.Recommend)
			r.Post("/routes:graph", routeHandler.GraphRoute)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Use(adminLimit.BySubject())

			r.Post("/graph:reload", adminHandler.ReloadGraph)
			r.Post("/cache:invalidate", adminHandler.InvalidateCache)

			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", flagsHandler.ListFeatureFlags)
				r.Put("/", flagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", flagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
