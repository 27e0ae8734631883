// Package main provides the entrypoint for the SafeRoute API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/featureflags"
	"github.com/saferoute/saferoute/internal/graph/badgerstore"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/recommend"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/routing/openrouteservice"
	"github.com/saferoute/saferoute/internal/routing/osrm"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/safety/postgis"
	"github.com/saferoute/saferoute/internal/telemetry"
	"github.com/saferoute/saferoute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "saferoute-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Server.Env).
		Msg("starting SafeRoute API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	graphs, err := badgerstore.Open(badgerstore.Config{Path: cfg.Graph.StorePath, Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open graph store")
	}
	defer func() {
		if closeErr := graphs.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close graph store")
		}
	}()

	registry := resilience.NewRegistry()
	routes := routing.NewService(routing.ServiceConfig{
		Provider:        newProvider(cfg, registry, log),
		Logger:          log,
		Metrics:         providerMetrics,
		CacheTTL:        cfg.Routing.CacheTTL,
		MaxAlternatives: cfg.Routing.MaxAlternatives,
	})

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   cfg.FeatureFlags.CacheTTL,
	})

	recommender := recommend.NewService(recommend.Config{
		Candidates:      routes,
		Facts:           postgis.NewGuardedStore(postgis.NewStore(pool), registry, log),
		Analyzer:        safety.NewAnalyzer(cfg.Scoring),
		Ranker:          ranking.NewRanker(cfg.RankingWeights()),
		Flags:           flags,
		Graphs:          graphs,
		Extent:          cfg.Graph.Extent,
		Query:           cfg.Facts.FactQuery,
		FactConcurrency: cfg.Facts.Concurrency,
		WalkingSpeed:    cfg.Routing.WalkingSpeed,
		DefaultSource:   recommend.Source(cfg.Routing.DefaultSource),
		Location:        cfg.Location(),
		Logger:          log,
	})

	// A missing graph is not fatal: provider routing still works and the
	// worker or an admin reload can supply it later.
	if status, loadErr := recommender.ReloadGraph(ctx); loadErr != nil {
		log.Warn().Err(loadErr).Str("extent", cfg.Graph.Extent).Msg("safety graph not loaded")
	} else {
		log.Info().
			Str("extent", status.Extent).
			Int("nodes", status.Stats.Nodes).
			Int("edges", status.Stats.Edges).
			Msg("safety graph loaded")
	}

	if cfg.Auth.JWTSigningKey == "" {
		log.Warn().Msg("JWT_SIGNING_KEY not set - admin endpoints will reject every token")
	}
	authorizer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.Issuer,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      httpMetrics,
		RequireTLS:   cfg.Server.RequireTLS,
		Routes:       recommender,
		Cache:        routes,
		FeatureFlags: flags,
		Authorizer:   authorizer,
		Registry:     registry,

		RouteRateLimit: cfg.Server.RouteRateLimit,
		AdminRateLimit: cfg.Server.AdminRateLimit,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if len(cfg.Warmup.Targets) > 0 {
		warmup := worker.NewWarmupJob(worker.WarmupJobConfig{
			Config:     cfg.Warmup,
			Directions: routes,
			Logger:     log.With().Str("job", "cache_warmup").Logger(),
		})
		go warmup.Run(runCtx)
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// newProvider builds the configured candidate route provider. Its resilient
// HTTP client registers itself with registry for the status endpoint.
func newProvider(cfg config.Config, registry *resilience.Registry, log zerolog.Logger) routing.Provider {
	if cfg.Routing.Provider == config.ProviderOpenRouteService {
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.Routing.ORSAPIKey,
			BaseURL:  cfg.Routing.ORSBaseURL,
			Timeout:  cfg.Routing.Timeout,
			Registry: registry,
			Logger:   log,
		})
	}
	return osrm.NewClient(osrm.ClientConfig{
		BaseURL:  cfg.Routing.OSRMBaseURL,
		Timeout:  cfg.Routing.Timeout,
		Registry: registry,
		Logger:   log,
	})
}
