// Package main provides the entrypoint for the SafeRoute worker, which
// rebuilds the safety graph on a schedule and on Pub/Sub request.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/graph/badgerstore"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/routing/osrm"
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
	const serviceName = "saferoute-worker"

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
		Str("extent", cfg.Graph.Extent).
		Msg("starting SafeRoute worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	graphMetrics, err := telemetry.NewGraphMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize graph metrics")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	store, err := badgerstore.Open(badgerstore.Config{Path: cfg.Graph.StorePath, SyncWrites: true, Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open graph store")
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close graph store")
		}
	}()

	var network worker.NetworkSource
	if cfg.Graph.NetworkFile != "" {
		path := cfg.Graph.NetworkFile
		network = func(context.Context) (*graph.Network, error) {
			return graph.LoadNetworkFile(path)
		}
	}

	rebuild := worker.NewGraphRebuildJob(worker.GraphRebuildJobConfig{
		Config: worker.RebuildConfig{
			Extent:   cfg.Graph.Extent,
			Interval: cfg.Graph.RebuildInterval,
			Mode:     cfg.Graph.RebuildMode,
		},
		Builder: graph.NewBuilder(graph.BuilderConfig{
			Weights: cfg.Graph.Weights,
			Facts:   postgis.NewGuardedStore(postgis.NewStore(pool), nil, log),
			Logger:  log,
		}),
		Store:   store,
		Network: network,
		Metrics: graphMetrics,
		Logger:  log.With().Str("job", "graph_rebuild").Logger(),
	})

	var warmup *worker.WarmupJob
	if len(cfg.Warmup.Targets) > 0 && cfg.Routing.Provider == config.ProviderOSRM {
		// Warming a self-hosted OSRM keeps its page cache hot for the API.
		warmup = worker.NewWarmupJob(worker.WarmupJobConfig{
			Config: cfg.Warmup,
			Directions: routing.NewService(routing.ServiceConfig{
				Provider: osrm.NewClient(osrm.ClientConfig{BaseURL: cfg.Routing.OSRMBaseURL, Logger: log}),
				Logger:   log,
			}),
			Logger: log.With().Str("job", "cache_warmup").Logger(),
		})
	}
	dispatcher := worker.NewDispatcher(rebuild, warmup, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      healthRouter(rebuild),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go rebuild.RunEvery(ctx, cfg.Graph.RebuildInterval)

	if cfg.PubSub.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured, running scheduled rebuilds only")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func healthRouter(rebuild *worker.GraphRebuildJob) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "OK",
			"version": Version,
			"rebuild": rebuild.StatsSnapshot(),
		})
	})
	return r
}
