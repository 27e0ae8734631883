package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/routing"
)

// DirectionsFetcher fetches candidate routes through the route cache.
// Implemented by routing.Service.
type DirectionsFetcher interface {
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// WarmupJob prefetches candidate routes for popular trips so that the first
// evening requests are served from the cache.
type WarmupJob struct {
	config     WarmupConfig
	directions DirectionsFetcher
	logger     zerolog.Logger
}

// WarmupJobConfig holds configuration for creating a WarmupJob.
type WarmupJobConfig struct {
	Config     WarmupConfig
	Directions DirectionsFetcher
	Logger     zerolog.Logger
}

// NewWarmupJob creates a new cache warmup job.
func NewWarmupJob(cfg WarmupJobConfig) *WarmupJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &WarmupJob{
		config:     config,
		directions: cfg.Directions,
		logger:     cfg.Logger,
	}
}

// WarmupResult contains the result of a warmup run.
type WarmupResult struct {
	StartTime  time.Time
	Duration   time.Duration
	Targets    int
	Successful int
	Failed     int
	Routes     int
	Errors     []WarmupError
}

// WarmupError records a target that could not be warmed.
type WarmupError struct {
	Target string
	Error  string
}

type targetResult struct {
	target WarmupTarget
	routes int
	err    error
}

// Run fetches every target, at most Concurrency at a time. Individual
// failures are collected, never fatal.
func (j *WarmupJob) Run(ctx context.Context) *WarmupResult {
	targets := j.config.Ordered()
	result := &WarmupResult{StartTime: time.Now(), Targets: len(targets)}
	if len(targets) == 0 {
		return result
	}

	j.logger.Info().
		Int("targets", len(targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting route cache warmup")

	work := make(chan WarmupTarget)
	results := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				results <- j.warm(ctx, t)
			}
		}()
	}

feed:
	for _, t := range targets {
		select {
		case work <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(results)

	for tr := range results {
		if tr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WarmupError{Target: tr.target.Name, Error: tr.err.Error()})
			continue
		}
		result.Successful++
		result.Routes += tr.routes
	}
	result.Duration = time.Since(result.StartTime)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("routes", result.Routes).
		Msg("route cache warmup completed")

	return result
}

func (j *WarmupJob) warm(ctx context.Context, t WarmupTarget) targetResult {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	// Same request shape as the recommendation pipeline so the cache keys match.
	resp, err := j.directions.GetDirections(ctx, routing.DirectionsRequest{
		Origin:      t.Origin,
		Destination: t.Destination,
		Profile:     routing.ProfileWalk,
	})
	if err != nil {
		j.logger.Warn().Err(err).Str("target", t.Name).Msg("warmup fetch failed")
		return targetResult{target: t, err: err}
	}
	return targetResult{target: t, routes: len(resp.Routes)}
}
