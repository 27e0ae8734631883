package routing

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Clock supplies the current time to the cache.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Metrics receives provider call and cache outcomes. telemetry.ProviderMetrics
// implements it.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

const metricsOperation = "directions"

// Cache defaults.
const (
	DefaultCacheTTL        = time.Hour
	DefaultCacheGridSize   = 0.0001 // about 11 m of latitude
	DefaultCleanupInterval = 10 * time.Minute
	DefaultFetchTimeout    = 30 * time.Second
)

// ServiceConfig configures a Service. Only Provider is required.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger
	Clock    Clock
	Metrics  Metrics

	// CacheTTL is how long an answer is served without asking the provider.
	CacheTTL time.Duration
	// CacheGridSize is the cell size in degrees. Points in the same cell
	// share cached routes.
	CacheGridSize float64
	// StaleIfErrorTTL is how long after fetching an answer may still be
	// served when the provider fails. Defaults to twice CacheTTL.
	StaleIfErrorTTL time.Duration
	CleanupInterval time.Duration
	// FetchTimeout bounds a shared provider call. The call outlives any one
	// caller's cancellation so other waiters still get the answer.
	FetchTimeout time.Duration

	// MaxAlternatives caps the alternatives a request may ask for.
	MaxAlternatives int
}

// Service puts a grid-keyed cache in front of a Provider. Concurrent misses
// for the same key share one provider call.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	clock           Clock
	metrics         Metrics
	maxAlternatives int
	fetchTimeout    time.Duration

	cache    *directionsCache
	inflight singleflight.Group
}

// NewService creates a Service, filling unset config with defaults.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	grid := cfg.CacheGridSize
	if grid == 0 {
		grid = DefaultCacheGridSize
	}
	staleFor := cfg.StaleIfErrorTTL
	if staleFor == 0 {
		staleFor = 2 * ttl
	}
	sweep := cfg.CleanupInterval
	if sweep == 0 {
		sweep = DefaultCleanupInterval
	}

	s := &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger.With().Str("provider", cfg.Provider.Name()).Logger(),
		clock:           cfg.Clock,
		metrics:         cfg.Metrics,
		maxAlternatives: cfg.MaxAlternatives,
		fetchTimeout:    cfg.FetchTimeout,
		cache:           newDirectionsCache(grid, ttl, staleFor, sweep),
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.maxAlternatives <= 0 {
		s.maxAlternatives = DefaultMaxAlternatives
	}
	return s
}

// Name reports the wrapped provider's name, so a Service can stand in for
// a Provider.
func (s *Service) Name() string {
	return s.provider.Name()
}

// GetDirections answers from the cache when a fresh entry exists and
// ForceRefresh is unset. Otherwise it asks the provider, falling back to a
// stale entry if the provider fails.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := ValidateEndpoints(s.provider.Name(), req); err != nil {
		return nil, err
	}
	if req.Profile == "" {
		req.Profile = ProfileWalk
	}
	if req.MaxAlternatives <= 0 || req.MaxAlternatives > s.maxAlternatives {
		req.MaxAlternatives = s.maxAlternatives
	}

	key := s.cache.key(req)
	if !req.ForceRefresh {
		if resp, ok := s.cache.fresh(key, s.clock.Now()); ok {
			s.recordCache(true)
			s.logger.Debug().Str("cache_key", key).Msg("directions cache hit")
			return resp, nil
		}
	}
	s.recordCache(false)

	// A forced refresh must not join a normal flight, which could answer
	// from the cache.
	flight := key
	if req.ForceRefresh {
		flight = "refresh:" + key
	}
	results := s.inflight.DoChan(flight, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx, req, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DirectionsResponse), nil
	}
}

func (s *Service) fetch(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	// An earlier flight for this key may have filled the cache.
	if !req.ForceRefresh {
		if resp, ok := s.cache.fresh(key, s.clock.Now()); ok {
			return resp, nil
		}
	}

	log := s.logger.With().
		Str("cache_key", key).
		Bool("force_refresh", req.ForceRefresh).
		Logger()

	start := s.clock.Now()
	resp, err := s.provider.GetDirections(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordRequest(s.provider.Name(), metricsOperation, s.clock.Now().Sub(start), err)
	}
	if err == nil && (resp == nil || len(resp.Routes) == 0) {
		err = NoRoute(s.provider.Name(), "provider returned no routes")
	}
	if err != nil {
		if entry, ok := s.cache.stale(key, s.clock.Now()); ok {
			log.Warn().Err(err).Time("fetched_at", entry.fetchedAt).
				Msg("provider failed, serving stale directions")
			return entry.response, nil
		}
		log.Error().Err(err).Msg("failed to fetch directions")
		return nil, err
	}

	if swept := s.cache.put(key, resp, s.clock.Now()); swept > 0 {
		log.Debug().Int("swept", swept).Msg("removed expired directions")
	}
	log.Debug().Int("route_count", len(resp.Routes)).Msg("cached directions")
	return resp, nil
}

func (s *Service) recordCache(hit bool) {
	switch {
	case s.metrics == nil:
	case hit:
		s.metrics.RecordCacheHit(s.provider.Name(), metricsOperation)
	default:
		s.metrics.RecordCacheMiss(s.provider.Name(), metricsOperation)
	}
}

// InvalidateCache drops every cached answer and returns how many there were.
func (s *Service) InvalidateCache() int {
	n := s.cache.clear()
	s.logger.Info().Int("entries", n).Msg("routing cache invalidated")
	return n
}

// CacheStats counts fresh and stale entries as of now.
func (s *Service) CacheStats() CacheStats {
	st := s.cache.stats(s.clock.Now())
	st.Provider = s.provider.Name()
	return st
}
