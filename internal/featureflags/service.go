package featureflags

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long a loaded snapshot is served. Default: 1 minute
	CacheTTL time.Duration
	Now      func() time.Time
}

// Service serves flags from a snapshot of the repository, refreshed at most
// once per TTL. When a refresh fails the previous snapshot stays in use, and
// before the first successful load every flag reads as its default.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time
	loads  singleflight.Group

	mu       sync.RWMutex
	snapshot map[string]*Flag
	loadedAt time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		ttl:    cfg.CacheTTL,
		now:    cfg.Now,
	}
	if s.ttl <= 0 {
		s.ttl = time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// flags returns the current snapshot layered over the defaults. Callers must
// not modify it.
func (s *Service) flags(ctx context.Context) map[string]*Flag {
	s.mu.RLock()
	snap, fresh := s.snapshot, s.snapshot != nil && s.now().Sub(s.loadedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		return snap
	}

	v, err, _ := s.loads.Do("flags", func() (any, error) {
		stored, err := s.repo.LoadFlags(ctx)
		if err != nil {
			return nil, err
		}
		merged := DefaultFlags()
		for key, f := range stored {
			d, ok := definitions[key]
			if !ok {
				continue
			}
			f.Description = d.Description
			merged[key] = f
		}

		s.mu.Lock()
		s.snapshot, s.loadedAt = merged, s.now()
		s.mu.Unlock()
		return merged, nil
	})
	if err != nil {
		if snap == nil {
			s.logger.Warn().Err(err).Msg("loading feature flags failed, using defaults")
			return DefaultFlags()
		}
		s.logger.Warn().Err(err).Msg("refreshing feature flags failed, keeping previous values")
		return snap
	}
	return v.(map[string]*Flag)
}

// Get returns the flag stored under key, or nil for an unknown key.
func (s *Service) Get(ctx context.Context, key string) *Flag {
	return s.flags(ctx)[key]
}

// List returns every known flag sorted by key.
func (s *Service) List(ctx context.Context) FlagList {
	return newFlagList(s.flags(ctx))
}

// SetFlags validates the whole batch, then stores it in one write. An
// invalid update rejects the batch with ErrInvalidFlag and nothing changes.
func (s *Service) SetFlags(ctx context.Context, updates []FlagUpdate, change Change) ([]*Flag, error) {
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if change.At.IsZero() {
		change.At = now
	}
	flags := make([]*Flag, len(updates))
	for i, u := range updates {
		flags[i] = &Flag{Key: u.Key, Value: u.Value, Description: definitions[u.Key].Description, UpdatedAt: now}
	}
	if err := s.repo.SaveFlags(ctx, flags, change); err != nil {
		return nil, err
	}

	s.InvalidateCache()
	return flags, nil
}

// InvalidateCache drops the snapshot so the next read goes to the
// repository. Until that read succeeds the old snapshot is still served.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// ScoringModel returns the risk model override, or "" when unset.
func (s *Service) ScoringModel(ctx context.Context) string {
	return s.Get(ctx, FlagScoringModel).String("")
}

// IsGraphRoutingDisabled reports whether graph routing is switched off.
func (s *Service) IsGraphRoutingDisabled(ctx context.Context) bool {
	return s.Get(ctx, FlagDisableGraphRouting).Bool(false)
}
