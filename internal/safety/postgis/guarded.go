package postgis

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

// DependencyName identifies the fact database in the resilience registry.
const DependencyName = "postgis"

// GuardedStore fronts a Store with a circuit breaker. While the database is
// failing, fact lookups return resilience.ErrCircuitOpen at once instead of
// waiting on the pool.
type GuardedStore struct {
	store *Store
	guard *resilience.Guard
}

// NewGuardedStore wraps store and registers the breaker with registry, which
// may be nil.
func NewGuardedStore(store *Store, registry *resilience.Registry, logger zerolog.Logger) *GuardedStore {
	breaker := resilience.DefaultBreakerConfig(DependencyName)
	breaker.Ignore = func(err error) bool { return errors.Is(err, safety.ErrInvalidInput) }

	return &GuardedStore{
		store: store,
		guard: resilience.NewGuard(resilience.GuardConfig{
			Breaker:  breaker,
			Registry: registry,
			Logger:   logger,
		}),
	}
}

// FetchIncidents returns incidents near route through the circuit breaker.
func (g *GuardedStore) FetchIncidents(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) ([]safety.Incident, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) ([]safety.Incident, error) {
		return g.store.FetchIncidents(ctx, route, radiusM, daysBack)
	})
}

// FetchPatrolStopCount counts recent patrol stops near route through the circuit breaker.
func (g *GuardedStore) FetchPatrolStopCount(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) (int, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) (int, error) {
		return g.store.FetchPatrolStopCount(ctx, route, radiusM, daysBack)
	})
}

// FetchEmergencyPhones returns emergency phone locations near route through the circuit breaker.
func (g *GuardedStore) FetchEmergencyPhones(ctx context.Context, route spatial.Geometry, radiusM float64) ([]spatial.Coordinate, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) ([]spatial.Coordinate, error) {
		return g.store.FetchEmergencyPhones(ctx, route, radiusM)
	})
}

// IsWithinBounds reports whether point lies inside the campus boundary.
func (g *GuardedStore) IsWithinBounds(ctx context.Context, point spatial.Coordinate) (bool, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) (bool, error) {
		return g.store.IsWithinBounds(ctx, point)
	})
}

// AllSafetyAssets returns every safety asset location for graph building.
func (g *GuardedStore) AllSafetyAssets(ctx context.Context) ([]spatial.Coordinate, error) {
	return resilience.Call(ctx, g.guard, g.store.AllSafetyAssets)
}

// AllIncidentLocations returns every incident location for graph building.
func (g *GuardedStore) AllIncidentLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	return resilience.Call(ctx, g.guard, g.store.AllIncidentLocations)
}
