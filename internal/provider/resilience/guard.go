package resilience

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Guard puts a circuit breaker in front of a non-HTTP dependency such as
// the PostGIS fact store. Calls are not retried.
type Guard struct {
	name     string
	config   BreakerConfig
	breaker  *gobreaker.CircuitBreaker[any]
	registry *Registry
}

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	Breaker  BreakerConfig
	Registry *Registry // optional
	Logger   zerolog.Logger
}

// NewGuard creates a guard and registers it when a registry is given.
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{
		name:     cfg.Breaker.Name,
		config:   cfg.Breaker,
		breaker:  newBreaker[any](cfg.Breaker, cfg.Registry, cfg.Logger),
		registry: cfg.Registry,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(g)
	}
	return g
}

// Call runs fn through the guard's breaker.
func Call[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	v, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	err = breakerError(g.name, err)
	if err == nil || g.config.failure(err) {
		g.registry.record(g.name, err)
	}
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Name returns the dependency name.
func (g *Guard) Name() string { return g.name }

// State returns the breaker state.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Counts returns the breaker counts for the current window.
func (g *Guard) Counts() gobreaker.Counts { return g.breaker.Counts() }
