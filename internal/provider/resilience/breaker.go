// Package resilience guards calls to SafeRoute's upstream dependencies, the
// routing providers and the PostGIS fact store, with circuit breakers and
// retries, and tracks their health for the ops status endpoint.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the dependency while its
// breaker is open or its half-open probe budget is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes a dependency's circuit breaker.
type BreakerConfig struct {
	Name string

	// MinRequests is the number of calls in the current window before the
	// failure ratio is considered. Default: 5
	MinRequests uint32

	// FailureRatio at or above which the breaker opens. Default: 0.5
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open before probing.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probe calls allowed. Default: 1
	HalfOpenRequests uint32

	// CountWindow clears the counts while closed, so old failures age out.
	// Default: 1 minute
	CountWindow time.Duration

	// Ignore marks errors that are the caller's fault, e.g. invalid input.
	// They neither trip the breaker nor show up in the registry.
	Ignore func(error) bool
}

// DefaultBreakerConfig returns the breaker settings used for every
// dependency unless overridden.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name}.withDefaults()
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	if c.CountWindow <= 0 {
		c.CountWindow = time.Minute
	}
	return c
}

// ShouldTrip reports whether counts warrant opening the breaker.
func (c BreakerConfig) ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// isFailure decides what counts against a dependency. A caller giving up is
// not the dependency's fault.
func isFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (c BreakerConfig) failure(err error) bool {
	return isFailure(err) && (c.Ignore == nil || !c.Ignore(err))
}

// newBreaker builds a breaker that logs transitions and stamps them on the
// registry.
func newBreaker[T any](cfg BreakerConfig, registry *Registry, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.HalfOpenRequests,
		Interval:     cfg.CountWindow,
		Timeout:      cfg.OpenTimeout,
		ReadyToTrip:  cfg.ShouldTrip,
		IsSuccessful: func(err error) bool { return !cfg.failure(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if registry != nil {
				registry.recordStateChange(name)
			}
		},
	})
}

func breakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &OpenError{Dependency: name}
	}
	return err
}

// OpenError names the dependency whose breaker rejected a call. It matches
// ErrCircuitOpen with errors.Is.
type OpenError struct {
	Dependency string
}

func (e *OpenError) Error() string {
	return e.Dependency + ": " + ErrCircuitOpen.Error()
}

// Is reports whether target is ErrCircuitOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
