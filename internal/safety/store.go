package safety

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/spatial"
)

// ErrInvalidInput is returned by fact stores for malformed queries, before
// any I/O is attempted.
var ErrInvalidInput = errors.New("invalid fact query")

// FactStore answers spatial fact queries around a route. Radius queries
// match facts within radiusM meters of any point on the route.
type FactStore interface {
	FetchIncidents(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) ([]Incident, error)
	FetchPatrolStopCount(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) (int, error)
	FetchEmergencyPhones(ctx context.Context, route spatial.Geometry, radiusM float64) ([]spatial.Coordinate, error)
	IsWithinBounds(ctx context.Context, point spatial.Coordinate) (bool, error)
}

// ValidateQuery checks the arguments shared by all radius queries.
func ValidateQuery(route spatial.Geometry, radiusM float64, daysBack int) error {
	if radiusM <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidInput, radiusM)
	}
	if daysBack < 0 {
		return fmt.Errorf("%w: days back must not be negative, got %d", ErrInvalidInput, daysBack)
	}
	if err := route.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// FactQuery holds the radii and time windows used to gather route facts.
type FactQuery struct {
	SpatialRadiusM     float64 `yaml:"spatial_radius_m"`
	PhoneRadiusM       float64 `yaml:"phone_radius_m"`
	TemporalWindowDays int     `yaml:"temporal_window_days"`
	TrafficWindowDays  int     `yaml:"traffic_window_days"`
}

// DefaultFactQuery returns the default radii and windows.
func DefaultFactQuery() FactQuery {
	return FactQuery{
		SpatialRadiusM:     500,
		PhoneRadiusM:       100,
		TemporalWindowDays: 30,
		TrafficWindowDays:  90,
	}
}

// WithDefaults fills zero fields from DefaultFactQuery.
func (q FactQuery) WithDefaults() FactQuery {
	d := DefaultFactQuery()
	if q.SpatialRadiusM == 0 {
		q.SpatialRadiusM = d.SpatialRadiusM
	}
	if q.PhoneRadiusM == 0 {
		q.PhoneRadiusM = d.PhoneRadiusM
	}
	if q.TemporalWindowDays == 0 {
		q.TemporalWindowDays = d.TemporalWindowDays
	}
	if q.TrafficWindowDays == 0 {
		q.TrafficWindowDays = d.TrafficWindowDays
	}
	return q
}

// CollectFacts gathers the facts for one route. Invalid queries and context
// cancellation are returned as errors. Any other lookup failure is logged,
// replaced by an empty fact set and flagged as Degraded so scoring can still
// complete. Lighting data is not available and is reported as moderate.
func CollectFacts(ctx context.Context, store FactStore, route spatial.Geometry, q FactQuery, logger zerolog.Logger) (FactBundle, error) {
	if err := ValidateQuery(route, q.SpatialRadiusM, q.TemporalWindowDays); err != nil {
		return FactBundle{}, err
	}
	if err := ValidateQuery(route, q.PhoneRadiusM, q.TrafficWindowDays); err != nil {
		return FactBundle{}, err
	}

	facts := FactBundle{Lighting: LightingModerate}

	recoverable := func(lookup string, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrInvalidInput) {
			return err
		}
		logger.Warn().Err(err).Str("lookup", lookup).Msg("fact lookup failed, continuing with empty facts")
		facts.Degraded = true
		return nil
	}

	incidents, err := store.FetchIncidents(ctx, route, q.SpatialRadiusM, q.TemporalWindowDays)
	if err != nil {
		if err := recoverable("incidents", err); err != nil {
			return FactBundle{}, err
		}
		incidents = nil
	}
	facts.Incidents = incidents

	stops, err := store.FetchPatrolStopCount(ctx, route, q.SpatialRadiusM, q.TrafficWindowDays)
	if err != nil {
		if err := recoverable("patrol_stops", err); err != nil {
			return FactBundle{}, err
		}
		stops = 0
	}
	facts.Patrol = PatrolFrequencyLabel(stops)

	phones, err := store.FetchEmergencyPhones(ctx, route, q.PhoneRadiusM)
	if err != nil {
		if err := recoverable("emergency_phones", err); err != nil {
			return FactBundle{}, err
		}
		phones = nil
	}
	facts.PhoneLocations = phones
	facts.EmergencyPhones = len(phones)

	return facts, nil
}
