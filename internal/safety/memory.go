package safety

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Asset is a fixed safety asset such as an emergency phone or a camera.
type Asset struct {
	Type     string
	Location spatial.Coordinate
}

// PatrolStop is a recorded patrol or traffic stop.
type PatrolStop struct {
	Location spatial.Coordinate
	At       time.Time
}

// MemoryStore is an in-memory FactStore. It also serves whole-extent fact
// lists for graph builds.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents []Incident
	stops     []PatrolStop
	assets    []Asset
	boundary  *spatial.Boundary
	now       func() time.Time
}

// NewMemoryStore creates an empty store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now}
}

// AddIncidents appends incidents, normalizing their types.
func (s *MemoryStore) AddIncidents(incidents ...Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range incidents {
		inc.Type = NormalizeIncidentType(inc.Type)
		s.incidents = append(s.incidents, inc)
	}
}

// AddPatrolStops appends patrol stops.
func (s *MemoryStore) AddPatrolStops(stops ...PatrolStop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, stops...)
}

// AddAssets appends safety assets.
func (s *MemoryStore) AddAssets(assets ...Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, assets...)
}

// SetBoundary sets the service-area boundary. A nil boundary accepts every
// valid coordinate.
func (s *MemoryStore) SetBoundary(b *spatial.Boundary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundary = b
}

func (s *MemoryStore) cutoff(daysBack int) time.Time {
	return s.now().Add(-time.Duration(daysBack) * 24 * time.Hour)
}

// FetchIncidents returns incidents since daysBack days ago within radiusM of route.
func (s *MemoryStore) FetchIncidents(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) ([]Incident, error) {
	if err := ValidateQuery(route, radiusM, daysBack); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	near := spatial.NewRouteProximity(route)
	cutoff := s.cutoff(daysBack)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Incident{}
	for _, inc := range s.incidents {
		if inc.OccurredAt.Before(cutoff) {
			continue
		}
		if near.Within(inc.Location, radiusM) {
			out = append(out, inc)
		}
	}
	return out, nil
}

// FetchPatrolStopCount counts patrol stops since daysBack days ago within radiusM of route.
func (s *MemoryStore) FetchPatrolStopCount(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) (int, error) {
	if err := ValidateQuery(route, radiusM, daysBack); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	near := spatial.NewRouteProximity(route)
	cutoff := s.cutoff(daysBack)

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, stop := range s.stops {
		if !stop.At.Before(cutoff) && near.Within(stop.Location, radiusM) {
			count++
		}
	}
	return count, nil
}

// FetchEmergencyPhones returns emergency phone locations within radiusM of route.
func (s *MemoryStore) FetchEmergencyPhones(ctx context.Context, route spatial.Geometry, radiusM float64) ([]spatial.Coordinate, error) {
	if err := ValidateQuery(route, radiusM, 0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	near := spatial.NewRouteProximity(route)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []spatial.Coordinate{}
	for _, a := range s.assets {
		if isEmergencyPhone(a.Type) && near.Within(a.Location, radiusM) {
			out = append(out, a.Location)
		}
	}
	return out, nil
}

// IsWithinBounds reports whether point lies inside the configured boundary.
func (s *MemoryStore) IsWithinBounds(ctx context.Context, point spatial.Coordinate) (bool, error) {
	if err := point.Validate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundary == nil {
		return true, nil
	}
	return s.boundary.Contains(point), nil
}

// AllSafetyAssets returns every asset location.
func (s *MemoryStore) AllSafetyAssets(ctx context.Context) ([]spatial.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]spatial.Coordinate, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a.Location)
	}
	return out, nil
}

// AllIncidentLocations returns every incident location regardless of age.
func (s *MemoryStore) AllIncidentLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]spatial.Coordinate, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, inc.Location)
	}
	return out, nil
}

func isEmergencyPhone(assetType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(assetType)), "emergency phone")
}
