// Package postgis implements safety.FactStore over PostgreSQL with PostGIS.
package postgis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

// Querier is the subset of pgxpool.Pool used by the store.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostGIS-backed fact store. Radius queries use ST_DWithin on
// geography so radii are in meters.
type Store struct {
	db  Querier
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to compute time-window cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a fact store over db.
func NewStore(db Querier, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const incidentsQuery = `
	WITH route AS (
		SELECT ST_GeogFromText($1) AS geom
	)
	SELECT 'crime:' || id::text AS id,
	       COALESCE(incident_type, '') AS type,
	       date_occurred AS occurred_at,
	       COALESCE(location_name, '') AS description,
	       ST_Y(location_geo::geometry) AS lat,
	       ST_X(location_geo::geometry) AS lon
	FROM crime_incidents, route
	WHERE location_geo IS NOT NULL
	  AND date_occurred IS NOT NULL
	  AND date_occurred >= $2
	  AND ST_DWithin(location_geo, route.geom, $3)
	UNION ALL
	SELECT 'cpd:' || offense_id::text,
	       COALESCE(nibrs_description, ''),
	       report_date,
	       COALESCE(nibrs_description, ''),
	       ST_Y(location_geo::geometry),
	       ST_X(location_geo::geometry)
	FROM cpd_incidents, route
	WHERE location_geo IS NOT NULL
	  AND report_date IS NOT NULL
	  AND report_date >= $2
	  AND ST_DWithin(location_geo, route.geom, $3)
	UNION ALL
	SELECT 'call:' || incident_number::text,
	       COALESCE(incident_type, ''),
	       call_time,
	       COALESCE(description, ''),
	       ST_Y(location_geo::geometry),
	       ST_X(location_geo::geometry)
	FROM police_calls, route
	WHERE location_geo IS NOT NULL
	  AND call_time IS NOT NULL
	  AND call_time >= $2
	  AND ST_DWithin(location_geo, route.geom, $3)
`

const patrolStopsQuery = `
	WITH route AS (
		SELECT ST_GeogFromText($1) AS geom
	)
	SELECT COUNT(*)
	FROM traffic_stops, route
	WHERE location_geo IS NOT NULL
	  AND stop_date IS NOT NULL
	  AND stop_date >= $2
	  AND ST_DWithin(location_geo, route.geom, $3)
`

const emergencyPhonesQuery = `
	WITH route AS (
		SELECT ST_GeogFromText($1) AS geom
	)
	SELECT ST_Y(location_geo::geometry) AS lat,
	       ST_X(location_geo::geometry) AS lon
	FROM safety_assets, route
	WHERE location_geo IS NOT NULL
	  AND asset_type ILIKE 'Emergency Phone%'
	  AND ST_DWithin(location_geo, route.geom, $2)
`

const withinBoundsQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM campus_boundary
		WHERE ST_Contains(geometry::geometry, ST_SetSRID(ST_MakePoint($1, $2), 4326))
	)
`

const allAssetsQuery = `
	SELECT ST_Y(location_geo::geometry), ST_X(location_geo::geometry)
	FROM safety_assets
	WHERE location_geo IS NOT NULL
`

const allIncidentLocationsQuery = `
	SELECT ST_Y(location_geo::geometry), ST_X(location_geo::geometry)
	FROM crime_incidents
	WHERE location_geo IS NOT NULL
	UNION ALL
	SELECT ST_Y(location_geo::geometry), ST_X(location_geo::geometry)
	FROM cpd_incidents
	WHERE location_geo IS NOT NULL
`

// LineStringWKT renders a geometry as WKT in lon/lat order.
func LineStringWKT(route spatial.Geometry) string {
	parts := make([]string, len(route))
	for i, c := range route {
		parts[i] = strconv.FormatFloat(c.Lon, 'f', -1, 64) + " " + strconv.FormatFloat(c.Lat, 'f', -1, 64)
	}
	return "LINESTRING(" + strings.Join(parts, ", ") + ")"
}

func (s *Store) cutoff(daysBack int) time.Time {
	return s.now().UTC().Add(-time.Duration(daysBack) * 24 * time.Hour)
}

// FetchIncidents returns incidents from all incident sources within radiusM
// of route that occurred in the last daysBack days.
func (s *Store) FetchIncidents(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) ([]safety.Incident, error) {
	if err := safety.ValidateQuery(route, radiusM, daysBack); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, incidentsQuery, LineStringWKT(route), s.cutoff(daysBack), radiusM)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	incidents := []safety.Incident{}
	for rows.Next() {
		var (
			inc       safety.Incident
			rawType   string
			latitude  float64
			longitude float64
		)
		if err := rows.Scan(&inc.ID, &rawType, &inc.OccurredAt, &inc.Description, &latitude, &longitude); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Type = safety.NormalizeIncidentType(rawType)
		inc.Location = spatial.Coordinate{Lat: latitude, Lon: longitude}
		inc.Severity = safety.SeverityMedium
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read incidents: %w", err)
	}
	return incidents, nil
}

// FetchPatrolStopCount counts traffic stops near route in the last daysBack days.
func (s *Store) FetchPatrolStopCount(ctx context.Context, route spatial.Geometry, radiusM float64, daysBack int) (int, error) {
	if err := safety.ValidateQuery(route, radiusM, daysBack); err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRow(ctx, patrolStopsQuery, LineStringWKT(route), s.cutoff(daysBack), radiusM).Scan(&count); err != nil {
		return 0, fmt.Errorf("count patrol stops: %w", err)
	}
	return int(count), nil
}

// FetchEmergencyPhones returns emergency phone locations within radiusM of route.
func (s *Store) FetchEmergencyPhones(ctx context.Context, route spatial.Geometry, radiusM float64) ([]spatial.Coordinate, error) {
	if err := safety.ValidateQuery(route, radiusM, 0); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, emergencyPhonesQuery, LineStringWKT(route), radiusM)
	if err != nil {
		return nil, fmt.Errorf("query emergency phones: %w", err)
	}
	return scanCoordinates(rows)
}

// IsWithinBounds reports whether point lies inside the campus boundary.
func (s *Store) IsWithinBounds(ctx context.Context, point spatial.Coordinate) (bool, error) {
	if err := point.Validate(); err != nil {
		return false, err
	}
	var inside bool
	if err := s.db.QueryRow(ctx, withinBoundsQuery, point.Lon, point.Lat).Scan(&inside); err != nil {
		return false, fmt.Errorf("check campus boundary: %w", err)
	}
	return inside, nil
}

// AllSafetyAssets returns every safety asset location, for graph builds.
func (s *Store) AllSafetyAssets(ctx context.Context) ([]spatial.Coordinate, error) {
	rows, err := s.db.Query(ctx, allAssetsQuery)
	if err != nil {
		return nil, fmt.Errorf("query safety assets: %w", err)
	}
	return scanCoordinates(rows)
}

// AllIncidentLocations returns every geocoded incident location, for graph builds.
func (s *Store) AllIncidentLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	rows, err := s.db.Query(ctx, allIncidentLocationsQuery)
	if err != nil {
		return nil, fmt.Errorf("query incident locations: %w", err)
	}
	return scanCoordinates(rows)
}

func scanCoordinates(rows pgx.Rows) ([]spatial.Coordinate, error) {
	defer rows.Close()
	out := []spatial.Coordinate{}
	for rows.Next() {
		var c spatial.Coordinate
		if err := rows.Scan(&c.Lat, &c.Lon); err != nil {
			return nil, fmt.Errorf("scan coordinate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read coordinates: %w", err)
	}
	return out, nil
}
