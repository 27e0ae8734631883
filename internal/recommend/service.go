package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

const instrumentationName = "github.com/saferoute/saferoute/internal/recommend"

// DefaultFactConcurrency bounds parallel per-route fact lookups.
const DefaultFactConcurrency = 4

// Config holds the dependencies and tuning of a Service.
type Config struct {
	// Candidates supplies provider routes, normally a caching routing.Service.
	Candidates routing.Provider

	// Facts answers spatial fact queries and the campus bounds check.
	Facts safety.FactStore

	Analyzer *safety.Analyzer
	Ranker   *ranking.Ranker

	// Flags is optional.
	Flags Flags

	// Graphs reloads the persisted graph for Extent (optional).
	Graphs GraphLoader
	Extent string

	Query           safety.FactQuery
	FactConcurrency int

	// WalkingSpeed in m/s for graph route durations (default: 1.4).
	WalkingSpeed float64

	// DefaultSource is used when a request names none (default: provider).
	DefaultSource Source

	// Location is the campus time zone for "current" and zone-less
	// timestamps (default: UTC).
	Location *time.Location

	// Now is the clock (default: time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// Service runs the recommendation pipeline. The loaded graph is swapped
// whole on reload, so searches never observe a partially built graph.
type Service struct {
	candidates      routing.Provider
	facts           safety.FactStore
	analyzer        *safety.Analyzer
	ranker          *ranking.Ranker
	flags           Flags
	graphs          GraphLoader
	extent          string
	query           safety.FactQuery
	factConcurrency int
	walkingSpeed    float64
	defaultSource   Source
	location        *time.Location
	now             func() time.Time
	logger          zerolog.Logger

	router    atomic.Pointer[graph.Router]
	riskScore metric.Float64Histogram
}

// NewService creates a recommendation service.
func NewService(cfg Config) *Service {
	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = safety.NewAnalyzer(safety.DefaultScoringConfig())
	}
	ranker := cfg.Ranker
	if ranker == nil {
		w := ranking.DefaultWeights()
		scoring := analyzer.Config()
		w.NightStartHour, w.NightEndHour = scoring.NightStartHour, scoring.NightEndHour
		ranker = ranking.NewRanker(w)
	}
	concurrency := cfg.FactConcurrency
	if concurrency <= 0 {
		concurrency = DefaultFactConcurrency
	}
	source := cfg.DefaultSource
	if !source.Valid() {
		source = SourceProvider
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		candidates:      cfg.Candidates,
		facts:           cfg.Facts,
		analyzer:        analyzer,
		ranker:          ranker,
		flags:           cfg.Flags,
		graphs:          cfg.Graphs,
		extent:          cfg.Extent,
		query:           cfg.Query.WithDefaults(),
		factConcurrency: concurrency,
		walkingSpeed:    cfg.WalkingSpeed,
		defaultSource:   source,
		location:        loc,
		now:             now,
		logger:          cfg.Logger,
	}

	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"recommend.route.risk_score",
		metric.WithDescription("Risk score of each analyzed candidate route"),
		metric.WithUnit("1"),
	)
	if err == nil {
		s.riskScore = hist
	}
	return s
}

// Recommend validates the request, gathers candidates and facts, and returns
// the ranked routes. Any route that cannot be analyzed fails the request.
func (s *Service) Recommend(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "recommend.Recommend")
	defer span.End()

	fail := func(err error, msg string) (*Response, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return nil, err
	}

	req, err := s.normalize(req)
	if err != nil {
		return fail(err, "invalid request")
	}
	evaluatedAt, err := ParseRequestTime(req.Time, s.now(), s.location)
	if err != nil {
		return fail(err, "invalid time")
	}
	span.SetAttributes(
		attribute.String("recommend.source", string(req.Source)),
		attribute.String("recommend.priority", string(req.Priority)),
		attribute.String("recommend.user_mode", string(req.UserMode)),
	)

	for _, p := range []spatial.Coordinate{req.Origin, req.Destination} {
		inside, err := s.facts.IsWithinBounds(ctx, p)
		if err != nil {
			return fail(fmt.Errorf("checking campus bounds: %w", err), "bounds check")
		}
		if !inside {
			return fail(ErrOutOfBounds, "out of bounds")
		}
	}

	routes, err := s.fetchCandidates(ctx, req)
	if err != nil {
		return fail(err, "fetching candidates")
	}

	analyzer := s.analyzerFor(ctx)
	analyses, bundles, err := s.analyzeAll(ctx, analyzer, routes, req.UserMode, evaluatedAt)
	if err != nil {
		return fail(err, "analyzing routes")
	}

	ranked, err := s.ranker.RankCandidates(routes, analyses, req.Priority, evaluatedAt.Hour())
	if err != nil {
		return fail(err, "ranking routes")
	}

	var incidents []safety.Incident
	var phones []spatial.Coordinate
	for _, b := range bundles {
		incidents = append(incidents, b.Incidents...)
		phones = append(phones, b.PhoneLocations...)
	}

	primary := ranked[0]
	resp := &Response{
		RequestID: uuid.NewString(),
		Recommendation: Recommendation{
			Routes:                ranked,
			PrimaryRecommendation: primary,
			Explanation:           primary.Explanation,
			Comparison:            ranking.Comparison(ranked),
		},
		Incidents:       ranking.DedupeIncidents(incidents),
		EmergencyPhones: ranking.DedupePhones(phones),
		EvaluatedAt:     evaluatedAt,
		Priority:        s.ranker.EffectivePriority(req.Priority, evaluatedAt.Hour()),
		ScoringModel:    analyzer.Config().Model,
		Source:          req.Source,
	}

	span.SetAttributes(
		attribute.Int("recommend.candidates", len(routes)),
		attribute.String("recommend.primary_route", primary.Route.ID),
		attribute.Float64("recommend.primary_risk", primary.SafetyAnalysis.RiskScore),
	)
	s.logger.Info().
		Str("request_id", resp.RequestID).
		Str("source", string(req.Source)).
		Str("priority", string(resp.Priority)).
		Int("candidates", len(routes)).
		Str("primary_route", primary.Route.ID).
		Float64("risk_score", primary.SafetyAnalysis.RiskScore).
		Msg("recommended route")

	return resp, nil
}

func (s *Service) normalize(req Request) (Request, error) {
	if err := req.Origin.Validate(); err != nil {
		return req, fmt.Errorf("%w: origin: %v", ErrInvalidRequest, err)
	}
	if err := req.Destination.Validate(); err != nil {
		return req, fmt.Errorf("%w: destination: %v", ErrInvalidRequest, err)
	}
	if req.UserMode == "" {
		req.UserMode = safety.UserModeStudent
	}
	if !req.UserMode.Valid() {
		return req, fmt.Errorf("%w: unknown user mode %q", ErrInvalidRequest, req.UserMode)
	}
	if req.Priority == "" {
		req.Priority = ranking.PrioritySafety
	}
	if !req.Priority.Valid() {
		return req, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}
	if req.Source == "" {
		req.Source = s.defaultSource
	}
	if !req.Source.Valid() {
		return req, fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, req.Source)
	}
	return req, nil
}

// ParseRequestTime interprets "current" (or empty) as now in loc. Other
// values must be RFC 3339; a timestamp without an offset is read in loc.
func ParseRequestTime(value string, now time.Time, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "current") {
		return now.In(loc), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}

func (s *Service) analyzerFor(ctx context.Context) *safety.Analyzer {
	if s.flags == nil {
		return s.analyzer
	}
	raw := s.flags.ScoringModel(ctx)
	if raw == "" {
		return s.analyzer
	}
	m, err := safety.ParseModel(raw)
	if err != nil {
		s.logger.Warn().Str("scoring_model", raw).Msg("ignoring unknown scoring model flag")
		return s.analyzer
	}
	return s.analyzer.WithModel(m)
}

// fetchCandidates collects routes from the requested source. With both
// sources, one failing is tolerated as long as the other returns routes.
func (s *Service) fetchCandidates(ctx context.Context, req Request) ([]routing.Route, error) {
	dreq := routing.DirectionsRequest{
		Origin:       req.Origin,
		Destination:  req.Destination,
		Profile:      routing.ProfileWalk,
		ForceRefresh: req.ForceRefresh,
	}

	switch req.Source {
	case SourceGraph:
		return s.graphCandidates(ctx, dreq)
	case SourceBoth:
		provider, perr := s.providerCandidates(ctx, dreq)
		fromGraph, gerr := s.graphCandidates(ctx, dreq)
		if perr != nil && gerr != nil {
			return nil, perr
		}
		if perr != nil {
			s.logger.Warn().Err(perr).Msg("provider candidates unavailable, using graph routes only")
		}
		if gerr != nil {
			s.logger.Warn().Err(gerr).Msg("graph candidates unavailable, using provider routes only")
		}
		// provider may alias a cached response; never append into it.
		merged := make([]routing.Route, 0, len(provider)+len(fromGraph))
		merged = append(merged, provider...)
		return append(merged, fromGraph...), nil
	default:
		return s.providerCandidates(ctx, dreq)
	}
}

func (s *Service) providerCandidates(ctx context.Context, req routing.DirectionsRequest) ([]routing.Route, error) {
	if s.candidates == nil {
		return nil, routing.Unavailable("none", routing.CodeNotConfigured, "no routing provider configured", nil)
	}
	resp, err := s.candidates.GetDirections(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

func (s *Service) graphCandidates(ctx context.Context, req routing.DirectionsRequest) ([]routing.Route, error) {
	r, err := s.currentRouter(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := graph.NewCandidateSource(r, s.walkingSpeed).GetDirections(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

func (s *Service) analyzeAll(ctx context.Context, analyzer *safety.Analyzer, routes []routing.Route, mode safety.UserMode, now time.Time) ([]safety.Analysis, []safety.FactBundle, error) {
	analyses := make([]safety.Analysis, len(routes))
	bundles := make([]safety.FactBundle, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.factConcurrency)
	for i := range routes {
		g.Go(func() error {
			route := &routes[i]
			facts, err := safety.CollectFacts(gctx, s.facts, route.Geometry, s.query,
				s.logger.With().Str("route_id", route.ID).Logger())
			if err != nil {
				return fmt.Errorf("route %s: %w", route.ID, err)
			}
			bundles[i] = facts
			analyses[i] = analyzer.AnalyzeGeometry(route.Geometry, facts, mode, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if s.riskScore != nil {
		for i := range analyses {
			s.riskScore.Record(ctx, analyses[i].RiskScore, metric.WithAttributes(
				attribute.String("scoring_model", string(analyses[i].ScoringModel)),
				attribute.String("route_source", routes[i].Source),
			))
		}
	}
	return analyses, bundles, nil
}

func (s *Service) currentRouter(ctx context.Context) (*graph.Router, error) {
	if s.flags != nil && s.flags.IsGraphRoutingDisabled(ctx) {
		return nil, ErrGraphRoutingDisabled
	}
	r := s.router.Load()
	if r == nil {
		return nil, ErrGraphNotLoaded
	}
	return r, nil
}

// GraphRoute returns the cheapest path between two points under cost.
func (s *Service) GraphRoute(ctx context.Context, origin, destination spatial.Coordinate, cost graph.CostFunction) (*GraphRoute, error) {
	if !cost.Valid() {
		return nil, fmt.Errorf("%w: unknown cost function %q", ErrInvalidRequest, cost)
	}
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("%w: origin: %v", ErrInvalidRequest, err)
	}
	if err := destination.Validate(); err != nil {
		return nil, fmt.Errorf("%w: destination: %v", ErrInvalidRequest, err)
	}
	r, err := s.currentRouter(ctx)
	if err != nil {
		return nil, err
	}
	path, coords, err := r.Route(origin, destination, cost)
	if err != nil {
		return nil, err
	}
	return &GraphRoute{
		Extent:         r.Graph().Extent,
		Cost:           cost,
		Coordinates:    coords,
		DistanceMeters: path.DistanceCost,
		SafetyCost:     path.SafetyCost,
	}, nil
}

// SetGraph replaces the loaded graph. A nil graph unloads it.
func (s *Service) SetGraph(g *graph.Graph) {
	if g == nil {
		s.router.Store(nil)
		return
	}
	s.router.Store(graph.NewRouter(g))
}

// ReloadGraph loads the configured extent from the graph store and swaps it in.
func (s *Service) ReloadGraph(ctx context.Context) (GraphStatus, error) {
	if s.graphs == nil {
		return GraphStatus{}, errors.New("no graph store configured")
	}
	g, err := s.graphs.Load(ctx, s.extent)
	if err != nil {
		return GraphStatus{}, fmt.Errorf("loading graph %q: %w", s.extent, err)
	}
	s.SetGraph(g)

	status := s.GraphStatus()
	s.logger.Info().
		Str("extent", status.Extent).
		Int("nodes", status.Stats.Nodes).
		Int("edges", status.Stats.Edges).
		Msg("reloaded safety graph")
	return status, nil
}

// GraphStatus describes the currently loaded graph.
func (s *Service) GraphStatus() GraphStatus {
	r := s.router.Load()
	if r == nil {
		return GraphStatus{}
	}
	g := r.Graph()
	return GraphStatus{
		Loaded:  true,
		Extent:  g.Extent,
		BuiltAt: g.BuiltAt,
		Stats:   g.Stats(),
	}
}

// GraphLoaded reports whether a graph is available for routing.
func (s *Service) GraphLoaded() bool {
	return s.router.Load() != nil
}
