package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/saferoute/saferoute/internal/spatial"
)

const instrumentationName = "github.com/saferoute/saferoute/internal/graph"

// ErrBuildInProgress is returned when a build is requested while another build
// on the same Builder has not finished.
var ErrBuildInProgress = errors.New("graph build already in progress")

// FactSource supplies every safety asset and incident location for an extent.
type FactSource interface {
	AllSafetyAssets(ctx context.Context) ([]spatial.Coordinate, error)
	AllIncidentLocations(ctx context.Context) ([]spatial.Coordinate, error)
}

// BuildConfig holds the edge weighting constants.
type BuildConfig struct {
	// AssetBenefitRadius is the distance from an edge midpoint within which a
	// safety asset discounts the edge (default: 50m).
	AssetBenefitRadius float64 `yaml:"asset_benefit_radius_m"`

	// IncidentPenaltyRadius is the distance from an edge midpoint within which
	// incidents penalize the edge (default: 100m).
	IncidentPenaltyRadius float64 `yaml:"incident_penalty_radius_m"`

	// AssetDiscount is the flat multiplier applied when any asset is nearby (default: 0.8).
	AssetDiscount float64 `yaml:"asset_discount"`

	// IncidentPenaltyBase is the multiplier applied for the first nearby incident (default: 1.2).
	IncidentPenaltyBase float64 `yaml:"incident_penalty_base"`

	// IncidentPenaltyStep is added per nearby incident up to the cap (default: 0.05).
	IncidentPenaltyStep float64 `yaml:"incident_penalty_step"`

	// IncidentPenaltyCap bounds the incident count used in the penalty (default: 10).
	IncidentPenaltyCap int `yaml:"incident_penalty_cap"`
}

// DefaultBuildConfig returns the standard weighting constants.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		AssetBenefitRadius:    50,
		IncidentPenaltyRadius: 100,
		AssetDiscount:         0.8,
		IncidentPenaltyBase:   1.2,
		IncidentPenaltyStep:   0.05,
		IncidentPenaltyCap:    10,
	}
}

func (c BuildConfig) withDefaults() BuildConfig {
	d := DefaultBuildConfig()
	if c.AssetBenefitRadius <= 0 {
		c.AssetBenefitRadius = d.AssetBenefitRadius
	}
	if c.IncidentPenaltyRadius <= 0 {
		c.IncidentPenaltyRadius = d.IncidentPenaltyRadius
	}
	if c.AssetDiscount <= 0 {
		c.AssetDiscount = d.AssetDiscount
	}
	if c.IncidentPenaltyBase <= 0 {
		c.IncidentPenaltyBase = d.IncidentPenaltyBase
	}
	if c.IncidentPenaltyStep < 0 {
		c.IncidentPenaltyStep = d.IncidentPenaltyStep
	}
	if c.IncidentPenaltyCap <= 0 {
		c.IncidentPenaltyCap = d.IncidentPenaltyCap
	}
	return c
}

// RiskFactor returns the edge multiplier for the given nearby counts.
// Assets apply a flat discount; incidents apply a capped, count-scaled penalty.
func (c BuildConfig) RiskFactor(assets, incidents int) float64 {
	factor := 1.0
	if assets > 0 {
		factor *= c.AssetDiscount
	}
	if incidents > 0 {
		factor *= c.IncidentPenaltyBase + c.IncidentPenaltyStep*float64(min(incidents, c.IncidentPenaltyCap))
	}
	return factor
}

// BuilderConfig holds configuration for a Builder.
type BuilderConfig struct {
	Weights BuildConfig
	Facts   FactSource
	Logger  zerolog.Logger
}

// Builder constructs safety-weighted graphs. A Builder runs at most one build
// at a time.
type Builder struct {
	weights BuildConfig
	facts   FactSource
	logger  zerolog.Logger

	mu            sync.Mutex
	buildDuration metric.Float64Histogram
}

// BuildStats describes a completed build.
type BuildStats struct {
	Extent       string
	Assets       int
	Incidents    int
	DroppedLinks int
	Duration     time.Duration
	Stats
}

// NewBuilder creates a graph builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	b := &Builder{
		weights: cfg.Weights.withDefaults(),
		facts:   cfg.Facts,
		logger:  cfg.Logger,
	}
	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"graph.build.duration",
		metric.WithDescription("Duration of safety graph builds in seconds"),
		metric.WithUnit("s"),
	)
	if err == nil {
		b.buildDuration = hist
	}
	return b
}

// Weights returns the effective weighting constants.
func (b *Builder) Weights() BuildConfig {
	return b.weights
}

// Build projects the raw network, fetches all assets and incidents once and
// returns a graph whose edges carry distance and safety costs.
func (b *Builder) Build(ctx context.Context, extent string, net *Network) (*Graph, BuildStats, error) {
	if !b.mu.TryLock() {
		return nil, BuildStats{}, ErrBuildInProgress
	}
	defer b.mu.Unlock()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "graph.Build")
	defer span.End()
	span.SetAttributes(attribute.String("graph.extent", extent))

	start := time.Now()
	stats := BuildStats{Extent: extent}

	if net == nil || len(net.Nodes) == 0 {
		span.SetStatus(codes.Error, ErrEmptyGraph.Error())
		return nil, stats, ErrEmptyGraph
	}

	assets, incidents, err := b.fetchFacts(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetching facts")
		return nil, stats, err
	}
	stats.Assets, stats.Incidents = len(assets), len(incidents)

	proj := spatial.ProjectionForExtent(net.Coordinates())
	nodes := make([]Node, len(net.Nodes))
	points := make(map[NodeID]Node, len(net.Nodes))
	for i, n := range net.Nodes {
		nodes[i] = Node{ID: n.ID, Coord: n.Coord, Point: proj.Project(n.Coord)}
		points[n.ID] = nodes[i]
	}

	edges := make([]Edge, 0, len(net.Links))
	for _, l := range net.Links {
		from, okFrom := points[l.Source]
		to, okTo := points[l.Target]
		if !okFrom || !okTo {
			stats.DroppedLinks++
			continue
		}
		length := l.Length
		if length <= 0 {
			length = from.Point.Sub(to.Point).Norm()
		}
		edges = append(edges, Edge{From: l.Source, To: l.Target, DistanceCost: length})
	}

	b.weigh(proj, points, edges, assets, incidents)

	g, err := New(extent, proj.Origin(), nodes, edges)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembling graph")
		return nil, stats, err
	}
	g.BuiltAt = time.Now().UTC()

	stats.Stats = g.Stats()
	stats.Duration = time.Since(start)
	if b.buildDuration != nil {
		b.buildDuration.Record(ctx, stats.Duration.Seconds(),
			metric.WithAttributes(attribute.String("graph.extent", extent)))
	}
	if stats.DroppedLinks > 0 {
		b.logger.Warn().
			Str("extent", extent).
			Int("dropped_links", stats.DroppedLinks).
			Msg("dropped links referencing unknown nodes")
	}
	b.logger.Info().
		Str("extent", extent).
		Int("nodes", stats.Nodes).
		Int("edges", stats.Edges).
		Int("assets", stats.Assets).
		Int("incidents", stats.Incidents).
		Int("penalized_edges", stats.PenalizedEdges).
		Int("discounted_edges", stats.DiscountedEdges).
		Dur("duration", stats.Duration).
		Msg("built safety graph")

	return g, stats, nil
}

// Rescore returns a copy of g with safety costs recomputed from current facts.
// Distance costs and topology are unchanged and g itself is not modified, so
// searches may keep running against it.
func (b *Builder) Rescore(ctx context.Context, g *Graph) (*Graph, BuildStats, error) {
	if !b.mu.TryLock() {
		return nil, BuildStats{}, ErrBuildInProgress
	}
	defer b.mu.Unlock()

	start := time.Now()
	stats := BuildStats{Extent: g.Extent}

	assets, incidents, err := b.fetchFacts(ctx)
	if err != nil {
		return nil, stats, err
	}
	stats.Assets, stats.Incidents = len(assets), len(incidents)

	points := make(map[NodeID]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		points[n.ID] = n
	}
	edges := make([]Edge, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = Edge{From: e.From, To: e.To, DistanceCost: e.DistanceCost}
	}
	b.weigh(g.proj, points, edges, assets, incidents)

	out, err := New(g.Extent, g.Origin, g.Nodes, edges)
	if err != nil {
		return nil, stats, err
	}
	out.BuiltAt = time.Now().UTC()
	stats.Stats = out.Stats()
	stats.Duration = time.Since(start)
	return out, stats, nil
}

func (b *Builder) fetchFacts(ctx context.Context) (assets, incidents []spatial.Coordinate, err error) {
	if b.facts == nil {
		return nil, nil, nil
	}
	assets, err = b.facts.AllSafetyAssets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching safety assets: %w", err)
	}
	incidents, err = b.facts.AllIncidentLocations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching incident locations: %w", err)
	}
	return assets, incidents, nil
}

// weigh sets RiskFactor and SafetyCost on every edge from midpoint proximity counts.
func (b *Builder) weigh(proj spatial.Projection, nodes map[NodeID]Node, edges []Edge, assets, incidents []spatial.Coordinate) {
	assetIdx := spatial.NewGridIndex(b.weights.AssetBenefitRadius)
	for i, c := range assets {
		assetIdx.Insert(int64(i), proj.Project(c))
	}
	incidentIdx := spatial.NewGridIndex(b.weights.IncidentPenaltyRadius)
	for i, c := range incidents {
		incidentIdx.Insert(int64(i), proj.Project(c))
	}

	for i := range edges {
		e := &edges[i]
		mid := spatial.Midpoint(nodes[e.From].Point, nodes[e.To].Point)
		e.Assets = assetIdx.CountWithin(mid, b.weights.AssetBenefitRadius)
		e.Incidents = incidentIdx.CountWithin(mid, b.weights.IncidentPenaltyRadius)
		e.RiskFactor = b.weights.RiskFactor(e.Assets, e.Incidents)
		e.SafetyCost = e.DistanceCost * e.RiskFactor
	}
}
