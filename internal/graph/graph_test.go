package graph

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/spatial"
)

// stubFacts is an in-memory FactSource for builder tests.
type stubFacts struct {
	assets    []spatial.Coordinate
	incidents []spatial.Coordinate
	err       error
	entered   chan struct{}
	block     chan struct{}
}

func (s *stubFacts) AllSafetyAssets(ctx context.Context) ([]spatial.Coordinate, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.assets, nil
}

func (s *stubFacts) AllIncidentLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	return s.incidents, nil
}

// offset returns a coordinate dx meters east and dy meters north of the base.
func offset(dx, dy float64) spatial.Coordinate {
	proj := spatial.NewProjection(spatial.Coordinate{Lat: 41.7886, Lon: -87.5987})
	return proj.Unproject(r2.Point{X: dx, Y: dy})
}

// squareNetwork is a 200m square A-B-C-D with a diagonal-free loop:
//
//	D(4) ---- C(3)
//	 |         |
//	A(1) ---- B(2)
func squareNetwork() *Network {
	return &Network{
		Nodes: []NetworkNode{
			{ID: 1, Coord: offset(0, 0)},
			{ID: 2, Coord: offset(200, 0)},
			{ID: 3, Coord: offset(200, 200)},
			{ID: 4, Coord: offset(0, 200)},
		},
		Links: []NetworkLink{
			{Source: 1, Target: 2, Length: 200},
			{Source: 2, Target: 3, Length: 200},
			{Source: 3, Target: 4}, // length derived from geometry
			{Source: 4, Target: 1, Length: 200},
		},
	}
}

func TestBuildConfig_RiskFactor(t *testing.T) {
	cfg := DefaultBuildConfig()

	tests := []struct {
		name      string
		assets    int
		incidents int
		want      float64
	}{
		{"no facts", 0, 0, 1.0},
		{"asset only", 3, 0, 0.8},
		{"one incident", 0, 1, 1.25},
		{"four incidents", 0, 4, 1.4},
		{"capped at ten", 0, 25, 1.7},
		{"asset and incidents", 1, 2, 0.8 * 1.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cfg.RiskFactor(tt.assets, tt.incidents), 1e-9)
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	facts := &stubFacts{
		// Near the midpoint of A-B.
		incidents: []spatial.Coordinate{offset(100, 10), offset(95, -20), offset(100, 5)},
		// Near the midpoint of A-D.
		assets: []spatial.Coordinate{offset(10, 100)},
	}
	b := NewBuilder(BuilderConfig{Facts: facts, Logger: zerolog.Nop()})

	g, stats, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 4, stats.Edges)
	assert.Equal(t, 3, stats.Incidents)
	assert.Equal(t, 1, stats.Assets)
	assert.Equal(t, 1, stats.PenalizedEdges)
	assert.Equal(t, 1, stats.DiscountedEdges)
	assert.False(t, g.BuiltAt.IsZero())

	for _, e := range g.Edges {
		assert.InDelta(t, e.DistanceCost*e.RiskFactor, e.SafetyCost, 1e-9)
		switch {
		case e.From == 1 && e.To == 2:
			assert.Equal(t, 3, e.Incidents)
			assert.InDelta(t, 1.35, e.RiskFactor, 1e-9)
		case e.From == 4 && e.To == 1:
			assert.InDelta(t, 0.8, e.RiskFactor, 1e-9)
		case e.From == 3 && e.To == 4:
			assert.InDelta(t, 200, e.DistanceCost, 0.5)
			assert.InDelta(t, 1.0, e.RiskFactor, 1e-9)
		}
	}
}

func TestBuilder_BuildWithoutFacts(t *testing.T) {
	b := NewBuilder(BuilderConfig{Facts: &stubFacts{}, Logger: zerolog.Nop()})

	g, _, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)
	for _, e := range g.Edges {
		assert.Equal(t, 1.0, e.RiskFactor)
		assert.Equal(t, e.DistanceCost, e.SafetyCost)
	}
}

func TestBuilder_BuildErrors(t *testing.T) {
	b := NewBuilder(BuilderConfig{Facts: &stubFacts{err: errors.New("db down")}, Logger: zerolog.Nop()})

	_, _, err := b.Build(context.Background(), "campus", squareNetwork())
	assert.ErrorContains(t, err, "db down")

	_, _, err = b.Build(context.Background(), "campus", &Network{})
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestBuilder_SingleFlight(t *testing.T) {
	facts := &stubFacts{entered: make(chan struct{}), block: make(chan struct{})}
	b := NewBuilder(BuilderConfig{Facts: facts, Logger: zerolog.Nop()})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = b.Build(context.Background(), "campus", squareNetwork())
	}()

	// The first build holds the lock while it waits on facts.
	<-facts.entered

	_, _, err := b.Build(context.Background(), "campus", squareNetwork())
	assert.ErrorIs(t, err, ErrBuildInProgress)

	close(facts.block)
	wg.Wait()
}

func TestBuilder_Rescore(t *testing.T) {
	facts := &stubFacts{}
	b := NewBuilder(BuilderConfig{Facts: facts, Logger: zerolog.Nop()})
	g, _, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)

	facts.incidents = []spatial.Coordinate{offset(200, 100)}
	rescored, stats, err := b.Rescore(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PenalizedEdges)

	// The original graph is untouched.
	for _, e := range g.Edges {
		assert.Equal(t, 1.0, e.RiskFactor)
	}
	assert.InDelta(t, 1.25, rescored.Stats().MaxRiskFactor, 1e-9)
}

func TestRouter_ShortestPathPrefersSaferDetour(t *testing.T) {
	facts := &stubFacts{
		incidents: []spatial.Coordinate{
			offset(100, 0), offset(100, 0), offset(100, 0), offset(100, 0),
			offset(100, 0), offset(100, 0), offset(100, 0), offset(100, 0),
			offset(100, 0), offset(100, 0), offset(100, 0), offset(100, 0),
		},
	}
	// The direct edge is capped at 1.7x (340); the detour via node 5 stays
	// clear of the incidents and costs 260 either way.
	net := &Network{
		Nodes: []NetworkNode{
			{ID: 1, Coord: offset(0, 0)},
			{ID: 2, Coord: offset(200, 0)},
			{ID: 5, Coord: offset(100, 200)},
		},
		Links: []NetworkLink{
			{Source: 1, Target: 2, Length: 200},
			{Source: 1, Target: 5, Length: 130},
			{Source: 5, Target: 2, Length: 130},
		},
	}
	b := NewBuilder(BuilderConfig{Facts: facts, Logger: zerolog.Nop()})
	g, _, err := b.Build(context.Background(), "campus", net)
	require.NoError(t, err)
	r := NewRouter(g)

	fastest, err := r.ShortestPath(1, 2, CostDistance)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{1, 2}, fastest.Nodes)
	assert.InDelta(t, 200, fastest.DistanceCost, 1e-9)

	safest, err := r.ShortestPath(1, 2, CostSafety)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{1, 5, 2}, safest.Nodes)
	assert.InDelta(t, 260, safest.DistanceCost, 1e-9)
	assert.InDelta(t, 260, safest.SafetyCost, 1e-9)
}

func TestRouter_NoPath(t *testing.T) {
	g, err := New("campus", offset(0, 0), []Node{
		{ID: 1, Coord: offset(0, 0)},
		{ID: 2, Coord: offset(50, 0)},
		{ID: 3, Coord: offset(500, 0)},
	}, []Edge{{From: 1, To: 2, DistanceCost: 50}})
	require.NoError(t, err)
	r := NewRouter(g)

	path, err := r.ShortestPath(1, 3, CostDistance)
	assert.ErrorIs(t, err, ErrNoPath)
	assert.True(t, path.Empty())

	_, err = r.FindRoute(offset(0, 0), offset(510, 0), CostSafety)
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = r.ShortestPath(1, 99, CostDistance)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestRouter_SameNode(t *testing.T) {
	g, err := New("campus", offset(0, 0), []Node{{ID: 7, Coord: offset(0, 0)}}, nil)
	require.NoError(t, err)

	path, err := NewRouter(g).ShortestPath(7, 7, CostSafety)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{7}, path.Nodes)
	assert.Zero(t, path.DistanceCost)
}

func TestRouter_NearestNode(t *testing.T) {
	b := NewBuilder(BuilderConfig{Logger: zerolog.Nop()})
	g, _, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)
	r := NewRouter(g)

	id, err := r.NearestNode(offset(190, 15))
	require.NoError(t, err)
	assert.Equal(t, NodeID(2), id)

	id, err = r.NearestNode(offset(-40, 230))
	require.NoError(t, err)
	assert.Equal(t, NodeID(4), id)

	_, err = r.NearestNode(spatial.Coordinate{Lat: 95})
	assert.ErrorIs(t, err, spatial.ErrInvalidCoordinate)

	empty, err := New("empty", offset(0, 0), nil, nil)
	require.NoError(t, err)
	_, err = NewRouter(empty).NearestNode(offset(0, 0))
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestRouter_FindRoute(t *testing.T) {
	b := NewBuilder(BuilderConfig{Logger: zerolog.Nop()})
	g, _, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)
	r := NewRouter(g)

	coords, err := r.FindRoute(offset(5, 5), offset(195, 190), CostDistance)
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.InDelta(t, offset(0, 0).Lat, coords[0].Lat, 1e-9)
	assert.InDelta(t, offset(200, 200).Lat, coords[2].Lat, 1e-9)

	assert.Empty(t, r.PathToCoordinates(Path{}))
}

func TestRouter_NearestNode_TieBreaksToLowestID(t *testing.T) {
	origin := offset(0, 0)
	g, err := New("tie", origin, []Node{
		{ID: 9, Coord: offset(-50, 0), Point: r2.Point{X: -50}},
		{ID: 3, Coord: offset(50, 0), Point: r2.Point{X: 50}},
	}, nil)
	require.NoError(t, err)
	r := NewRouter(g)

	first, err := r.NearestNode(origin)
	require.NoError(t, err)
	second, err := r.NearestNode(origin)
	require.NoError(t, err)
	assert.Equal(t, NodeID(3), first)
	assert.Equal(t, first, second)
}

// equalSquare is the square network with exact planar points and equal edge
// costs, so both ways around from 1 to 3 cost 400.
func equalSquare(t *testing.T) *Graph {
	t.Helper()
	g, err := New("square", offset(0, 0), []Node{
		{ID: 1, Coord: offset(0, 0)},
		{ID: 2, Coord: offset(200, 0), Point: r2.Point{X: 200}},
		{ID: 3, Coord: offset(200, 200), Point: r2.Point{X: 200, Y: 200}},
		{ID: 4, Coord: offset(0, 200), Point: r2.Point{Y: 200}},
	}, []Edge{
		{From: 4, To: 3, DistanceCost: 200},
		{From: 1, To: 4, DistanceCost: 200},
		{From: 2, To: 3, DistanceCost: 200},
		{From: 1, To: 2, DistanceCost: 200},
	})
	require.NoError(t, err)
	return g
}

func TestRouter_ShortestPath_EqualCostTie(t *testing.T) {
	r := NewRouter(equalSquare(t))

	// Node 2 expands before node 4 at equal cost, so 3 is reached through 2.
	for range 5 {
		path, err := r.ShortestPath(1, 3, CostDistance)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{1, 2, 3}, path.Nodes)
		assert.InDelta(t, 400, path.DistanceCost, 1e-9)
	}

	path, err := r.ShortestPath(3, 1, CostDistance)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{3, 2, 1}, path.Nodes)
}

func TestNew_RejectsBadEdges(t *testing.T) {
	_, err := New("x", offset(0, 0), []Node{{ID: 1, Coord: offset(0, 0)}}, []Edge{{From: 1, To: 2, DistanceCost: 1}})
	assert.ErrorIs(t, err, ErrInvalidEdge)

	_, err = New("x", offset(0, 0), []Node{{ID: 1, Coord: offset(0, 0)}, {ID: 2, Coord: offset(1, 0)}},
		[]Edge{{From: 1, To: 2, DistanceCost: -1}})
	assert.ErrorIs(t, err, ErrInvalidEdge)
}

func TestLoadNetworkJSON(t *testing.T) {
	doc := `{
		"directed": true,
		"multigraph": true,
		"nodes": [
			{"id": 101, "x": -87.5987, "y": 41.7886, "street_count": 3},
			{"id": "102", "lat": 41.7896, "lon": -87.5987}
		],
		"links": [
			{"source": 101, "target": "102", "length": 111.2, "key": 0}
		]
	}`

	net, err := LoadNetworkJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, net.Nodes, 2)
	require.Len(t, net.Links, 1)
	assert.Equal(t, NodeID(101), net.Nodes[0].ID)
	assert.InDelta(t, 41.7886, net.Nodes[0].Coord.Lat, 1e-9)
	assert.Equal(t, NodeID(102), net.Links[0].Target)
	assert.InDelta(t, 111.2, net.Links[0].Length, 1e-9)
}

func TestLoadNetworkJSON_EdgesKeyAndWrapped(t *testing.T) {
	net, err := LoadNetworkJSON(strings.NewReader(`{
		"nodes": [{"id": 1, "x": 0, "y": 0}, {"id": 2, "x": 0.001, "y": 0}],
		"edges": [{"source": 1, "target": 2}]
	}`))
	require.NoError(t, err)
	assert.Len(t, net.Links, 1)

	net, err = LoadNetworkJSON(strings.NewReader(`{
		"graph": {"nodes": [{"id": 1, "x": 0, "y": 0}], "links": []}
	}`))
	require.NoError(t, err)
	assert.Len(t, net.Nodes, 1)
}

func TestLoadNetworkJSON_Errors(t *testing.T) {
	_, err := LoadNetworkJSON(strings.NewReader(`{"nodes": [{"id": "abc", "x": 0, "y": 0}]}`))
	assert.Error(t, err)

	_, err = LoadNetworkJSON(strings.NewReader(`{"nodes": [{"id": 1}]}`))
	assert.Error(t, err)

	_, err = LoadNetworkJSON(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	b := NewBuilder(BuilderConfig{Facts: &stubFacts{incidents: []spatial.Coordinate{offset(100, 0)}}, Logger: zerolog.Nop()})
	g, _, err := b.Build(context.Background(), "campus", squareNetwork())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, g.Extent, decoded.Extent)
	assert.Equal(t, g.Edges, decoded.Edges)

	want, err := NewRouter(g).ShortestPath(1, 3, CostSafety)
	require.NoError(t, err)
	got, err := NewRouter(decoded).ShortestPath(1, 3, CostSafety)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Decode(strings.NewReader("garbage"))
	assert.Error(t, err)
}
