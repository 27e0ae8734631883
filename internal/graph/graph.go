// Package graph models the campus walk network as an undirected graph whose
// edges carry both a distance cost and a safety-weighted cost, and provides
// shortest-path routing over either cost.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang/geo/r2"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Sentinel errors for graph operations.
var (
	// ErrNoPath indicates the destination is unreachable from the origin.
	ErrNoPath = errors.New("no path between the given nodes")
	// ErrUnknownNode indicates a node ID that is not part of the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrEmptyGraph indicates an operation that needs at least one node.
	ErrEmptyGraph = errors.New("graph has no nodes")
	// ErrInvalidEdge indicates an edge with a bad endpoint or cost.
	ErrInvalidEdge = errors.New("invalid edge")
)

// NodeID identifies a junction in the walk network (OSM node ID for osmnx exports).
type NodeID int64

// Node is a walkable junction.
type Node struct {
	ID    NodeID
	Coord spatial.Coordinate
	Point r2.Point // projected planar position in meters
}

// Edge is an undirected walkable segment between two nodes.
type Edge struct {
	From         NodeID
	To           NodeID
	DistanceCost float64 // meters
	SafetyCost   float64 // DistanceCost * RiskFactor
	RiskFactor   float64
	Assets       int // safety assets near the segment midpoint
	Incidents    int // incidents near the segment midpoint
}

type halfEdge struct {
	to   int
	edge int
}

// Graph is the prebuilt, read-mostly walk network for one extent.
// After construction it must not be mutated while searches are running.
type Graph struct {
	Extent  string
	Origin  spatial.Coordinate
	BuiltAt time.Time
	Nodes   []Node
	Edges   []Edge

	proj  spatial.Projection
	index map[NodeID]int
	adj   [][]halfEdge
	grid  *spatial.GridIndex
}

// New assembles a graph from nodes and edges. Nodes without a projected point
// are projected relative to origin. Edge costs are validated and a missing
// SafetyCost or RiskFactor defaults to the plain distance.
func New(extent string, origin spatial.Coordinate, nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		Extent: extent,
		Origin: origin,
		Nodes:  append([]Node(nil), nodes...),
		Edges:  append([]Edge(nil), edges...),
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.RiskFactor == 0 {
			e.RiskFactor = 1
			e.SafetyCost = e.DistanceCost
		}
	}
	if err := g.init(); err != nil {
		return nil, err
	}
	return g, nil
}

// init rebuilds the derived lookup structures. It is called after
// construction and after decoding a persisted graph.
func (g *Graph) init() error {
	g.proj = spatial.NewProjection(g.Origin)

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	g.index = make(map[NodeID]int, len(g.Nodes))
	g.grid = spatial.NewGridIndex(100)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if _, dup := g.index[n.ID]; dup {
			return fmt.Errorf("duplicate node %d", n.ID)
		}
		if n.Point == (r2.Point{}) && n.Coord != g.Origin {
			n.Point = g.proj.Project(n.Coord)
		}
		g.index[n.ID] = i
		g.grid.Insert(int64(n.ID), n.Point)
	}

	g.adj = make([][]halfEdge, len(g.Nodes))
	for i, e := range g.Edges {
		from, ok := g.index[e.From]
		if !ok {
			return fmt.Errorf("%w: edge %d references node %d", ErrInvalidEdge, i, e.From)
		}
		to, ok := g.index[e.To]
		if !ok {
			return fmt.Errorf("%w: edge %d references node %d", ErrInvalidEdge, i, e.To)
		}
		if e.DistanceCost < 0 || e.RiskFactor <= 0 || e.SafetyCost < 0 {
			return fmt.Errorf("%w: edge %d has negative cost or non-positive risk factor", ErrInvalidEdge, i)
		}
		g.adj[from] = append(g.adj[from], halfEdge{to: to, edge: i})
		if from != to {
			g.adj[to] = append(g.adj[to], halfEdge{to: from, edge: i})
		}
	}
	return nil
}

// Projection returns the planar projection the graph was built with.
func (g *Graph) Projection() spatial.Projection {
	return g.proj
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	return len(g.Edges)
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Neighbors returns the edges incident to id.
func (g *Graph) Neighbors(id NodeID) []Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(g.adj[i]))
	for _, h := range g.adj[i] {
		out = append(out, g.Edges[h.edge])
	}
	return out
}

// Stats summarizes edge risk across the graph.
type Stats struct {
	Nodes           int     `json:"nodes"`
	Edges           int     `json:"edges"`
	PenalizedEdges  int     `json:"penalizedEdges"`
	DiscountedEdges int     `json:"discountedEdges"`
	MeanRiskFactor  float64 `json:"meanRiskFactor"`
	MaxRiskFactor   float64 `json:"maxRiskFactor"`
}

// Stats computes summary statistics over all edges.
func (g *Graph) Stats() Stats {
	s := Stats{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	if len(g.Edges) == 0 {
		return s
	}
	var sum float64
	for _, e := range g.Edges {
		sum += e.RiskFactor
		s.MaxRiskFactor = max(s.MaxRiskFactor, e.RiskFactor)
		if e.Incidents > 0 {
			s.PenalizedEdges++
		}
		if e.Assets > 0 {
			s.DiscountedEdges++
		}
	}
	s.MeanRiskFactor = sum / float64(len(g.Edges))
	return s
}
