package graph

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/saferoute/saferoute/internal/spatial"
)

// CostFunction selects which edge cost a search minimizes.
type CostFunction string

const (
	// CostDistance minimizes walked meters.
	CostDistance CostFunction = "distance"
	// CostSafety minimizes the safety-weighted cost.
	CostSafety CostFunction = "safety"
)

// Valid reports whether c names a known cost function.
func (c CostFunction) Valid() bool {
	return c == CostDistance || c == CostSafety
}

func (c CostFunction) weight(e *Edge) float64 {
	if c == CostSafety {
		return e.SafetyCost
	}
	return e.DistanceCost
}

// Path is an ordered node sequence with its accumulated costs.
type Path struct {
	Nodes        []NodeID
	DistanceCost float64
	SafetyCost   float64
}

// Empty reports whether the path has no nodes.
func (p Path) Empty() bool {
	return len(p.Nodes) == 0
}

// Router answers nearest-node and shortest-path queries over a Graph.
// It holds no mutable state and is safe for concurrent use.
type Router struct {
	g *Graph
}

// NewRouter creates a router over g.
func NewRouter(g *Graph) *Router {
	return &Router{g: g}
}

// Graph returns the underlying graph.
func (r *Router) Graph() *Graph {
	return r.g
}

// NearestNode returns the node closest to c in projected space.
// Ties resolve to the lowest node ID.
func (r *Router) NearestNode(c spatial.Coordinate) (NodeID, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if len(r.g.Nodes) == 0 {
		return 0, ErrEmptyGraph
	}
	id, _, ok := r.g.grid.Nearest(r.g.proj.Project(c))
	if !ok {
		return 0, ErrEmptyGraph
	}
	return NodeID(id), nil
}

type queueItem struct {
	node int
	cost float64
}

// priorityQueue orders by cost, then by node ID for deterministic expansion.
type priorityQueue struct {
	items []queueItem
	ids   []Node
}

func (q *priorityQueue) Len() int { return len(q.items) }

func (q *priorityQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	return q.ids[a.node].ID < q.ids[b.node].ID
}

func (q *priorityQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *priorityQueue) Push(x any) { q.items = append(q.items, x.(queueItem)) }

func (q *priorityQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra from origin to destination minimizing cost.
// It returns ErrNoPath when the destination is in a different component.
func (r *Router) ShortestPath(origin, destination NodeID, cost CostFunction) (Path, error) {
	if !cost.Valid() {
		return Path{}, fmt.Errorf("unknown cost function %q", cost)
	}
	src, ok := r.g.index[origin]
	if !ok {
		return Path{}, fmt.Errorf("%w: %d", ErrUnknownNode, origin)
	}
	dst, ok := r.g.index[destination]
	if !ok {
		return Path{}, fmt.Errorf("%w: %d", ErrUnknownNode, destination)
	}
	if src == dst {
		return Path{Nodes: []NodeID{origin}}, nil
	}

	n := len(r.g.Nodes)
	dist := make([]float64, n)
	prevEdge := make([]int, n)
	prevNode := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prevEdge[i] = -1
		prevNode[i] = -1
	}
	dist[src] = 0

	pq := &priorityQueue{ids: r.g.Nodes}
	heap.Push(pq, queueItem{node: src, cost: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queueItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		if cur.node == dst {
			break
		}
		for _, h := range r.g.adj[cur.node] {
			if done[h.to] {
				continue
			}
			next := cur.cost + cost.weight(&r.g.Edges[h.edge])
			if next < dist[h.to] {
				dist[h.to] = next
				prevEdge[h.to] = h.edge
				prevNode[h.to] = cur.node
				heap.Push(pq, queueItem{node: h.to, cost: next})
			}
		}
	}

	if !done[dst] {
		return Path{}, ErrNoPath
	}

	var path Path
	for at := dst; at != -1; at = prevNode[at] {
		path.Nodes = append(path.Nodes, r.g.Nodes[at].ID)
		if e := prevEdge[at]; e >= 0 {
			path.DistanceCost += r.g.Edges[e].DistanceCost
			path.SafetyCost += r.g.Edges[e].SafetyCost
		}
	}
	for i, j := 0, len(path.Nodes)-1; i < j; i, j = i+1, j-1 {
		path.Nodes[i], path.Nodes[j] = path.Nodes[j], path.Nodes[i]
	}
	return path, nil
}

// PathToCoordinates maps a node sequence to WGS84 coordinates.
// Unknown node IDs are skipped.
func (r *Router) PathToCoordinates(p Path) []spatial.Coordinate {
	out := make([]spatial.Coordinate, 0, len(p.Nodes))
	for _, id := range p.Nodes {
		if n, ok := r.g.Node(id); ok {
			out = append(out, n.Coord)
		}
	}
	return out
}

// FindRoute snaps both coordinates to their nearest nodes and returns the
// coordinates of the cheapest path between them under cost.
func (r *Router) FindRoute(origin, destination spatial.Coordinate, cost CostFunction) ([]spatial.Coordinate, error) {
	_, coords, err := r.Route(origin, destination, cost)
	return coords, err
}

// Route is FindRoute that also returns the node path and its costs.
func (r *Router) Route(origin, destination spatial.Coordinate, cost CostFunction) (Path, []spatial.Coordinate, error) {
	from, err := r.NearestNode(origin)
	if err != nil {
		return Path{}, nil, fmt.Errorf("snapping origin: %w", err)
	}
	to, err := r.NearestNode(destination)
	if err != nil {
		return Path{}, nil, fmt.Errorf("snapping destination: %w", err)
	}
	path, err := r.ShortestPath(from, to, cost)
	if err != nil {
		return Path{}, nil, err
	}
	return path, r.PathToCoordinates(path), nil
}
