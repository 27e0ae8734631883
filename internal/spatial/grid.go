package spatial

import (
	"math"

	"github.com/golang/geo/r2"
)

type cellKey struct {
	x, y int
}

type gridEntry struct {
	id int64
	pt r2.Point
}

// GridIndex is a uniform bucket index over projected points.
// Cells are square with side CellSize meters. It is not safe for concurrent
// writes; reads are safe once loading is complete.
type GridIndex struct {
	cellSize float64
	cells    map[cellKey][]gridEntry
	size     int

	minX, minY, maxX, maxY int
}

// NewGridIndex creates an empty grid with the given cell size in meters.
// A non-positive cell size falls back to 50 meters.
func NewGridIndex(cellSize float64) *GridIndex {
	if cellSize <= 0 {
		cellSize = 50
	}
	return &GridIndex{
		cellSize: cellSize,
		cells:    make(map[cellKey][]gridEntry),
	}
}

func (g *GridIndex) key(p r2.Point) cellKey {
	return cellKey{
		x: int(math.Floor(p.X / g.cellSize)),
		y: int(math.Floor(p.Y / g.cellSize)),
	}
}

// Insert adds a point with the given identifier.
func (g *GridIndex) Insert(id int64, p r2.Point) {
	k := g.key(p)
	if g.size == 0 {
		g.minX, g.maxX, g.minY, g.maxY = k.x, k.x, k.y, k.y
	} else {
		g.minX = min(g.minX, k.x)
		g.maxX = max(g.maxX, k.x)
		g.minY = min(g.minY, k.y)
		g.maxY = max(g.maxY, k.y)
	}
	g.cells[k] = append(g.cells[k], gridEntry{id: id, pt: p})
	g.size++
}

// Len returns the number of indexed points.
func (g *GridIndex) Len() int {
	return g.size
}

// CountWithin returns how many indexed points lie within radius meters of p.
func (g *GridIndex) CountWithin(p r2.Point, radius float64) int {
	if g.size == 0 || radius < 0 {
		return 0
	}
	center := g.key(p)
	span := int(math.Ceil(radius / g.cellSize))
	count := 0
	for x := center.x - span; x <= center.x+span; x++ {
		for y := center.y - span; y <= center.y+span; y++ {
			for _, e := range g.cells[cellKey{x: x, y: y}] {
				if e.pt.Sub(p).Norm() <= radius {
					count++
				}
			}
		}
	}
	return count
}

// Nearest returns the identifier of the point closest to p and its distance.
// Ties are broken by the lowest identifier so results are deterministic.
func (g *GridIndex) Nearest(p r2.Point) (int64, float64, bool) {
	if g.size == 0 {
		return 0, 0, false
	}
	center := g.key(p)
	maxRing := max(
		abs(center.x-g.minX), abs(center.x-g.maxX),
		abs(center.y-g.minY), abs(center.y-g.maxY),
	)

	var (
		bestID   int64
		bestDist = math.Inf(1)
		found    bool
	)
	for ring := 0; ring <= maxRing; ring++ {
		g.visitRing(center, ring, func(e gridEntry) {
			d := e.pt.Sub(p).Norm()
			if !found || d < bestDist || (d == bestDist && e.id < bestID) {
				bestID, bestDist, found = e.id, d, true
			}
		})
		// Every point beyond this ring is at least ring*cellSize away.
		if found && bestDist < float64(ring)*g.cellSize {
			break
		}
	}
	return bestID, bestDist, found
}

func (g *GridIndex) visitRing(center cellKey, ring int, fn func(gridEntry)) {
	visit := func(x, y int) {
		for _, e := range g.cells[cellKey{x: x, y: y}] {
			fn(e)
		}
	}
	if ring == 0 {
		visit(center.x, center.y)
		return
	}
	for x := center.x - ring; x <= center.x+ring; x++ {
		visit(x, center.y-ring)
		visit(x, center.y+ring)
	}
	for y := center.y - ring + 1; y <= center.y+ring-1; y++ {
		visit(center.x-ring, y)
		visit(center.x+ring, y)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
