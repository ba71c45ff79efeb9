package grid

import "math"

// Grid is a square measurement map addressed in absolute stage
// coordinates. A cell holds the last sampled reading, or NaN while no
// sample has been taken there.
type Grid struct {
	size  int
	cells []float64
}

// New returns a size×size grid with every cell unsampled.
func New(size int) *Grid {
	g := &Grid{size: size, cells: make([]float64, size*size)}
	for i := range g.cells {
		g.cells[i] = math.NaN()
	}
	return g
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.size && p.Y >= 0 && p.Y < g.size
}

// Set stores v at p. Positions outside the workspace are dropped; a
// scan centered near the boundary maps some points off the map and
// that is not an error.
func (g *Grid) Set(p Position, v float64) bool {
	if !g.InBounds(p) {
		return false
	}
	g.cells[p.Y*g.size+p.X] = v
	return true
}

// At returns the value stored at p, NaN when p is out of bounds or
// unsampled.
func (g *Grid) At(p Position) float64 {
	if !g.InBounds(p) {
		return math.NaN()
	}
	return g.cells[p.Y*g.size+p.X]
}

// Snapshot copies the grid as rows indexed [y][x].
func (g *Grid) Snapshot() [][]float64 {
	rows := make([][]float64, g.size)
	for y := 0; y < g.size; y++ {
		rows[y] = make([]float64, g.size)
		copy(rows[y], g.cells[y*g.size:(y+1)*g.size])
	}
	return rows
}
