package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrid_Unsampled(t *testing.T) {
	g := New(4)

	assert.Equal(t, 4, g.Size())
	assert.True(t, math.IsNaN(g.At(Position{X: 0, Y: 0})))
	assert.True(t, math.IsNaN(g.At(Position{X: 3, Y: 3})))
}

func TestGrid_SetAt(t *testing.T) {
	g := New(4)

	assert.True(t, g.Set(Position{X: 1, Y: 2}, 42))
	assert.Equal(t, 42.0, g.At(Position{X: 1, Y: 2}))

	// neighbors untouched
	assert.True(t, math.IsNaN(g.At(Position{X: 2, Y: 1})))
}

func TestGrid_OutOfBounds(t *testing.T) {
	g := New(4)

	assert.False(t, g.Set(Position{X: -1, Y: 0}, 1))
	assert.False(t, g.Set(Position{X: 0, Y: -1}, 1))
	assert.False(t, g.Set(Position{X: 4, Y: 0}, 1))
	assert.False(t, g.Set(Position{X: 0, Y: 4}, 1))
	assert.True(t, math.IsNaN(g.At(Position{X: -1, Y: 7})))
}

func TestGrid_Snapshot(t *testing.T) {
	g := New(3)
	g.Set(Position{X: 2, Y: 1}, 9)

	snap := g.Snapshot()
	assert.Equal(t, 9.0, snap[1][2])

	// the snapshot is a copy, not a view
	snap[1][2] = -1
	assert.Equal(t, 9.0, g.At(Position{X: 2, Y: 1}))
}

func TestPosition_Add(t *testing.T) {
	p := Position{X: 10, Y: 20}
	assert.Equal(t, Position{X: 8, Y: 23}, p.Add(-2, 3))
	assert.Equal(t, Position{X: 10, Y: 20}, p)
}
