package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepUnderflowChecked(t *testing.T) {
	origin := NewPosition(0, 0, 0, North)
	_, ok := Step(origin, South, 1)
	assert.False(t, ok, "stepping below zero must be refused, not wrap")

	_, ok = Step(origin, North, -1)
	assert.False(t, ok, "negative step count must be refused")

	p, ok := Step(origin, North, 3)
	require.True(t, ok)
	assert.Equal(t, Position{X: 0, Y: 3, Z: 0, Facing: North}, p)
}

func TestStepDualityInvariant(t *testing.T) {
	// spec invariant 7: Step(dir,n) and Step(!dir,n) are inverses where defined.
	start := NewPosition(5, 5, 0, East)
	forward, ok := Step(start, NorthEast, 4)
	require.True(t, ok)
	back, ok := Step(forward, NorthEast.Opposite(), 4)
	require.True(t, ok)
	assert.Equal(t, start.X, back.X)
	assert.Equal(t, start.Y, back.Y)
	assert.Equal(t, start.Z, back.Z)
}

func TestCollinear(t *testing.T) {
	a := NewPosition(2, 2, 0, North)
	b := NewPosition(2, 5, 0, North)
	assert.True(t, Collinear(a, b, North))
	assert.False(t, Collinear(a, b, East))

	c := NewPosition(2, 1, 0, North)
	assert.False(t, Collinear(a, c, North), "negative scalar t must not count as collinear")
}

func TestManhattanAndEuclidean(t *testing.T) {
	a := NewPosition(0, 0, 0, North)
	b := NewPosition(3, 4, 0, North)
	assert.Equal(t, 7, ManhattanDistance(a, b))
	assert.InDelta(t, 5.0, EuclideanDistance(a, b), 1e-9)
}

func TestRailDistancesDoubleOnDiagonal(t *testing.T) {
	straight := Rail{Length: 3, StartPosition: NewPosition(0, 0, 0, North), IncomingDirection: North}
	diag := Rail{Length: 3, StartPosition: NewPosition(0, 0, 0, North), IncomingDirection: NorthEast}

	assert.Equal(t, 4, straight.ManhattanDistance())
	assert.Equal(t, 8, diag.ManhattanDistance())

	assert.InDelta(t, 4.0, straight.EuclideanDistance(), 1e-9)
	assert.InDelta(t, 4.0*1.4142135623730951, diag.EuclideanDistance(), 1e-9)
}

func TestRailsSequenceSum(t *testing.T) {
	rails := []Rail{
		{Length: 1, StartPosition: NewPosition(0, 0, 0, North), IncomingDirection: North},
		{Length: 2, StartPosition: NewPosition(0, 1, 0, North), IncomingDirection: East},
	}
	assert.Equal(t, 2+3, RailsManhattanDistance(rails))
}
