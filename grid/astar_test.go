package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGrid turns a string sketch into a grid; '#' is blocked. The
// sketch must not touch the border, which is forced walkable on load.
func buildGrid(rows ...string) *Grid {
	height := len(rows)
	width := len(rows[0])
	tiles := AllWalkable(width, height)
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				tiles[y][x] = TileBlocked
			}
		}
	}
	return New(width, height, tiles)
}

func pathCost(path []Point, from Point) float64 {
	cost := 0.0
	prev := from
	for _, p := range path {
		if p.X != prev.X && p.Y != prev.Y {
			cost += costDiagonal
		} else {
			cost += costCardinal
		}
		prev = p
	}
	return cost
}

func assertValidPath(t *testing.T, g *Grid, from, to Point, path []Point) {
	t.Helper()
	require.NotEmpty(t, path)
	assert.Equal(t, to, path[len(path)-1])
	prev := from
	for _, p := range path {
		assert.True(t, g.Walkable(p.X, p.Y), "step (%d,%d) not walkable", p.X, p.Y)
		dx, dy := p.X-prev.X, p.Y-prev.Y
		assert.LessOrEqual(t, dx*dx, 1)
		assert.LessOrEqual(t, dy*dy, 1)
		assert.False(t, dx == 0 && dy == 0, "zero-length step")
		prev = p
	}
}

func TestFindPathSamePointIsEmpty(t *testing.T) {
	g := New(5, 5, AllWalkable(5, 5))
	assert.Empty(t, g.FindPath(Point{X: 2, Y: 2}, Point{X: 2, Y: 2}))
}

func TestFindPathOpenRoom(t *testing.T) {
	g := New(14, 14, AllWalkable(14, 14))
	from, to := Point{X: 0, Y: 0}, Point{X: 3, Y: 2}
	path := g.FindPath(from, to)
	assertValidPath(t, g, from, to, path)
	// shortest under the weighted metric: two diagonals plus one cardinal
	assert.Len(t, path, 3)
	assert.InDelta(t, 2*costDiagonal+costCardinal, pathCost(path, from), 1e-9)
}

func TestFindPathStraightLine(t *testing.T) {
	g := New(10, 10, AllWalkable(10, 10))
	from, to := Point{X: 1, Y: 1}, Point{X: 6, Y: 1}
	path := g.FindPath(from, to)
	assertValidPath(t, g, from, to, path)
	assert.Len(t, path, 5)
}

func TestFindPathAroundWall(t *testing.T) {
	g := buildGrid(
		".......",
		".......",
		"..###..",
		"..#.#..",
		"..###..",
		".......",
		".......",
	)
	from, to := Point{X: 1, Y: 3}, Point{X: 5, Y: 3}
	path := g.FindPath(from, to)
	assertValidPath(t, g, from, to, path)
	for _, p := range path {
		assert.NotEqual(t, Point{X: 3, Y: 3}, p, "path must not pass through the enclosed cell")
	}
}

func TestFindPathUnreachable(t *testing.T) {
	g := buildGrid(
		".......",
		".......",
		"..###..",
		"..#.#..",
		"..###..",
		".......",
		".......",
	)
	assert.Empty(t, g.FindPath(Point{X: 1, Y: 1}, Point{X: 3, Y: 3}))
}

func TestFindPathNoCornerCutting(t *testing.T) {
	// a diagonal wall with a corner gap: the direct diagonal squeeze
	// at (2,2)->(3,3) is forbidden because both orthogonal neighbours
	// are blocked
	g := buildGrid(
		"......",
		"......",
		"...#..",
		"..#...",
		"......",
		"......",
	)
	from, to := Point{X: 2, Y: 2}, Point{X: 3, Y: 3}
	path := g.FindPath(from, to)
	assertValidPath(t, g, from, to, path)
	// the detour is strictly longer than a single diagonal
	assert.Greater(t, pathCost(path, from), costDiagonal)
	prev := from
	for _, p := range path {
		if p.X != prev.X && p.Y != prev.Y {
			assert.True(t, g.Walkable(p.X, prev.Y), "corner cut at (%d,%d)", p.X, prev.Y)
			assert.True(t, g.Walkable(prev.X, p.Y), "corner cut at (%d,%d)", prev.X, p.Y)
		}
		prev = p
	}
}

func TestFindPathToBlockedTileIsEmpty(t *testing.T) {
	g := buildGrid(
		".....",
		".....",
		"..#..",
		".....",
		".....",
	)
	assert.Empty(t, g.FindPath(Point{X: 1, Y: 1}, Point{X: 2, Y: 2}))
}
