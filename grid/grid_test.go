package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNormalizesBorder(t *testing.T) {
	tiles := AllWalkable(5, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			tiles[y][x] = TileBlocked
		}
	}
	g := New(5, 5, tiles)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			onBorder := x == 0 || y == 0 || x == 4 || y == 4
			assert.Equal(t, onBorder, g.Walkable(x, y), "tile (%d,%d)", x, y)
		}
	}
	// the input tile map is not mutated
	assert.Equal(t, TileBlocked, tiles[0][0])
}

func TestNewPadsRaggedTiles(t *testing.T) {
	g := New(5, 5, [][]int{{0, 0}, {0}})
	assert.True(t, g.Walkable(4, 4))
	assert.True(t, g.Walkable(2, 1))
}

func TestInBounds(t *testing.T) {
	g := New(7, 5, AllWalkable(7, 5))
	assert.True(t, g.InBounds(0, 0))
	assert.True(t, g.InBounds(6, 4))
	assert.False(t, g.InBounds(-1, 0))
	assert.False(t, g.InBounds(7, 0))
	assert.False(t, g.InBounds(0, 5))
}

func TestWalkableOutOfBoundsIsFalse(t *testing.T) {
	g := New(5, 5, AllWalkable(5, 5))
	assert.False(t, g.Walkable(-1, 0))
	assert.False(t, g.Walkable(0, 5))
}

func TestSpawnPointPrefersOrigin(t *testing.T) {
	g := New(5, 5, AllWalkable(5, 5))
	assert.Equal(t, Point{X: 0, Y: 0}, g.SpawnPoint())
}

func TestSpawnPointScansRowMajor(t *testing.T) {
	tiles := AllWalkable(6, 6)
	tiles[0][0] = TileBlocked
	tiles[0][1] = TileBlocked
	g := New(6, 6, tiles)
	// border normalization re-opens (0,0), so spawn stays at the origin
	assert.Equal(t, Point{X: 0, Y: 0}, g.SpawnPoint())
}
