// Package grid holds the tile map and pathfinding used by room
// engines. It is pure data and algorithms, no transport or storage.
package grid

const (
	TileWalkable = 0
	TileBlocked  = 1
)

// Point is a tile coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is a rectangular tile map. The zero value is unusable, use New.
type Grid struct {
	width  int
	height int
	tiles  [][]int
}

// New builds a grid from a persisted tile map. The tiles are copied
// and normalized: missing rows/cells are padded walkable, and every
// border tile is forced walkable. Legacy rooms were persisted with
// blocked borders; the persisted record itself is never mutated.
func New(width, height int, tiles [][]int) *Grid {
	g := &Grid{width: width, height: height}
	g.tiles = make([][]int, height)
	for y := 0; y < height; y++ {
		row := make([]int, width)
		if y < len(tiles) {
			for x := 0; x < width && x < len(tiles[y]); x++ {
				row[x] = tiles[y][x]
			}
		}
		g.tiles[y] = row
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				g.tiles[y][x] = TileWalkable
			}
		}
	}
	return g
}

// AllWalkable returns a width×height tile map with every tile open.
func AllWalkable(width, height int) [][]int {
	tiles := make([][]int, height)
	for y := range tiles {
		tiles[y] = make([]int, width)
	}
	return tiles
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// Walkable reports whether (x,y) is an open tile; out of bounds is not
// walkable.
func (g *Grid) Walkable(x, y int) bool {
	return g.InBounds(x, y) && g.tiles[y][x] == TileWalkable
}

// SpawnPoint returns where a joining participant is placed: (0,0) if
// open, otherwise the first walkable tile in row-major order. The
// border normalization in New makes the first case succeed for any
// well-formed room; (0,0) remains the fallback regardless.
func (g *Grid) SpawnPoint() Point {
	if g.Walkable(0, 0) {
		return Point{}
	}
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if g.tiles[y][x] == TileWalkable {
				return Point{X: x, Y: y}
			}
		}
	}
	return Point{}
}
