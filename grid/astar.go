package grid

import "container/heap"

const (
	costCardinal = 1.0
	costDiagonal = 1.4
)

var neighbours = [8]Point{
	{X: 0, Y: -1}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0},
	{X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: -1},
}

type pathNode struct {
	at    Point
	f     float64
	seq   int
	index int
}

// openSet orders by lowest f, ties broken by insertion order.
type openSet []*pathNode

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].seq < s[j].seq
}
func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}
func (s *openSet) Push(x interface{}) {
	n := x.(*pathNode)
	n.index = len(*s)
	*s = append(*s, n)
}
func (s *openSet) Pop() interface{} {
	old := *s
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*s = old[:len(old)-1]
	return n
}

func manhattan(a, b Point) float64 {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return float64(dx + dy)
}

// FindPath runs A* over the 8-connected grid and returns the tiles
// strictly after from, ending at to. It returns nil when from == to
// and when no path exists; callers distinguish the two by comparing
// the endpoints. Diagonal steps cost 1.4 and are only taken when both
// orthogonal neighbours sharing the corner are open, so paths never
// squeeze through wall corners.
func (g *Grid) FindPath(from, to Point) []Point {
	if from == to {
		return nil
	}
	if !g.Walkable(from.X, from.Y) || !g.Walkable(to.X, to.Y) {
		return nil
	}

	gScore := map[Point]float64{from: 0}
	cameFrom := make(map[Point]Point)
	closed := make(map[Point]struct{})

	open := &openSet{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &pathNode{at: from, f: manhattan(from, to), seq: seq})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		if current.at == to {
			return reconstruct(cameFrom, from, to)
		}
		if _, ok := closed[current.at]; ok {
			continue
		}
		closed[current.at] = struct{}{}

		for i, d := range neighbours {
			next := Point{X: current.at.X + d.X, Y: current.at.Y + d.Y}
			if !g.Walkable(next.X, next.Y) {
				continue
			}
			cost := costCardinal
			if i >= 4 {
				// corner-cut check: both shared orthogonal tiles must be open
				if !g.Walkable(current.at.X+d.X, current.at.Y) || !g.Walkable(current.at.X, current.at.Y+d.Y) {
					continue
				}
				cost = costDiagonal
			}
			tentative := gScore[current.at] + cost
			if best, ok := gScore[next]; ok && tentative >= best {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = current.at
			seq++
			heap.Push(open, &pathNode{at: next, f: tentative + manhattan(next, to), seq: seq})
		}
	}
	return nil
}

func reconstruct(cameFrom map[Point]Point, from, to Point) []Point {
	path := []Point{to}
	for at := to; at != from; {
		at = cameFrom[at]
		path = append(path, at)
	}
	// drop the origin, reverse into walking order
	path = path[:len(path)-1]
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
