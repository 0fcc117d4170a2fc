package pathfind

import (
	"container/heap"

	"cosmic-nav/server/internal/world"
)

// Terrain is the read-only grid view consumed by search and smoothing.
type Terrain interface {
	IsWalkable(world.Cell) bool
	Cost(world.Cell) float64
}

// Options tunes a search. The zero value uses the Manhattan heuristic, keeps
// diagonal moves off blocked corners and puts no cap on expansions.
type Options struct {
	Heuristic Heuristic
	// AllowCornerCutting accepts diagonal moves whose orthogonal neighbours
	// are blocked. Smoothing splits a step with one open side into two
	// straight moves, but a step squeezing between two blocked cells stays
	// in the path and crosses both corners.
	AllowCornerCutting bool
	// MaxExpansions aborts the search after this many closed nodes. Zero
	// disables the cap.
	MaxExpansions int
}

type neighbor struct {
	dx       int
	dy       int
	diagonal bool
}

var neighborOffsets = [...]neighbor{
	{dx: 0, dy: 1},
	{dx: 1, dy: 0},
	{dx: 0, dy: -1},
	{dx: -1, dy: 0},
	{dx: 1, dy: 1, diagonal: true},
	{dx: -1, dy: 1, diagonal: true},
	{dx: 1, dy: -1, diagonal: true},
	{dx: -1, dy: -1, diagonal: true},
}

type searchNode struct {
	cell   world.Cell
	g      float64
	h      float64
	seq    uint64
	index  int
	closed bool
	parent *searchNode
}

func (n *searchNode) f() float64 { return n.g + n.h }

type searchQueue []*searchNode

func (q searchQueue) Len() int { return len(q) }

func (q searchQueue) Less(i, j int) bool {
	fi, fj := q[i].f(), q[j].f()
	if fi != fj {
		return fi < fj
	}
	if q[i].h != q[j].h {
		return q[i].h < q[j].h
	}
	return q[i].seq < q[j].seq
}

func (q searchQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *searchQueue) Push(x any) {
	n := len(*q)
	item := x.(*searchNode)
	item.index = n
	*q = append(*q, item)
}

func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// FindPath runs A* with the default options.
func FindPath(start, goal world.Cell, terrain Terrain) ([]world.Cell, bool) {
	return Search(start, goal, terrain, Options{})
}

// Search computes a cell path from start to goal. Entering a cell costs that
// cell's Cost regardless of direction. The returned path starts at start and
// ends at goal. A false result means no path exists, which is not an error.
func Search(start, goal world.Cell, terrain Terrain, opts Options) ([]world.Cell, bool) {
	if terrain == nil || !terrain.IsWalkable(start) || !terrain.IsWalkable(goal) {
		return nil, false
	}
	if start == goal {
		return []world.Cell{start}, true
	}

	estimate := opts.Heuristic.fn()
	nodes := make(map[world.Cell]*searchNode)
	open := &searchQueue{}
	heap.Init(open)

	var seq uint64
	startNode := &searchNode{cell: start, h: estimate(start, goal), index: -1}
	nodes[start] = startNode
	heap.Push(open, startNode)

	expansions := 0
	for open.Len() > 0 {
		current := heap.Pop(open).(*searchNode)
		if current.cell == goal {
			return reconstructPath(current), true
		}
		current.closed = true
		expansions++
		if opts.MaxExpansions > 0 && expansions > opts.MaxExpansions {
			return nil, false
		}

		for _, delta := range neighborOffsets {
			next := current.cell.Offset(delta.dx, delta.dy)
			if !terrain.IsWalkable(next) {
				continue
			}
			if delta.diagonal && !opts.AllowCornerCutting && !canTraverseDiagonal(current.cell, delta, terrain) {
				continue
			}
			step := terrain.Cost(next)
			if world.IsImpassable(step) {
				continue
			}
			tentative := current.g + step
			node, seen := nodes[next]
			if seen && (node.closed || tentative >= node.g) {
				continue
			}
			if !seen {
				node = &searchNode{cell: next, h: estimate(next, goal), index: -1}
				nodes[next] = node
			}
			node.g = tentative
			node.parent = current
			if node.index >= 0 {
				heap.Fix(open, node.index)
				continue
			}
			seq++
			node.seq = seq
			heap.Push(open, node)
		}
	}
	return nil, false
}

func canTraverseDiagonal(from world.Cell, delta neighbor, terrain Terrain) bool {
	return terrain.IsWalkable(from.Offset(delta.dx, 0)) && terrain.IsWalkable(from.Offset(0, delta.dy))
}

func reconstructPath(end *searchNode) []world.Cell {
	if end == nil {
		return nil
	}
	path := make([]world.Cell, 0)
	for node := end; node != nil; node = node.parent {
		path = append(path, node.cell)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}
