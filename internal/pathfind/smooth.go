package pathfind

import (
	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/world"
)

// Smooth reduces a cell path to world-space waypoints at cell centers. From
// each kept waypoint it jumps to the farthest later cell whose center is in
// clear line of sight, so every emitted segment touches walkable cells only.
// A raw diagonal step past a blocked corner is split through its walkable
// orthogonal neighbour. Only a squeeze between two blocked corners, which
// search emits when AllowCornerCutting is set, is passed through as is. The
// final cell is never dropped.
func Smooth(cells []world.Cell, terrain Terrain, mapper world.Mapper) []mgl64.Vec3 {
	cells = compactCells(cells)
	if len(cells) == 0 {
		return nil
	}
	if len(cells) == 1 || terrain == nil {
		return cellCenters(cells, mapper)
	}

	waypoints := make([]mgl64.Vec3, 0, len(cells))
	waypoints = append(waypoints, mapper.GridToWorld(cells[0]))
	current := 0
	last := len(cells) - 1
	for current < last {
		next := current + 1
		for candidate := last; candidate > current+1; candidate-- {
			if CellsClear(cells[current], cells[candidate], terrain) {
				next = candidate
				break
			}
		}
		if next == current+1 && !CellsClear(cells[current], cells[next], terrain) {
			if corner, ok := cornerDetour(cells[current], cells[next], terrain); ok {
				waypoints = append(waypoints, mapper.GridToWorld(corner))
			}
		}
		waypoints = append(waypoints, mapper.GridToWorld(cells[next]))
		current = next
	}
	return waypoints
}

// cornerDetour picks the walkable orthogonal neighbour that turns a diagonal
// step from a to b into two straight steps.
func cornerDetour(a, b world.Cell, terrain Terrain) (world.Cell, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	if absInt(dx) != 1 || absInt(dy) != 1 {
		return world.Cell{}, false
	}
	if side := a.Offset(dx, 0); terrain.IsWalkable(side) {
		return side, true
	}
	if side := a.Offset(0, dy); terrain.IsWalkable(side) {
		return side, true
	}
	return world.Cell{}, false
}

func cellCenters(cells []world.Cell, mapper world.Mapper) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(cells))
	for i, c := range cells {
		out[i] = mapper.GridToWorld(c)
	}
	return out
}

func compactCells(cells []world.Cell) []world.Cell {
	if len(cells) < 2 {
		return cells
	}
	out := make([]world.Cell, 0, len(cells))
	for i, c := range cells {
		if i > 0 && c == cells[i-1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
