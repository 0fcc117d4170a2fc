package pathfind

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/world"
)

// cornerEpsilon treats boundary crossings this close together as passing
// exactly through a cell corner.
const cornerEpsilon = 1e-9

// walkSegment visits every cell touched by the segment between two points in
// continuous grid units, where cell (x,y) spans [x,x+1) on each axis. When
// the segment passes through a corner both side cells are visited. Returns
// false as soon as visit does.
func walkSegment(u0, v0, u1, v1 float64, visit func(world.Cell) bool) bool {
	if anyNaN(u0, v0, u1, v1) {
		return false
	}
	x, y := int(math.Floor(u0)), int(math.Floor(v0))
	endX, endY := int(math.Floor(u1)), int(math.Floor(v1))
	if !visit(world.Cell{X: x, Y: y}) {
		return false
	}

	du, dv := u1-u0, v1-v0
	stepX, tMaxX, tDeltaX := axisStep(u0, du, x)
	stepY, tMaxY, tDeltaY := axisStep(v0, dv, y)

	budget := absInt(endX-x) + absInt(endY-y) + 1
	for i := 0; i < budget && (x != endX || y != endY); i++ {
		switch {
		case math.Abs(tMaxX-tMaxY) <= cornerEpsilon:
			if !visit(world.Cell{X: x + stepX, Y: y}) || !visit(world.Cell{X: x, Y: y + stepY}) {
				return false
			}
			x += stepX
			y += stepY
			tMaxX += tDeltaX
			tMaxY += tDeltaY
		case tMaxX < tMaxY:
			x += stepX
			tMaxX += tDeltaX
		default:
			y += stepY
			tMaxY += tDeltaY
		}
		if !visit(world.Cell{X: x, Y: y}) {
			return false
		}
	}
	if x != endX || y != endY {
		return visit(world.Cell{X: endX, Y: endY})
	}
	return true
}

func axisStep(origin, delta float64, cell int) (step int, tMax, tDelta float64) {
	switch {
	case delta > 0:
		return 1, (float64(cell+1) - origin) / delta, 1 / delta
	case delta < 0:
		return -1, (float64(cell) - origin) / delta, -1 / delta
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// CellsClear reports whether the straight line between the centers of two
// cells touches only walkable cells.
func CellsClear(a, b world.Cell, terrain Terrain) bool {
	return walkSegment(float64(a.X)+0.5, float64(a.Y)+0.5, float64(b.X)+0.5, float64(b.Y)+0.5, terrain.IsWalkable)
}

// SegmentClear reports whether the straight line between two world positions
// touches only walkable cells.
func SegmentClear(from, to mgl64.Vec3, terrain Terrain, mapper world.Mapper) bool {
	u0, v0 := mapper.GridUnits(from)
	u1, v1 := mapper.GridUnits(to)
	return walkSegment(u0, v0, u1, v1, terrain.IsWalkable)
}

// SegmentCells lists the cells touched by the segment between two world
// positions, in traversal order.
func SegmentCells(from, to mgl64.Vec3, mapper world.Mapper) []world.Cell {
	u0, v0 := mapper.GridUnits(from)
	u1, v1 := mapper.GridUnits(to)
	var cells []world.Cell
	walkSegment(u0, v0, u1, v1, func(c world.Cell) bool {
		cells = append(cells, c)
		return true
	})
	return cells
}
