package obstacles

import (
	"sort"

	"cosmic-nav/server/internal/world"
)

// Record describes one obstacle's footprint on the grid.
type Record struct {
	ID    string       `json:"id"`
	Cells []world.Cell `json:"cells"`
	// Clearance dilates the footprint by this many cells in every direction,
	// diagonals included. Zero marks only the occupied cells.
	Clearance int `json:"clearance"`
}

// Footprint returns the occupied cells plus the clearance ring that fall
// inside bounds, deduplicated and sorted in row-major order.
func (r Record) Footprint(bounds world.Bounds) []world.Cell {
	return Dilate(r.Cells, r.Clearance, bounds)
}

// Dilate expands cells by radius using the square neighbourhood, keeping only
// cells inside bounds. The work done is capped by the bounds, not the radius.
func Dilate(cells []world.Cell, radius int, bounds world.Bounds) []world.Cell {
	if radius < 0 {
		radius = 0
	}
	if bounds.Len() == 0 {
		return nil
	}
	seen := make(map[world.Cell]struct{})
	var out []world.Cell
	for _, c := range cells {
		minX, maxX, okX := window(c.X, radius, bounds.MinX, bounds.MaxX())
		minY, maxY, okY := window(c.Y, radius, bounds.MinY, bounds.MaxY())
		if !okX || !okY {
			continue
		}
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				n := world.Cell{X: x, Y: y}
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	sortCells(out)
	return out
}

// window clips [center-radius, center+radius] to [lo, hi] without overflowing
// on large radii.
func window(center, radius, lo, hi int) (int, int, bool) {
	if center < lo && lo-center > radius {
		return 0, 0, false
	}
	if center > hi && center-hi > radius {
		return 0, 0, false
	}
	from, to := lo, hi
	if center-lo > radius {
		from = center - radius
	}
	if hi-center > radius {
		to = center + radius
	}
	return from, to, true
}

func sortCells(cells []world.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
}
