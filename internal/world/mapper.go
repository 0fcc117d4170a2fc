package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultTileSize is the world-space edge length of one cell.
const DefaultTileSize = 10.0

// Mapper converts between world positions and grid cells. World X maps to the
// cell column and world Z to the cell row; the Y (height) axis is ignored.
type Mapper struct {
	TileSize float64
	// Origin is the world position of the centre of cell (0,0).
	Origin mgl64.Vec3
}

// NewMapper returns a mapper whose origin is the world origin.
func NewMapper(tileSize float64) Mapper {
	return Mapper{TileSize: tileSize}
}

func (m Mapper) tileSize() float64 {
	if m.TileSize <= 0 || math.IsNaN(m.TileSize) {
		return DefaultTileSize
	}
	return m.TileSize
}

// GridUnits returns the continuous grid coordinates of p. Cell c covers
// [c, c+1) on both axes.
func (m Mapper) GridUnits(p mgl64.Vec3) (float64, float64) {
	size := m.tileSize()
	u := (p.X()-m.Origin.X())/size + 0.5
	v := (p.Z()-m.Origin.Z())/size + 0.5
	return u, v
}

// WorldToGrid returns the cell containing p.
func (m Mapper) WorldToGrid(p mgl64.Vec3) Cell {
	u, v := m.GridUnits(p)
	return Cell{X: floorToInt(u), Y: floorToInt(v)}
}

// GridToWorld returns the world position of the centre of c at the origin's
// height.
func (m Mapper) GridToWorld(c Cell) mgl64.Vec3 {
	size := m.tileSize()
	return mgl64.Vec3{
		m.Origin.X() + float64(c.X)*size,
		m.Origin.Y(),
		m.Origin.Z() + float64(c.Y)*size,
	}
}

// FromGridUnits converts continuous grid coordinates back into a world position.
func (m Mapper) FromGridUnits(u, v float64) mgl64.Vec3 {
	size := m.tileSize()
	return mgl64.Vec3{
		m.Origin.X() + (u-0.5)*size,
		m.Origin.Y(),
		m.Origin.Z() + (v-0.5)*size,
	}
}

// WorldToGrid converts p using a mapper anchored at the world origin.
func WorldToGrid(p mgl64.Vec3, tileSize float64) Cell {
	return NewMapper(tileSize).WorldToGrid(p)
}

// GridToWorld converts c using a mapper anchored at the world origin.
func GridToWorld(c Cell, tileSize float64) mgl64.Vec3 {
	return NewMapper(tileSize).GridToWorld(c)
}

// PlanarDistance is the ground-plane distance between a and b.
func PlanarDistance(a, b mgl64.Vec3) float64 {
	return math.Hypot(a.X()-b.X(), a.Z()-b.Z())
}

// floorToInt saturates instead of producing undefined conversions for values
// far outside any grid.
func floorToInt(v float64) int {
	const limit = math.MaxInt32
	switch {
	case math.IsNaN(v):
		return math.MinInt32
	case v >= limit:
		return limit
	case v <= -limit:
		return -limit
	default:
		return int(math.Floor(v))
	}
}
