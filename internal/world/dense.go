package world

import (
	"errors"
	"fmt"
)

// ErrDenseMismatch is returned when a dense record count does not match its bounds.
var ErrDenseMismatch = errors.New("dense tile count does not match bounds")

// Dense is the persisted form of a grid: bounds plus every tile in row-major
// order.
type Dense struct {
	Bounds Bounds `json:"bounds"`
	Tiles  []Tile `json:"tiles"`
}

// Export returns a dense copy of the grid.
func (g *Grid) Export() Dense {
	if g == nil {
		return Dense{}
	}
	tiles := make([]Tile, len(g.tiles))
	copy(tiles, g.tiles)
	return Dense{Bounds: g.bounds, Tiles: tiles}
}

// FromDense rebuilds a grid from its persisted form.
func FromDense(d Dense) (*Grid, error) {
	if d.Bounds.Len() == 0 || len(d.Tiles) != d.Bounds.Len() {
		return nil, fmt.Errorf("%w: bounds %dx%d, tiles %d", ErrDenseMismatch, d.Bounds.Width, d.Bounds.Height, len(d.Tiles))
	}
	grid := NewGrid(d.Bounds)
	for i, tile := range d.Tiles {
		grid.SetTile(d.Bounds.cellAt(i), tile)
	}
	grid.version = 0
	return grid, nil
}
