package world

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestWorldToGridCenterMapsToOrigin(t *testing.T) {
	if c := WorldToGrid(mgl64.Vec3{0, 0, 0}, 10); c != (Cell{}) {
		t.Fatalf("expected world origin in cell (0,0), got %+v", c)
	}
	if c := WorldToGrid(mgl64.Vec3{4.9, 100, -4.9}, 10); c != (Cell{}) {
		t.Fatalf("expected (4.9,-4.9) in cell (0,0), got %+v", c)
	}
	if c := WorldToGrid(mgl64.Vec3{5, 0, -5.1}, 10); c != (Cell{X: 1, Y: -1}) {
		t.Fatalf("expected (5,-5.1) in cell (1,-1), got %+v", c)
	}
}

func TestGridToWorldReturnsCellCenter(t *testing.T) {
	p := GridToWorld(Cell{X: 2, Y: -3}, 10)
	if p.X() != 20 || p.Z() != -30 || p.Y() != 0 {
		t.Fatalf("expected (20,0,-30), got %v", p)
	}
}

func TestMapperRoundTrip(t *testing.T) {
	for _, size := range []float64{0.5, 1, 3, 10, 32.75} {
		m := Mapper{TileSize: size, Origin: mgl64.Vec3{-13.25, 4, 7.5}}
		for y := -20; y <= 20; y++ {
			for x := -20; x <= 20; x++ {
				c := Cell{X: x, Y: y}
				if got := m.WorldToGrid(m.GridToWorld(c)); got != c {
					t.Fatalf("size %v: round trip of %+v gave %+v", size, c, got)
				}
			}
		}
	}
}

func TestMapperIgnoresHeight(t *testing.T) {
	m := NewMapper(4)
	a := m.WorldToGrid(mgl64.Vec3{6, -1000, 9})
	b := m.WorldToGrid(mgl64.Vec3{6, 1000, 9})
	if a != b {
		t.Fatalf("height changed the cell: %+v vs %+v", a, b)
	}
}

func TestMapperNonPositiveTileSizeFallsBack(t *testing.T) {
	m := NewMapper(0)
	if got := m.WorldToGrid(m.GridToWorld(Cell{X: 3, Y: 4})); got != (Cell{X: 3, Y: 4}) {
		t.Fatalf("fallback tile size broke the round trip: %+v", got)
	}
}

func TestParseLayoutCentered(t *testing.T) {
	grid, err := ParseLayout(`
		.~.
		.=.
		#v.
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tile, _ := grid.Tile(Cell{X: 0, Y: -1}); tile.Type != TileWater {
		t.Fatalf("expected water at (0,-1), got %v", tile.Type)
	}
	if tile, _ := grid.Tile(Cell{X: 0, Y: 0}); tile.Type != TileBridge || tile.BaseCost != 1.2 {
		t.Fatalf("expected bridge at (0,0), got %+v", tile)
	}
	if tile, _ := grid.Tile(Cell{X: -1, Y: 1}); tile.Type != TileCliff {
		t.Fatalf("expected cliff at (-1,1), got %v", tile.Type)
	}
}

func TestParseLayoutErrors(t *testing.T) {
	if _, err := ParseLayout("  \n "); !errors.Is(err, ErrLayoutEmpty) {
		t.Fatalf("expected ErrLayoutEmpty, got %v", err)
	}
	if _, err := ParseLayout("...\n.."); !errors.Is(err, ErrLayoutRagged) {
		t.Fatalf("expected ErrLayoutRagged, got %v", err)
	}
	if _, err := ParseLayout("..x"); !errors.Is(err, ErrUnknownGlyph) {
		t.Fatalf("expected ErrUnknownGlyph, got %v", err)
	}
}
