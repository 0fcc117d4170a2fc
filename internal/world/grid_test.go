package world

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewGridDefaultsToWalkableGround(t *testing.T) {
	grid := NewGrid(CenteredBounds(17, 17))
	b := grid.Bounds()
	if b.MinX != -8 || b.MaxX() != 8 || b.MinY != -8 || b.MaxY() != 8 {
		t.Fatalf("expected -8..8 bounds, got %+v", b)
	}
	for y := b.MinY; y <= b.MaxY(); y++ {
		for x := b.MinX; x <= b.MaxX(); x++ {
			c := Cell{X: x, Y: y}
			if !grid.IsWalkable(c) {
				t.Fatalf("cell %+v should be walkable", c)
			}
			if cost := grid.Cost(c); cost != 1.0 {
				t.Fatalf("cell %+v cost=%v, want 1", c, cost)
			}
		}
	}
}

func TestGridOutOfBoundsIsImpassable(t *testing.T) {
	grid := NewGrid(Bounds{Width: 4, Height: 4})
	for _, c := range []Cell{{X: -1, Y: 0}, {X: 0, Y: -1}, {X: 4, Y: 0}, {X: 0, Y: 4}, {X: 1 << 30, Y: -(1 << 30)}} {
		if grid.IsWalkable(c) {
			t.Fatalf("out-of-bounds cell %+v should not be walkable", c)
		}
		if !IsImpassable(grid.Cost(c)) {
			t.Fatalf("out-of-bounds cell %+v should be impassable", c)
		}
	}
	before := grid.Version()
	grid.SetWalkable(Cell{X: -1, Y: -1}, false)
	grid.SetCorruption(Cell{X: 9, Y: 9}, 1)
	if grid.Version() != before {
		t.Fatalf("out-of-bounds writes must not mutate the grid")
	}
}

func TestWaterAndCliffNeverWalkable(t *testing.T) {
	grid := NewGrid(Bounds{Width: 3, Height: 1})
	grid.SetTile(Cell{X: 0}, NewTile(TileWater))
	grid.SetTile(Cell{X: 1}, NewTile(TileCliff))
	grid.SetWalkable(Cell{X: 0}, true)
	grid.SetWalkable(Cell{X: 1}, true)
	if grid.IsWalkable(Cell{X: 0}) || grid.IsWalkable(Cell{X: 1}) {
		t.Fatalf("water and cliff must stay unwalkable")
	}
	if !IsImpassable(grid.Cost(Cell{X: 0})) {
		t.Fatalf("water cost should be impassable")
	}
}

func TestVoidCorruptionThresholdAndCost(t *testing.T) {
	grid := NewGrid(Bounds{Width: 1, Height: 1})
	c := Cell{}
	grid.SetTile(c, NewTile(TileVoid))

	grid.SetCorruption(c, 0.4)
	if !grid.IsWalkable(c) {
		t.Fatalf("void with corruption 0.4 should be walkable")
	}
	want := 2.0 * (1 + 0.4*0.5)
	if got := grid.Cost(c); math.Abs(got-want) > 1e-9 {
		t.Fatalf("void cost=%v, want %v", got, want)
	}

	grid.SetCorruption(c, 0.9)
	if grid.IsWalkable(c) {
		t.Fatalf("void at the corruption limit should be unwalkable")
	}

	grid.SetCorruption(c, 0.95)
	if grid.IsWalkable(c) {
		t.Fatalf("void with corruption 0.95 should be unwalkable")
	}

	grid.SetCorruption(c, 7)
	tile, _ := grid.Tile(c)
	if tile.Corruption != 1 {
		t.Fatalf("corruption should clamp to 1, got %v", tile.Corruption)
	}
}

func TestSetWalkableOverridesGround(t *testing.T) {
	grid := NewGrid(Bounds{Width: 2, Height: 2})
	c := Cell{X: 1, Y: 1}
	grid.SetWalkable(c, false)
	if grid.IsWalkable(c) {
		t.Fatalf("cleared cell should be unwalkable")
	}
	grid.SetWalkable(c, true)
	if !grid.IsWalkable(c) {
		t.Fatalf("restored cell should be walkable")
	}
}

func TestEachIsRowMajor(t *testing.T) {
	grid := NewGrid(Bounds{MinX: -1, MinY: 5, Width: 3, Height: 2})
	var visited []Cell
	grid.Each(func(c Cell, _ Tile) bool {
		visited = append(visited, c)
		return true
	})
	want := []Cell{{-1, 5}, {0, 5}, {1, 5}, {-1, 6}, {0, 6}, {1, 6}}
	if len(visited) != len(want) {
		t.Fatalf("expected %d cells, got %d", len(want), len(visited))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visit %d: got %+v want %+v", i, visited[i], want[i])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	grid := NewGrid(Bounds{Width: 2, Height: 2})
	snapshot := grid.Clone()
	grid.SetWalkable(Cell{}, false)
	if !snapshot.IsWalkable(Cell{}) {
		t.Fatalf("snapshot must not observe later writes")
	}
}

func TestDenseRoundTrip(t *testing.T) {
	grid, err := ParseLayout("..~\nv=#")
	if err != nil {
		t.Fatalf("parse layout: %v", err)
	}
	grid.SetCorruption(Cell{X: -1, Y: 0}, 0.5)

	data, err := json.Marshal(grid.Export())
	if err != nil {
		t.Fatalf("marshal dense: %v", err)
	}
	var dense Dense
	if err := json.Unmarshal(data, &dense); err != nil {
		t.Fatalf("unmarshal dense: %v", err)
	}
	restored, err := FromDense(dense)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if FormatLayout(restored) != FormatLayout(grid) {
		t.Fatalf("layout mismatch:\n%s\nvs\n%s", FormatLayout(restored), FormatLayout(grid))
	}
	tile, _ := restored.Tile(Cell{X: -1, Y: 0})
	if tile.Type != TileVoid || tile.Corruption != 0.5 {
		t.Fatalf("unexpected restored tile %+v", tile)
	}
}

func TestFromDenseRejectsMismatch(t *testing.T) {
	_, err := FromDense(Dense{Bounds: Bounds{Width: 2, Height: 2}, Tiles: make([]Tile, 3)})
	if !errors.Is(err, ErrDenseMismatch) {
		t.Fatalf("expected ErrDenseMismatch, got %v", err)
	}
}
