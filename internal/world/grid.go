package world

// Cell addresses a single grid cell.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Offset returns the cell displaced by (dx, dy).
func (c Cell) Offset(dx, dy int) Cell {
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// Bounds is the fixed rectangular extent of a grid.
type Bounds struct {
	MinX   int `json:"minX"`
	MinY   int `json:"minY"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CenteredBounds returns bounds of the given size whose middle cell is (0,0).
func CenteredBounds(width, height int) Bounds {
	return Bounds{MinX: -(width / 2), MinY: -(height / 2), Width: width, Height: height}
}

// Contains reports whether c lies inside the bounds.
func (b Bounds) Contains(c Cell) bool {
	return c.X >= b.MinX && c.Y >= b.MinY && c.X < b.MinX+b.Width && c.Y < b.MinY+b.Height
}

// Len reports the number of cells covered.
func (b Bounds) Len() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// MaxX is the largest valid column.
func (b Bounds) MaxX() int { return b.MinX + b.Width - 1 }

// MaxY is the largest valid row.
func (b Bounds) MaxY() int { return b.MinY + b.Height - 1 }

func (b Bounds) index(c Cell) int {
	return (c.Y-b.MinY)*b.Width + (c.X - b.MinX)
}

func (b Bounds) cellAt(idx int) Cell {
	return Cell{X: b.MinX + idx%b.Width, Y: b.MinY + idx/b.Width}
}

// Grid is the authoritative terrain state. It is mutated in place for the
// lifetime of the simulation and is not safe for concurrent writers; the
// simulation engine funnels every write through its per-tick commit phase.
type Grid struct {
	bounds  Bounds
	tiles   []Tile // row-major
	version uint64
}

// NewGrid creates a grid of walkable ground tiles covering bounds.
func NewGrid(bounds Bounds) *Grid {
	if bounds.Width <= 0 {
		bounds.Width = 1
	}
	if bounds.Height <= 0 {
		bounds.Height = 1
	}
	tiles := make([]Tile, bounds.Len())
	for i := range tiles {
		tiles[i] = NewTile(TileGround)
	}
	return &Grid{bounds: bounds, tiles: tiles}
}

// Bounds reports the grid extent.
func (g *Grid) Bounds() Bounds {
	if g == nil {
		return Bounds{}
	}
	return g.bounds
}

// InBounds reports whether c addresses a cell of the grid.
func (g *Grid) InBounds(c Cell) bool {
	return g != nil && g.bounds.Contains(c)
}

// Version increments on every effective mutation.
func (g *Grid) Version() uint64 {
	if g == nil {
		return 0
	}
	return g.version
}

// Tile returns the tile at c.
func (g *Grid) Tile(c Cell) (Tile, bool) {
	if !g.InBounds(c) {
		return Tile{}, false
	}
	return g.tiles[g.bounds.index(c)], true
}

// IsWalkable reports whether a unit may occupy c. Out-of-bounds cells are
// never walkable.
func (g *Grid) IsWalkable(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	return g.tiles[g.bounds.index(c)].Passable()
}

// Cost returns the cost of entering c, or Impassable.
func (g *Grid) Cost(c Cell) float64 {
	if !g.InBounds(c) {
		return Impassable
	}
	return g.tiles[g.bounds.index(c)].EffectiveCost()
}

// SetWalkable sets the walkable flag of c. Tile type rules still apply on top.
func (g *Grid) SetWalkable(c Cell, walkable bool) {
	if !g.InBounds(c) {
		return
	}
	t := &g.tiles[g.bounds.index(c)]
	if t.Walkable == walkable {
		return
	}
	t.Walkable = walkable
	g.version++
}

// SetCorruption sets the corruption level of c, clamped to [0,1].
func (g *Grid) SetCorruption(c Cell, corruption float64) {
	if !g.InBounds(c) {
		return
	}
	t := &g.tiles[g.bounds.index(c)]
	v := clampUnit(corruption)
	if t.Corruption == v {
		return
	}
	t.Corruption = v
	g.version++
}

// SetTile replaces the tile at c.
func (g *Grid) SetTile(c Cell, tile Tile) {
	if !g.InBounds(c) {
		return
	}
	tile.Corruption = clampUnit(tile.Corruption)
	if tile.BaseCost < MinBaseCost {
		tile.BaseCost = MinBaseCost
	}
	g.tiles[g.bounds.index(c)] = tile
	g.version++
}

// SetType changes the tile type at c and resets its base cost to the type
// default. The walkable flag and corruption level are preserved.
func (g *Grid) SetType(c Cell, t TileType) {
	if !g.InBounds(c) {
		return
	}
	tile := &g.tiles[g.bounds.index(c)]
	tile.Type = t
	tile.BaseCost = DefaultBaseCost(t)
	g.version++
}

// Each visits every cell in row-major order until fn returns false.
func (g *Grid) Each(fn func(Cell, Tile) bool) {
	if g == nil || fn == nil {
		return
	}
	for i, tile := range g.tiles {
		if !fn(g.bounds.cellAt(i), tile) {
			return
		}
	}
}

// Clone returns an independent copy. Clones are handed to concurrent readers
// as immutable snapshots.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	tiles := make([]Tile, len(g.tiles))
	copy(tiles, g.tiles)
	return &Grid{bounds: g.bounds, tiles: tiles, version: g.version}
}
