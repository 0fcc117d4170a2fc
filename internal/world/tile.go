package world

import (
	"fmt"
	"math"
)

// TileType identifies the terrain class of a cell.
type TileType uint8

const (
	TileGround TileType = iota // Default open terrain
	TileBridge                 // Crossing over water, slightly slower
	TileWater                  // Never walkable
	TileCliff                  // Never walkable
	TileVoid                   // Walkable until corruption reaches VoidCorruptionLimit
	tileTypeCount              // sentinel
)

const (
	// VoidCorruptionLimit is the corruption level at which a void cell stops
	// being walkable.
	VoidCorruptionLimit = 0.9
	// CorruptionCostFactor scales how much corruption inflates a void cell's cost.
	CorruptionCostFactor = 0.5
	// MinBaseCost is the floor applied to every base cost.
	MinBaseCost = 1.0
)

// Impassable is the cost reported for cells that cannot be entered.
var Impassable = math.Inf(1)

// IsImpassable reports whether cost is the impassable sentinel.
func IsImpassable(cost float64) bool {
	return math.IsInf(cost, 1)
}

var tileTypeNames = [tileTypeCount]string{
	TileGround: "ground",
	TileBridge: "bridge",
	TileWater:  "water",
	TileCliff:  "cliff",
	TileVoid:   "void",
}

func (t TileType) String() string {
	if t >= tileTypeCount {
		return fmt.Sprintf("TileType(%d)", uint8(t))
	}
	return tileTypeNames[t]
}

// MarshalText encodes the tile type by name so dense exports stay readable.
func (t TileType) MarshalText() ([]byte, error) {
	if t >= tileTypeCount {
		return nil, fmt.Errorf("unknown tile type %d", uint8(t))
	}
	return []byte(tileTypeNames[t]), nil
}

// UnmarshalText decodes a tile type name.
func (t *TileType) UnmarshalText(text []byte) error {
	parsed, ok := ParseTileType(string(text))
	if !ok {
		return fmt.Errorf("unknown tile type %q", text)
	}
	*t = parsed
	return nil
}

// ParseTileType resolves a tile type from its name.
func ParseTileType(name string) (TileType, bool) {
	for i, candidate := range tileTypeNames {
		if candidate == name {
			return TileType(i), true
		}
	}
	return 0, false
}

// DefaultBaseCost returns the base movement cost a freshly placed tile of the
// given type starts with.
func DefaultBaseCost(t TileType) float64 {
	switch t {
	case TileGround:
		return 1.0
	case TileBridge:
		return 1.2
	case TileVoid:
		return 2.0
	case TileWater, TileCliff:
		return 1.0
	default:
		return 1.0
	}
}

// typeAllowsPassage applies the per-type walkability rule. Void depends on the
// corruption level; water and cliffs never allow passage.
func typeAllowsPassage(t TileType, corruption float64) bool {
	switch t {
	case TileGround, TileBridge:
		return true
	case TileWater, TileCliff:
		return false
	case TileVoid:
		return corruption < VoidCorruptionLimit
	default:
		return false
	}
}

// Tile holds the per-cell terrain state.
type Tile struct {
	Type       TileType `json:"type"`
	Walkable   bool     `json:"walkable"`
	BaseCost   float64  `json:"baseCost"`
	Corruption float64  `json:"corruption"`
}

// NewTile returns a walkable tile of the given type with its default cost.
func NewTile(t TileType) Tile {
	return Tile{Type: t, Walkable: true, BaseCost: DefaultBaseCost(t)}
}

// Passable combines the walkable flag with the tile type rule.
func (t Tile) Passable() bool {
	return t.Walkable && typeAllowsPassage(t.Type, t.Corruption)
}

// EffectiveCost returns the cost of entering the tile, or Impassable.
func (t Tile) EffectiveCost() float64 {
	if !t.Passable() {
		return Impassable
	}
	base := math.Max(t.BaseCost, MinBaseCost)
	switch t.Type {
	case TileVoid:
		return base * (1 + t.Corruption*CorruptionCostFactor)
	default:
		return base
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
