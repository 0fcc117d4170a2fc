package world

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLayoutEmpty is returned when a layout has no rows.
	ErrLayoutEmpty = errors.New("layout has no rows")
	// ErrLayoutRagged is returned when layout rows differ in length.
	ErrLayoutRagged = errors.New("layout rows have different lengths")
	// ErrUnknownGlyph is returned for characters that do not name a tile type.
	ErrUnknownGlyph = errors.New("unknown layout glyph")
)

// Layout glyphs. Row zero of a layout is the smallest y.
const (
	GlyphGround = '.'
	GlyphBridge = '='
	GlyphWater  = '~'
	GlyphCliff  = '#'
	GlyphVoid   = 'v'
)

func glyphTile(r rune) (TileType, bool) {
	switch r {
	case GlyphGround:
		return TileGround, true
	case GlyphBridge:
		return TileBridge, true
	case GlyphWater:
		return TileWater, true
	case GlyphCliff:
		return TileCliff, true
	case GlyphVoid:
		return TileVoid, true
	default:
		return 0, false
	}
}

// Glyph returns the layout character for t.
func Glyph(t TileType) rune {
	switch t {
	case TileGround:
		return GlyphGround
	case TileBridge:
		return GlyphBridge
	case TileWater:
		return GlyphWater
	case TileCliff:
		return GlyphCliff
	case TileVoid:
		return GlyphVoid
	default:
		return '?'
	}
}

// ParseLayout builds a grid from a glyph map whose middle cell is (0,0).
func ParseLayout(text string) (*Grid, error) {
	rows, err := layoutRows(text)
	if err != nil {
		return nil, err
	}
	bounds := CenteredBounds(len([]rune(rows[0])), len(rows))
	return fillLayout(rows, bounds)
}

// ParseLayoutAt builds a grid from a glyph map whose first glyph is at origin.
func ParseLayoutAt(text string, origin Cell) (*Grid, error) {
	rows, err := layoutRows(text)
	if err != nil {
		return nil, err
	}
	bounds := Bounds{MinX: origin.X, MinY: origin.Y, Width: len([]rune(rows[0])), Height: len(rows)}
	return fillLayout(rows, bounds)
}

func layoutRows(text string) ([]string, error) {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		return nil, ErrLayoutEmpty
	}
	width := len([]rune(rows[0]))
	for i, row := range rows {
		if len([]rune(row)) != width {
			return nil, fmt.Errorf("row %d: %w", i, ErrLayoutRagged)
		}
	}
	return rows, nil
}

func fillLayout(rows []string, bounds Bounds) (*Grid, error) {
	grid := NewGrid(bounds)
	for y, row := range rows {
		for x, r := range []rune(row) {
			t, ok := glyphTile(r)
			if !ok {
				return nil, fmt.Errorf("%w %q at row %d col %d", ErrUnknownGlyph, r, y, x)
			}
			grid.SetTile(Cell{X: bounds.MinX + x, Y: bounds.MinY + y}, NewTile(t))
		}
	}
	return grid, nil
}

// FormatLayout renders the grid as a glyph map. Cells whose walkable flag is
// cleared are drawn as 'X'.
func FormatLayout(g *Grid) string {
	if g == nil {
		return ""
	}
	b := g.Bounds()
	var sb strings.Builder
	sb.Grow(b.Len() + b.Height)
	g.Each(func(c Cell, t Tile) bool {
		if t.Walkable {
			sb.WriteRune(Glyph(t.Type))
		} else {
			sb.WriteRune('X')
		}
		if c.X == b.MaxX() {
			sb.WriteByte('\n')
		}
		return true
	})
	return sb.String()
}
