package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"cosmic-nav/server/internal/obstacles"
	"cosmic-nav/server/internal/pathfind"
	"cosmic-nav/server/internal/world"
)

const (
	glyphStart    = 'S'
	glyphGoal     = 'G'
	glyphWaypoint = '*'
	glyphSearched = '+'
	glyphBlocked  = '@'
)

// viewer keeps the state behind one navview session: the terrain, the
// obstacles placed by hand, and the last planned route.
type viewer struct {
	grid      *world.Grid
	tracker   *obstacles.Tracker
	planner   pathfind.Planner
	clearance int

	cursor world.Cell
	start  world.Cell
	goal   world.Cell
	placed map[world.Cell]string
	nextID int

	route   pathfind.Route
	found   bool
	changed int
}

func newViewer(grid *world.Grid, planner pathfind.Planner, clearance int) *viewer {
	bounds := grid.Bounds()
	v := &viewer{
		grid:      grid,
		tracker:   obstacles.NewTracker(grid),
		planner:   planner,
		clearance: clearance,
		start:     world.Cell{X: bounds.MinX, Y: bounds.MinY},
		goal:      world.Cell{X: bounds.MaxX(), Y: bounds.MaxY()},
		placed:    make(map[world.Cell]string),
	}
	v.cursor = v.start
	v.replan()
	return v
}

func (v *viewer) replan() {
	from := v.planner.Mapper.GridToWorld(v.start)
	to := v.planner.Mapper.GridToWorld(v.goal)
	v.route, v.found = v.planner.Plan(from, to, v.grid)
}

func (v *viewer) moveCursor(dx, dy int) {
	next := v.cursor.Offset(dx, dy)
	if v.grid.InBounds(next) {
		v.cursor = next
	}
}

// toggleObstacle places or lifts a single-cell obstacle at the cursor.
func (v *viewer) toggleObstacle() {
	if id, ok := v.placed[v.cursor]; ok {
		v.tracker.Retract(id)
		delete(v.placed, v.cursor)
	} else {
		v.nextID++
		id := fmt.Sprintf("view-%d", v.nextID)
		v.tracker.Apply(obstacles.Record{ID: id, Cells: []world.Cell{v.cursor}, Clearance: v.clearance})
		v.placed[v.cursor] = id
	}
	v.changed = v.tracker.TakeChanges().Len()
	v.replan()
}

// handleKey applies one key press and reports whether the viewer should exit.
func (v *viewer) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		v.moveCursor(0, -1)
	case tcell.KeyDown:
		v.moveCursor(0, 1)
	case tcell.KeyLeft:
		v.moveCursor(-1, 0)
	case tcell.KeyRight:
		v.moveCursor(1, 0)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 's':
			v.start = v.cursor
			v.replan()
		case 'g':
			v.goal = v.cursor
			v.replan()
		case 'o':
			v.toggleObstacle()
		}
	}
	return false
}

func (v *viewer) draw(screen tcell.Screen) {
	screen.Clear()
	bounds := v.grid.Bounds()

	searched := make(map[world.Cell]struct{}, len(v.route.Cells))
	for _, c := range v.route.Cells {
		searched[c] = struct{}{}
	}
	waypoints := make(map[world.Cell]struct{}, len(v.route.Waypoints))
	for _, p := range v.route.Waypoints {
		waypoints[v.planner.Mapper.WorldToGrid(p)] = struct{}{}
	}

	v.grid.Each(func(c world.Cell, tile world.Tile) bool {
		r := world.Glyph(tile.Type)
		style := tileStyle(tile)
		if len(v.tracker.Owners(c)) > 0 {
			r = glyphBlocked
			style = tcell.StyleDefault.Foreground(tcell.ColorRed)
		}
		if _, ok := searched[c]; ok && v.found {
			r = glyphSearched
			style = tcell.StyleDefault.Foreground(tcell.ColorYellow)
		}
		if _, ok := waypoints[c]; ok && v.found {
			r = glyphWaypoint
			style = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
		}
		switch c {
		case v.start:
			r = glyphStart
			style = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
		case v.goal:
			r = glyphGoal
			style = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
		}
		if c == v.cursor {
			style = style.Reverse(true)
		}
		screen.SetContent(c.X-bounds.MinX, c.Y-bounds.MinY, r, nil, style)
		return true
	})

	drawText(screen, 0, bounds.Height+1, tcell.StyleDefault, v.status())
	drawText(screen, 0, bounds.Height+2, tcell.StyleDefault.Dim(true), "arrows move  s start  g goal  o obstacle  q quit")
	screen.Show()
}

func (v *viewer) status() string {
	if !v.found {
		return fmt.Sprintf("no path %v -> %v  obstacles=%d changed=%d", v.start, v.goal, v.tracker.Len(), v.changed)
	}
	return fmt.Sprintf("path %v -> %v  cells=%d waypoints=%d obstacles=%d changed=%d",
		v.start, v.goal, len(v.route.Cells), len(v.route.Waypoints), v.tracker.Len(), v.changed)
}

func tileStyle(tile world.Tile) tcell.Style {
	switch tile.Type {
	case world.TileWater:
		return tcell.StyleDefault.Foreground(tcell.ColorBlue)
	case world.TileCliff:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	case world.TileBridge:
		return tcell.StyleDefault.Foreground(tcell.ColorOlive)
	case world.TileVoid:
		return tcell.StyleDefault.Foreground(tcell.ColorPurple)
	default:
		return tcell.StyleDefault
	}
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		screen.SetContent(x+i, y, r, nil, style)
	}
}
