package obstacles

import (
	"fmt"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"cosmic-nav/server/internal/world"
)

type liveRecord struct {
	record    Record
	footprint []world.Cell
}

type cellState struct {
	walkable bool
	cost     float64
}

// Tracker owns every obstacle mark on a grid. A cell stays blocked while at
// least one live record covers it; when the last owner leaves, the cell's
// walkable flag returns to what it was before the first owner arrived.
//
// Tracker is not safe for concurrent use. The simulation calls it only from
// its single write phase.
type Tracker struct {
	grid     *world.Grid
	records  map[string]liveRecord
	owners   map[world.Cell]mapset.Set[string]
	baseline map[world.Cell]bool
	touched  map[world.Cell]cellState
}

// NewTracker binds a tracker to grid.
func NewTracker(grid *world.Grid) *Tracker {
	return &Tracker{
		grid:     grid,
		records:  make(map[string]liveRecord),
		owners:   make(map[world.Cell]mapset.Set[string]),
		baseline: make(map[world.Cell]bool),
		touched:  make(map[world.Cell]cellState),
	}
}

// Apply marks the record's footprint. Applying an ID that is already live
// moves it.
func (t *Tracker) Apply(rec Record) {
	if t == nil || rec.ID == "" {
		return
	}
	if _, ok := t.records[rec.ID]; ok {
		t.Move(rec)
		return
	}
	t.place(rec)
}

// Move retracts the live record with rec.ID, if any, and applies rec in its
// place. Both halves happen inside one call so no reader of the grid can see
// the obstacle in both places or in neither.
func (t *Tracker) Move(rec Record) {
	if t == nil || rec.ID == "" {
		return
	}
	t.Retract(rec.ID)
	t.place(rec)
}

// Retract removes the record's marks. Unknown IDs are ignored. Returns
// whether a live record was removed.
func (t *Tracker) Retract(id string) bool {
	if t == nil {
		return false
	}
	live, ok := t.records[id]
	if !ok {
		return false
	}
	delete(t.records, id)
	for _, c := range live.footprint {
		set, ok := t.owners[c]
		if !ok {
			continue
		}
		set.Remove(id)
		if set.Size() > 0 {
			continue
		}
		delete(t.owners, c)
		t.touch(c)
		t.grid.SetWalkable(c, t.baseline[c])
		delete(t.baseline, c)
	}
	return true
}

func (t *Tracker) place(rec Record) {
	footprint := make([]world.Cell, 0)
	for _, c := range rec.Footprint(t.grid.Bounds()) {
		tile, ok := t.grid.Tile(c)
		if !ok {
			continue
		}
		footprint = append(footprint, c)
		set, ok := t.owners[c]
		if !ok {
			set = mapset.New[string]()
			t.owners[c] = set
			t.baseline[c] = tile.Walkable
			t.touch(c)
			t.grid.SetWalkable(c, false)
		}
		set.Put(rec.ID)
	}
	stored := rec
	stored.Cells = append([]world.Cell(nil), rec.Cells...)
	t.records[rec.ID] = liveRecord{record: stored, footprint: footprint}
}

// SetCorruption forwards a corruption change to the grid so it is journaled
// with the obstacle changes of the same write phase.
func (t *Tracker) SetCorruption(c world.Cell, corruption float64) {
	if t == nil || !t.grid.InBounds(c) {
		return
	}
	t.touch(c)
	t.grid.SetCorruption(c, corruption)
}

func (t *Tracker) touch(c world.Cell) {
	if _, ok := t.touched[c]; ok {
		return
	}
	t.touched[c] = cellState{walkable: t.grid.IsWalkable(c), cost: t.grid.Cost(c)}
}

// TakeChanges returns the cells whose walkability or cost differs from their
// state before the first write since the previous call, then resets the
// journal. A cell blocked and released within the same window is not
// reported.
func (t *Tracker) TakeChanges() ChangeSet {
	changes := ChangeSet{cells: mapset.New[world.Cell]()}
	if t == nil {
		return changes
	}
	for c, before := range t.touched {
		if t.grid.IsWalkable(c) != before.walkable || t.grid.Cost(c) != before.cost {
			changes.cells.Put(c)
		}
	}
	t.touched = make(map[world.Cell]cellState)
	return changes
}

// Live returns a copy of the live record with the given ID.
func (t *Tracker) Live(id string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	live, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	rec := live.record
	rec.Cells = append([]world.Cell(nil), live.record.Cells...)
	return rec, true
}

// Len reports the number of live records.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Owners lists the record IDs covering c, sorted.
func (t *Tracker) Owners(c world.Cell) []string {
	if t == nil {
		return nil
	}
	set, ok := t.owners[c]
	if !ok {
		return nil
	}
	ids := make([]string, 0, set.Size())
	set.Each(func(id string) {
		ids = append(ids, id)
	})
	sort.Strings(ids)
	return ids
}

// Audit checks the ownership tables against the grid and returns one message
// per inconsistency. An empty result means every mark is owned and every
// owned cell is marked.
func (t *Tracker) Audit() []string {
	if t == nil {
		return nil
	}
	var issues []string
	for c, set := range t.owners {
		if set.Size() == 0 {
			issues = append(issues, fmt.Sprintf("cell %d,%d has an empty owner set", c.X, c.Y))
		}
		if tile, ok := t.grid.Tile(c); ok && tile.Walkable {
			issues = append(issues, fmt.Sprintf("cell %d,%d is owned but walkable", c.X, c.Y))
		}
		if _, ok := t.baseline[c]; !ok {
			issues = append(issues, fmt.Sprintf("cell %d,%d is owned without a baseline", c.X, c.Y))
		}
		set.Each(func(id string) {
			if _, ok := t.records[id]; !ok {
				issues = append(issues, fmt.Sprintf("cell %d,%d is held by retracted record %q", c.X, c.Y, id))
			}
		})
	}
	for c := range t.baseline {
		if _, ok := t.owners[c]; !ok {
			issues = append(issues, fmt.Sprintf("cell %d,%d kept a baseline after its last owner left", c.X, c.Y))
		}
	}
	sort.Strings(issues)
	return issues
}

// ChangeSet is the set of cells altered by one write phase.
type ChangeSet struct {
	cells mapset.Set[world.Cell]
}

// Has reports whether c changed. The zero ChangeSet is empty.
func (s ChangeSet) Has(c world.Cell) bool {
	if s.cells.Size() == 0 {
		return false
	}
	return s.cells.Has(c)
}

// Len reports the number of changed cells.
func (s ChangeSet) Len() int {
	return s.cells.Size()
}

// Cells lists the changed cells in row-major order.
func (s ChangeSet) Cells() []world.Cell {
	out := make([]world.Cell, 0, s.cells.Size())
	if s.cells.Size() == 0 {
		return out
	}
	s.cells.Each(func(c world.Cell) {
		out = append(out, c)
	})
	sortCells(out)
	return out
}
