// Package replan decides when a unit's path must be recomputed.
//
// The dispatcher never searches itself. It turns movement commands, committed
// grid changes and stalled movement into Requests, and accepts finished paths
// back through Resolve, discarding any result whose request has been
// superseded in the meantime.
package replan

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/pathfind"
	"cosmic-nav/server/internal/world"
)

const (
	// DefaultStuckSpeed is the speed, in world units per second, below which
	// a unit with a path counts as stalled.
	DefaultStuckSpeed = 0.5
	// DefaultStuckTimeoutTicks is how many consecutive stalled ticks trigger
	// a replan.
	DefaultStuckTimeoutTicks = 6
	// DefaultCooldownTicks is the minimum gap between two stuck replans of
	// the same unit.
	DefaultCooldownTicks = 8
)

// Trigger names why a request was raised.
type Trigger string

const (
	TriggerCommand  Trigger = "command"
	TriggerObstacle Trigger = "obstacle"
	TriggerStuck    Trigger = "stuck"
	TriggerPosition Trigger = "position"
)

// Config tunes trigger thresholds.
type Config struct {
	Mapper world.Mapper
	// StuckSpeed of zero disables stuck detection.
	StuckSpeed        float64
	StuckTimeoutTicks int
	CooldownTicks     int
	// ArriveRadius is the planar distance from the goal at which a path is
	// considered finished.
	ArriveRadius float64
	// DefaultSpeed applies to commands that carry no positive speed.
	DefaultSpeed float64
}

func (c Config) normalized() Config {
	if c.StuckSpeed < 0 {
		c.StuckSpeed = 0
	}
	if c.StuckTimeoutTicks <= 0 {
		c.StuckTimeoutTicks = DefaultStuckTimeoutTicks
	}
	if c.CooldownTicks < 0 {
		c.CooldownTicks = 0
	}
	if c.ArriveRadius < 0 {
		c.ArriveRadius = 0
	}
	if c.DefaultSpeed <= 0 {
		c.DefaultSpeed = 1
	}
	return c
}

// Request asks the planner for a path. Generation identifies the unit state
// the request was cut from.
type Request struct {
	UnitID     string
	From       mgl64.Vec3
	Goal       mgl64.Vec3
	Speed      float64
	Trigger    Trigger
	Generation uint64
}

// Status is a read-only view of one unit.
type Status struct {
	ID          string        `json:"id"`
	Position    mgl64.Vec3    `json:"position"`
	HasPosition bool          `json:"hasPosition"`
	Goal        *mgl64.Vec3   `json:"goal,omitempty"`
	Path        pathfind.Path `json:"path"`
	Pending     bool          `json:"pending"`
	Blocked     bool          `json:"blocked"`
	StallTicks  int           `json:"stallTicks"`
	Cooldown    int           `json:"cooldown"`
	Generation  uint64        `json:"generation"`
}

type unitState struct {
	id          string
	position    mgl64.Vec3
	hasPosition bool
	lastSample  mgl64.Vec3
	hasSample   bool

	goal    mgl64.Vec3
	hasGoal bool
	speed   float64
	path    pathfind.Path

	generation uint64
	pending    bool
	trigger    Trigger
	blocked    bool

	stallTicks int
	cooldown   int
}

func (u *unitState) active() bool {
	return u.hasGoal && !u.path.Empty()
}

func (u *unitState) request(trigger Trigger) {
	u.generation++
	u.pending = true
	u.trigger = trigger
	u.stallTicks = 0
}

// Dispatcher tracks per-unit navigation state. It is not safe for concurrent
// use; the engine drives it from the simulation goroutine.
type Dispatcher struct {
	cfg   Config
	units map[string]*unitState
}

func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{cfg: cfg.normalized(), units: make(map[string]*unitState)}
}

// Config returns the normalized configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

func (d *Dispatcher) unit(id string) *unitState {
	u, ok := d.units[id]
	if !ok {
		u = &unitState{id: id}
		d.units[id] = u
	}
	return u
}

// Has reports whether the unit is known.
func (d *Dispatcher) Has(id string) bool {
	_, ok := d.units[id]
	return ok
}

// Len reports the number of known units.
func (d *Dispatcher) Len() int {
	return len(d.units)
}

// Command records a new goal for the unit, superseding any path or in-flight
// request. A unit without a known position waits for its first report.
func (d *Dispatcher) Command(id string, goal mgl64.Vec3, speed float64) {
	if id == "" {
		return
	}
	u := d.unit(id)
	if speed <= 0 {
		speed = d.cfg.DefaultSpeed
	}
	u.goal = goal
	u.hasGoal = true
	u.speed = speed
	u.blocked = false
	u.cooldown = 0
	u.request(TriggerCommand)
}

// SetPath installs an explicit path without searching. Its last waypoint
// becomes the goal for later replans. Returns the installed path.
func (d *Dispatcher) SetPath(id string, waypoints []mgl64.Vec3, speed float64) (pathfind.Path, bool) {
	if id == "" {
		return pathfind.Path{}, false
	}
	if speed <= 0 {
		speed = d.cfg.DefaultSpeed
	}
	path := pathfind.NewPath(waypoints, speed)
	u := d.unit(id)
	u.generation++
	u.pending = false
	u.blocked = false
	u.stallTicks = 0
	u.cooldown = 0
	u.speed = speed
	u.path = path
	goal, ok := path.Goal()
	u.goal = goal
	u.hasGoal = ok
	return path.Clone(), ok
}

// Stop drops the unit's goal and path.
func (d *Dispatcher) Stop(id string) bool {
	u, ok := d.units[id]
	if !ok {
		return false
	}
	u.generation++
	u.pending = false
	u.blocked = false
	u.hasGoal = false
	u.path = pathfind.Path{}
	u.stallTicks = 0
	return true
}

// Remove forgets the unit. In-flight results for it are discarded.
func (d *Dispatcher) Remove(id string) bool {
	if _, ok := d.units[id]; !ok {
		return false
	}
	delete(d.units, id)
	return true
}

// ReportPosition records the unit's current position. The first report for a
// unit with a goal but no path raises a request.
func (d *Dispatcher) ReportPosition(id string, pos mgl64.Vec3) {
	if id == "" {
		return
	}
	u := d.unit(id)
	first := !u.hasPosition
	u.position = pos
	u.hasPosition = true
	if first && u.hasGoal && u.path.Empty() && !u.pending {
		u.request(TriggerPosition)
	}
}

// GridChanged raises an obstacle request for every unit whose remaining path
// touches a changed cell. Units whose last search failed are retried on any
// change since a new route may have opened.
func (d *Dispatcher) GridChanged(changed func(world.Cell) bool) []string {
	if changed == nil {
		return nil
	}
	var hit []string
	for _, id := range d.sortedIDs() {
		u := d.units[id]
		if !u.hasGoal || u.pending {
			continue
		}
		if u.blocked {
			u.blocked = false
			u.request(TriggerObstacle)
			hit = append(hit, id)
			continue
		}
		if u.path.Empty() {
			continue
		}
		from := u.position
		if !u.hasPosition {
			from = u.path.Waypoints[0]
		}
		if u.path.Crosses(from, d.cfg.Mapper, changed) {
			u.request(TriggerObstacle)
			hit = append(hit, id)
		}
	}
	return hit
}

// Tick advances per-unit timers by one simulation step of dt seconds. It
// clears paths of units within ArriveRadius of their final waypoint and
// raises stuck requests. The final waypoint is a cell centre, so an off-centre
// goal is reached when the unit stands on that centre.
// Returns the IDs of units that arrived this tick.
func (d *Dispatcher) Tick(dt float64) (arrived []string, stuck []string) {
	for _, id := range d.sortedIDs() {
		u := d.units[id]
		if u.cooldown > 0 {
			u.cooldown--
		}
		moved := 0.0
		if u.hasPosition && u.hasSample {
			moved = world.PlanarDistance(u.position, u.lastSample)
		}
		sampled := u.hasSample
		u.lastSample = u.position
		u.hasSample = u.hasPosition

		if !u.active() || !u.hasPosition {
			u.stallTicks = 0
			continue
		}
		if target, _ := u.path.Goal(); world.PlanarDistance(u.position, target) <= d.cfg.ArriveRadius {
			u.hasGoal = false
			u.path = pathfind.Path{}
			u.generation++
			u.pending = false
			u.stallTicks = 0
			arrived = append(arrived, id)
			continue
		}
		if u.pending || !sampled {
			continue
		}
		speed := 0.0
		if dt > 0 {
			speed = moved / dt
		}
		if speed >= d.cfg.StuckSpeed {
			u.stallTicks = 0
			continue
		}
		u.stallTicks++
		if u.stallTicks < d.cfg.StuckTimeoutTicks || u.cooldown > 0 {
			continue
		}
		u.request(TriggerStuck)
		u.cooldown = d.cfg.CooldownTicks
		stuck = append(stuck, id)
	}
	return arrived, stuck
}

// Requests returns every pending request in unit ID order and marks them in
// flight. Units without a known position stay pending.
func (d *Dispatcher) Requests() []Request {
	var out []Request
	for _, id := range d.sortedIDs() {
		u := d.units[id]
		if !u.pending || !u.hasGoal || !u.hasPosition {
			continue
		}
		u.pending = false
		out = append(out, Request{
			UnitID:     id,
			From:       u.position,
			Goal:       u.goal,
			Speed:      u.speed,
			Trigger:    u.trigger,
			Generation: u.generation,
		})
	}
	return out
}

// Resolve installs the outcome of a request. A result for a unit whose state
// moved on since the request was cut is dropped and false is returned. A
// failed search clears the path and marks the unit blocked; the goal is kept.
// A successful search with no waypoints means the unit already stands on its
// goal, and the goal is dropped.
func (d *Dispatcher) Resolve(req Request, path pathfind.Path, ok bool) bool {
	u, exists := d.units[req.UnitID]
	if !exists || u.generation != req.Generation || !u.hasGoal {
		return false
	}
	u.stallTicks = 0
	if !ok {
		u.path = pathfind.Path{}
		u.blocked = true
		return true
	}
	u.blocked = false
	if path.Empty() {
		u.hasGoal = false
		u.path = pathfind.Path{}
		u.generation++
		return true
	}
	u.path = path.Clone()
	return true
}

// Path returns a copy of the unit's current path.
func (d *Dispatcher) Path(id string) (pathfind.Path, bool) {
	u, ok := d.units[id]
	if !ok || u.path.Empty() {
		return pathfind.Path{}, false
	}
	return u.path.Clone(), true
}

// Status lists every unit in ID order.
func (d *Dispatcher) Status() []Status {
	out := make([]Status, 0, len(d.units))
	for _, id := range d.sortedIDs() {
		u := d.units[id]
		status := Status{
			ID:          id,
			Position:    u.position,
			HasPosition: u.hasPosition,
			Path:        u.path.Clone(),
			Pending:     u.pending,
			Blocked:     u.blocked,
			StallTicks:  u.stallTicks,
			Cooldown:    u.cooldown,
			Generation:  u.generation,
		}
		if u.hasGoal {
			goal := u.goal
			status.Goal = &goal
		}
		out = append(out, status)
	}
	return out
}

func (d *Dispatcher) sortedIDs() []string {
	ids := make([]string, 0, len(d.units))
	for id := range d.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
