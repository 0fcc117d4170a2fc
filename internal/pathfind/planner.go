package pathfind

import (
	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/world"
)

// Planner turns world positions into smoothed paths.
type Planner struct {
	Mapper  world.Mapper
	Options Options
}

// Route is the outcome of one planning request.
type Route struct {
	Cells     []world.Cell
	Waypoints []mgl64.Vec3
	Start     world.Cell
	Goal      world.Cell
}

// Plan maps both positions to cells, searches, and smooths the result. A
// waypoint equal to the requester's own position is not emitted, so a
// requester already on its goal cell centre gets a route with no waypoints.
// Returns false when no path exists.
func (p Planner) Plan(from, goal mgl64.Vec3, terrain Terrain) (Route, bool) {
	start := p.Mapper.WorldToGrid(from)
	target := p.Mapper.WorldToGrid(goal)
	route := Route{Start: start, Goal: target}

	cells, ok := Search(start, target, terrain, p.Options)
	if !ok {
		return route, false
	}
	route.Cells = cells

	waypoints := Smooth(cells, terrain, p.Mapper)
	if len(waypoints) > 0 && world.PlanarDistance(waypoints[0], from) < waypointEpsilon {
		waypoints = waypoints[1:]
	}
	route.Waypoints = waypoints
	return route, true
}

// Path wraps the route's waypoints with a travel speed.
func (r Route) Path(speed float64) Path {
	return NewPath(r.Waypoints, speed)
}
