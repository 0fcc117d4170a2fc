package pathfind

import (
	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/world"
)

// waypointEpsilon is the planar distance below which two waypoints count as
// the same position.
const waypointEpsilon = 1e-6

// Path is the waypoint queue handed to the movement layer.
type Path struct {
	Waypoints []mgl64.Vec3
	Speed     float64
}

// NewPath copies the waypoints, dropping consecutive duplicates.
func NewPath(waypoints []mgl64.Vec3, speed float64) Path {
	out := make([]mgl64.Vec3, 0, len(waypoints))
	for _, wp := range waypoints {
		if n := len(out); n > 0 && world.PlanarDistance(out[n-1], wp) < waypointEpsilon {
			continue
		}
		out = append(out, wp)
	}
	return Path{Waypoints: out, Speed: speed}
}

// Empty reports whether the path has no waypoints left.
func (p Path) Empty() bool { return len(p.Waypoints) == 0 }

// Goal returns the final waypoint.
func (p Path) Goal() (mgl64.Vec3, bool) {
	if len(p.Waypoints) == 0 {
		return mgl64.Vec3{}, false
	}
	return p.Waypoints[len(p.Waypoints)-1], true
}

// Clone returns a path that shares no storage with p.
func (p Path) Clone() Path {
	if p.Waypoints == nil {
		return Path{Speed: p.Speed}
	}
	out := make([]mgl64.Vec3, len(p.Waypoints))
	copy(out, p.Waypoints)
	return Path{Waypoints: out, Speed: p.Speed}
}

// Remaining returns the waypoints the unit has not reached yet. The movement
// layer pops waypoints as they are reached; from the server's side only the
// current position is known, so every waypoint after the nearest one counts
// as remaining along with the nearest one itself.
func (p Path) Remaining(from mgl64.Vec3) []mgl64.Vec3 {
	if len(p.Waypoints) == 0 {
		return nil
	}
	nearest := 0
	best := world.PlanarDistance(from, p.Waypoints[0])
	for i := 1; i < len(p.Waypoints); i++ {
		if d := world.PlanarDistance(from, p.Waypoints[i]); d < best {
			best = d
			nearest = i
		}
	}
	return p.Waypoints[nearest:]
}

// Crosses reports whether travelling from the given position along the
// remaining waypoints touches any cell in changed.
func (p Path) Crosses(from mgl64.Vec3, mapper world.Mapper, changed func(world.Cell) bool) bool {
	remaining := p.Remaining(from)
	prev := from
	for _, wp := range remaining {
		u0, v0 := mapper.GridUnits(prev)
		u1, v1 := mapper.GridUnits(wp)
		hit := false
		walkSegment(u0, v0, u1, v1, func(c world.Cell) bool {
			if changed(c) {
				hit = true
				return false
			}
			return true
		})
		if hit {
			return true
		}
		prev = wp
	}
	return false
}
