package sim

import (
	"cosmic-nav/server/internal/replan"
)

// Snapshot is a read-only view of the navigation state after a tick.
type Snapshot struct {
	Tick        uint64          `json:"tick"`
	GridVersion uint64          `json:"gridVersion"`
	Obstacles   int             `json:"obstacles"`
	Units       []replan.Status `json:"units"`
	Last        StepResult      `json:"last"`
}

// Snapshot captures the current state under the read lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Tick:        e.tick,
		GridVersion: e.grid.Version(),
		Obstacles:   e.tracker.Len(),
		Units:       e.dispatcher.Status(),
		Last:        e.last,
	}
}
