package sim

import (
	"sync"

	"cosmic-nav/server/internal/telemetry"
)

const (
	commandQueueDepthMetricKey    = "nav_command_queue_depth"
	commandQueueRejectedMetricKey = "nav_command_queue_rejected_total"
)

// commandQueue holds the commands staged between two ticks. Every drain takes
// the whole batch, so the queue is a bounded slice rather than a ring. Each
// unit may stage at most perUnit commands per tick; grid commands without a
// unit ID are only bounded by capacity.
type commandQueue struct {
	mu       sync.Mutex
	pending  []Command
	capacity int
	perUnit  int
	staged   map[string]int
	rejected map[string]uint64
	metrics  telemetry.Metrics
}

func newCommandQueue(capacity, perUnit int, metrics telemetry.Metrics) *commandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &commandQueue{
		pending:  make([]Command, 0, capacity),
		capacity: capacity,
		perUnit:  perUnit,
		staged:   make(map[string]int),
		rejected: make(map[string]uint64),
		metrics:  metrics,
	}
}

// stage appends cmd unless the unit is over its per-tick allowance or the
// queue is full. It returns the queue depth after staging, or the reject
// reason and how many commands the unit has had rejected so far.
func (q *commandQueue) stage(cmd Command) (depth int, reason string, rejects uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.perUnit > 0 && cmd.UnitID != "" && q.staged[cmd.UnitID] >= q.perUnit:
		reason = CommandRejectQueueLimit
	case len(q.pending) >= q.capacity:
		reason = CommandRejectQueueFull
	}
	if reason != "" {
		if q.metrics != nil {
			q.metrics.Add(commandQueueRejectedMetricKey, 1)
		}
		if cmd.UnitID != "" {
			q.rejected[cmd.UnitID]++
			rejects = q.rejected[cmd.UnitID]
		}
		return len(q.pending), reason, rejects
	}
	if cmd.UnitID != "" {
		q.staged[cmd.UnitID]++
	}
	q.pending = append(q.pending, cmd)
	q.storeDepthLocked()
	return len(q.pending), "", 0
}

// drain hands over the staged batch in arrival order and resets the per-unit
// allowances for the next tick.
func (q *commandQueue) drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = make([]Command, 0, q.capacity)
	clear(q.staged)
	q.storeDepthLocked()
	return batch
}

func (q *commandQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *commandQueue) storeDepthLocked() {
	if q.metrics != nil {
		q.metrics.Store(commandQueueDepthMetricKey, uint64(len(q.pending)))
	}
}
