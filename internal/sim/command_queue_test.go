package sim

import "testing"

type recordingMetrics struct {
	adds   map[string]uint64
	stores map[string]uint64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{adds: map[string]uint64{}, stores: map[string]uint64{}}
}

func (m *recordingMetrics) Add(key string, delta uint64)   { m.adds[key] += delta }
func (m *recordingMetrics) Store(key string, value uint64) { m.stores[key] = value }

func TestCommandQueueDrainsInArrivalOrder(t *testing.T) {
	queue := newCommandQueue(3, 0, nil)
	for _, id := range []string{"a", "b", "c"} {
		if _, reason, _ := queue.stage(Command{UnitID: id}); reason != "" {
			t.Fatalf("expected %s staged, got %s", id, reason)
		}
	}
	if depth, reason, _ := queue.stage(Command{UnitID: "d"}); reason != CommandRejectQueueFull || depth != 3 {
		t.Fatalf("expected queue_full at depth 3, got %s depth=%d", reason, depth)
	}
	batch := queue.drain()
	if len(batch) != 3 || batch[0].UnitID != "a" || batch[2].UnitID != "c" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if _, reason, _ := queue.stage(Command{UnitID: "d"}); reason != "" {
		t.Fatalf("expected room after drain, got %s", reason)
	}
	if next := queue.drain(); len(next) != 1 || next[0].UnitID != "d" || batch[0].UnitID != "a" {
		t.Fatalf("drained batches must not share storage: %+v %+v", batch, next)
	}
	if queue.drain() != nil {
		t.Fatalf("expected nil drain from an empty queue")
	}
}

func TestCommandQueueAllowanceResetsEachTick(t *testing.T) {
	metrics := newRecordingMetrics()
	queue := newCommandQueue(8, 1, metrics)
	if _, reason, _ := queue.stage(Command{UnitID: "u1"}); reason != "" {
		t.Fatalf("expected first command staged, got %s", reason)
	}
	for want := uint64(1); want <= 2; want++ {
		_, reason, rejects := queue.stage(Command{UnitID: "u1"})
		if reason != CommandRejectQueueLimit || rejects != want {
			t.Fatalf("expected queue_limit with %d rejects, got %s %d", want, reason, rejects)
		}
	}
	for i := 0; i < 3; i++ {
		if _, reason, _ := queue.stage(Command{Type: CommandAddObstacle}); reason != "" {
			t.Fatalf("grid commands without a unit are not throttled, got %s", reason)
		}
	}
	if metrics.adds[commandQueueRejectedMetricKey] != 2 || metrics.stores[commandQueueDepthMetricKey] != 4 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	queue.drain()
	if metrics.stores[commandQueueDepthMetricKey] != 0 {
		t.Fatalf("expected depth reset after drain")
	}
	if _, reason, _ := queue.stage(Command{UnitID: "u1"}); reason != "" {
		t.Fatalf("allowance should reset on drain, got %s", reason)
	}
	if _, _, rejects := queue.stage(Command{UnitID: "u1"}); rejects != 3 {
		t.Fatalf("reject count should accumulate across ticks, got %d", rejects)
	}
}
