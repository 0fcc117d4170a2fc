// Package server connects the navigation simulation to websocket sessions.
package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cosmic-nav/server/internal/net/intake"
	"cosmic-nav/server/internal/net/proto"
	"cosmic-nav/server/internal/replan"
	"cosmic-nav/server/internal/sim"
	"cosmic-nav/server/internal/telemetry"
	"cosmic-nav/server/internal/world"
	"cosmic-nav/server/logging"
)

const (
	defaultWriteWait = 10 * time.Second

	broadcastBytesMetricKey  = "nav_broadcast_bytes_total"
	broadcastFramesMetricKey = "nav_broadcast_frames_total"
	commandDropsMetricKey    = "nav_command_drops_total"
)

// HubConfig wires the hub to its simulation and observability stack.
type HubConfig struct {
	Loop   sim.LoopConfig
	Engine sim.EngineConfig

	Logger    telemetry.Logger
	Metrics   *logging.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	// RouterStats, when set, is reported by Diagnostics.
	RouterStats func() logging.RouterStats

	// RemoveOnDisconnect forgets a unit once its session closes.
	RemoveOnDisconnect bool
	WriteWait          time.Duration
}

// DefaultHubConfig mirrors the defaults of internal/config.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Loop: sim.LoopConfig{
			TickRate:        15,
			CatchupMaxTicks: 3,
			CommandCapacity: 1024,
			PerUnitLimit:    8,
			WarningStep:     256,
		},
		Engine: sim.EngineConfig{
			Mapper:           world.NewMapper(world.DefaultTileSize),
			DefaultClearance: 1,
		},
		RemoveOnDisconnect: true,
		WriteWait:          defaultWriteWait,
	}
}

// Hub owns the simulation loop and every websocket subscriber.
type Hub struct {
	engine             *sim.Engine
	loop               *sim.Loop
	logger             telemetry.Logger
	metrics            *logging.Metrics
	routerFn           func() logging.RouterStats
	removeOnDisconnect bool
	writeWait          time.Duration

	tick atomic.Uint64

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

type subscriber struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	writeWait time.Duration
	lastSeq   atomic.Uint64
}

// WriteMessage serialises writes to the connection.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeWait > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) LastCommandSeq() uint64 {
	return s.lastSeq.Load()
}

func (s *subscriber) StoreLastCommandSeq(seq uint64) {
	s.lastSeq.Store(seq)
}

// NewHub builds the engine and loop described by cfg.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	var metrics telemetry.Metrics
	if cfg.Metrics != nil {
		metrics = telemetry.WrapMetrics(cfg.Metrics)
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	hub := &Hub{
		logger:             logger,
		metrics:            cfg.Metrics,
		routerFn:           cfg.RouterStats,
		removeOnDisconnect: cfg.RemoveOnDisconnect,
		writeWait:          writeWait,
		subscribers:        make(map[string]*subscriber),
	}
	hub.engine = sim.NewEngine(cfg.Engine, sim.Deps{
		Logger:    logger,
		Metrics:   metrics,
		Clock:     cfg.Clock,
		Publisher: cfg.Publisher,
	})
	hub.loop = sim.NewLoop(hub.engine, cfg.Loop, sim.LoopHooks{
		AfterStep:      hub.afterStep,
		OnCommandDrop:  hub.onCommandDrop,
		OnQueueWarning: hub.onQueueWarning,
		NextTick:       hub.nextTick,
	})
	return hub
}

// Engine exposes the simulation engine for read-only HTTP views.
func (h *Hub) Engine() *sim.Engine {
	return h.engine
}

// Tick returns the last completed tick.
func (h *Hub) Tick() uint64 {
	return h.tick.Load()
}

func (h *Hub) nextTick() uint64 {
	return h.tick.Load() + 1
}

// RunSimulation drives the fixed-timestep loop until ctx is cancelled.
func (h *Hub) RunSimulation(ctx context.Context) {
	h.loop.Run(ctx)
}

// Advance runs one tick immediately. Used by tools and tests that need
// deterministic stepping.
func (h *Hub) Advance(delta float64) sim.LoopStepResult {
	tick := h.nextTick()
	result := h.loop.Advance(sim.LoopTickContext{Tick: tick, Now: time.Now(), Delta: delta})
	h.afterStep(result)
	return result
}

// Subscribe binds a websocket connection to unitID, closing any previous
// connection for the same unit. It returns the welcome frame to send first.
func (h *Hub) Subscribe(unitID string, conn *websocket.Conn) (*subscriber, []byte, error) {
	welcome, err := h.Welcome(unitID)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscriber{conn: conn, writeWait: h.writeWait}
	h.mu.Lock()
	existing := h.subscribers[unitID]
	h.subscribers[unitID] = sub
	h.mu.Unlock()
	if existing != nil {
		existing.conn.Close()
	}
	return sub, welcome, nil
}

// Welcome renders the greeting for a session bound to unitID.
func (h *Hub) Welcome(unitID string) ([]byte, error) {
	dense := h.engine.ExportGrid()
	return proto.EncodeWelcome(proto.Welcome{
		UnitID:   unitID,
		Tick:     h.Tick(),
		TileSize: h.engine.Mapper().TileSize,
		Bounds:   dense.Bounds,
		Layout:   h.engine.GridLayout(),
	})
}

// Disconnect drops the subscriber if it is still the one bound to unitID.
// Returns true when the binding was removed.
func (h *Hub) Disconnect(unitID string, sub *subscriber) bool {
	h.mu.Lock()
	current, ok := h.subscribers[unitID]
	if !ok || (sub != nil && current != sub) {
		h.mu.Unlock()
		return false
	}
	delete(h.subscribers, unitID)
	h.mu.Unlock()

	current.conn.Close()
	if h.removeOnDisconnect && h.engine.HasUnit(unitID) {
		if ok, reason := h.loop.Enqueue(sim.Command{UnitID: unitID, Type: sim.CommandRemoveUnit, IssuedAt: time.Now()}); !ok {
			h.logger.Printf("[hub] failed to queue removal of %s: %s", unitID, reason)
		}
	}
	return true
}

// HandleMessage stages a client command for the unit bound to the session.
func (h *Hub) HandleMessage(unitID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	return intake.StageClientCommand(intake.CommandContext{
		Engine: h.loop,
		Tick:   h.Tick,
		Now:    time.Now,
	}, unitID, msg)
}

// Sessions lists the bound unit IDs.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (h *Hub) afterStep(result sim.LoopStepResult) {
	h.tick.Store(result.Tick)
	step := result.Step
	for _, rejected := range step.Rejected {
		h.logger.Printf("[hub] command rejected unit=%s type=%s reason=%s", rejected.Command.UnitID, rejected.Command.Type, rejected.Reason)
	}
	h.broadcast(step)
}

func (h *Hub) broadcast(step sim.StepResult) {
	direct := make(map[string][][]byte)
	queue := func(unitID string, data []byte, err error) {
		if err != nil {
			h.logger.Printf("[hub] failed to encode message for %s: %v", unitID, err)
			return
		}
		direct[unitID] = append(direct[unitID], data)
	}
	for _, update := range step.Paths {
		data, err := proto.EncodePathUpdate(proto.NewPathUpdate(step.Tick, update))
		queue(update.UnitID, data, err)
	}
	for _, failure := range step.Failures {
		data, err := proto.EncodePathFailed(proto.NewPathFailed(step.Tick, failure))
		queue(failure.UnitID, data, err)
	}
	for _, id := range step.Arrived {
		data, err := proto.EncodeArrived(proto.Arrived{UnitID: id, Tick: step.Tick})
		queue(id, data, err)
	}

	var shared []byte
	if len(step.Changed) > 0 {
		data, err := proto.EncodeGridChanged(proto.GridChanged{Tick: step.Tick, Cells: step.Changed})
		if err != nil {
			h.logger.Printf("[hub] failed to encode grid change: %v", err)
		} else {
			shared = data
		}
	}
	if len(direct) == 0 && shared == nil {
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		frames := direct[id]
		if shared != nil {
			frames = append(frames, shared)
		}
		for _, data := range frames {
			if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Printf("[hub] failed to send update to %s: %v", id, err)
				h.Disconnect(id, sub)
				break
			}
			h.recordBroadcast(len(data))
		}
	}
}

func (h *Hub) recordBroadcast(bytes int) {
	if h.metrics == nil {
		return
	}
	h.metrics.TelemetryAdd(broadcastBytesMetricKey, uint64(bytes))
	h.metrics.TelemetryAdd(broadcastFramesMetricKey, 1)
}

func (h *Hub) onCommandDrop(reason string, cmd sim.Command) {
	if h.metrics != nil {
		h.metrics.TelemetryAdd(commandDropsMetricKey+"."+reason, 1)
	}
}

func (h *Hub) onQueueWarning(length int) {
	h.logger.Printf("[backpressure] command queue length=%d capacity=%d", length, h.loop.Capacity())
}

// Diagnostics is the payload of the diagnostics endpoint.
type Diagnostics struct {
	Tick        uint64               `json:"tick"`
	Pending     int                  `json:"pendingCommands"`
	Capacity    int                  `json:"commandCapacity"`
	Sessions    []string             `json:"sessions"`
	Units       int                  `json:"units"`
	Obstacles   int                  `json:"obstacles"`
	GridVersion uint64               `json:"gridVersion"`
	LastStep    sim.StepResult       `json:"lastStep"`
	Router      *logging.RouterStats `json:"router,omitempty"`
	Telemetry   map[string]uint64    `json:"telemetry,omitempty"`
}

// Diagnostics summarises the hub for operators.
func (h *Hub) Diagnostics() Diagnostics {
	snapshot := h.engine.Snapshot()
	diag := Diagnostics{
		Tick:        snapshot.Tick,
		Pending:     h.loop.Pending(),
		Capacity:    h.loop.Capacity(),
		Sessions:    h.Sessions(),
		Units:       len(snapshot.Units),
		Obstacles:   snapshot.Obstacles,
		GridVersion: snapshot.GridVersion,
		LastStep:    snapshot.Last,
	}
	if h.routerFn != nil {
		stats := h.routerFn()
		diag.Router = &stats
	}
	if h.metrics != nil {
		diag.Telemetry = h.metrics.Snapshot()
	}
	return diag
}

// UnitStatus returns the snapshot entry for one unit.
func (h *Hub) UnitStatus(unitID string) (replan.Status, bool) {
	for _, status := range h.engine.Snapshot().Units {
		if status.ID == unitID {
			return status, true
		}
	}
	return replan.Status{}, false
}
