package sim

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"cosmic-nav/server/internal/obstacles"
	"cosmic-nav/server/internal/pathfind"
	"cosmic-nav/server/internal/replan"
	"cosmic-nav/server/internal/world"
	"cosmic-nav/server/logging"
	"cosmic-nav/server/logging/navigation"
)

const (
	CommandRejectUnknownUnit = "unknown_unit"
	CommandRejectInvalid     = "invalid_command"
)

const (
	planRequestsMetricKey = "nav_plan_requests_total"
	planFailuresMetricKey = "nav_plan_failures_total"
	planDiscardsMetricKey = "nav_plan_discards_total"
	gridChangesMetricKey  = "nav_grid_changed_cells_total"
)

// EngineCore is the surface the loop drives.
type EngineCore interface {
	Deps() Deps
	Apply([]Command) error
	Step(tick uint64, delta float64) StepResult
	Snapshot() Snapshot
}

// EngineConfig wires the navigation components together.
type EngineConfig struct {
	Grid     *world.Grid
	Mapper   world.Mapper
	Pathfind pathfind.Options
	Replan   replan.Config
	// DefaultClearance applies to obstacle commands without an explicit one.
	DefaultClearance int
	// Workers bounds concurrent searches per tick. Zero uses GOMAXPROCS.
	Workers int
	// AuditEveryTicks runs the obstacle audit on this cadence. Zero disables it.
	AuditEveryTicks int
}

// PathUpdate is a path handed to the movement layer this tick.
type PathUpdate struct {
	UnitID     string         `json:"unitId"`
	Path       pathfind.Path  `json:"path"`
	Trigger    replan.Trigger `json:"trigger"`
	Generation uint64         `json:"generation"`
}

// PathFailure records a unit for which no route exists.
type PathFailure struct {
	UnitID  string         `json:"unitId"`
	Trigger replan.Trigger `json:"trigger"`
	Start   world.Cell     `json:"start"`
	Goal    world.Cell     `json:"goal"`
}

// CommandRejection is a command the engine refused while applying it.
type CommandRejection struct {
	Command Command `json:"command"`
	Reason  string  `json:"reason"`
}

// StepResult summarises one tick.
type StepResult struct {
	Tick      uint64             `json:"tick"`
	Paths     []PathUpdate       `json:"paths,omitempty"`
	Failures  []PathFailure      `json:"failures,omitempty"`
	Arrived   []string           `json:"arrived,omitempty"`
	Removed   []string           `json:"removed,omitempty"`
	Changed   []world.Cell       `json:"changed,omitempty"`
	Rejected  []CommandRejection `json:"rejected,omitempty"`
	Mutations int                `json:"mutations"`
	Planned   int                `json:"planned"`
	Discarded int                `json:"discarded"`
}

type planOutcome struct {
	route pathfind.Route
	ok    bool
}

// Engine owns the grid and every navigation component. All mutation happens
// inside Step; readers use Snapshot and ExportGrid.
type Engine struct {
	deps    Deps
	cfg     EngineConfig
	planner pathfind.Planner

	mu         sync.RWMutex
	grid       *world.Grid
	tracker    *obstacles.Tracker
	dispatcher *replan.Dispatcher
	staged     []Command
	tick       uint64

	terrain        *world.Grid
	terrainVersion uint64
	last           StepResult
}

// NewEngine constructs an engine. A nil grid gets the default 17x17 map.
func NewEngine(cfg EngineConfig, deps Deps) *Engine {
	if cfg.Grid == nil {
		cfg.Grid = world.NewGrid(world.CenteredBounds(17, 17))
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	cfg.Replan.Mapper = cfg.Mapper
	return &Engine{
		deps:       deps.withDefaults(),
		cfg:        cfg,
		planner:    pathfind.Planner{Mapper: cfg.Mapper, Options: cfg.Pathfind},
		grid:       cfg.Grid,
		tracker:    obstacles.NewTracker(cfg.Grid),
		dispatcher: replan.NewDispatcher(cfg.Replan),
	}
}

// Deps returns the injected dependencies.
func (e *Engine) Deps() Deps {
	return e.deps
}

// Mapper returns the coordinate mapper in use.
func (e *Engine) Mapper() world.Mapper {
	return e.cfg.Mapper
}

// Apply stages commands for the next Step.
func (e *Engine) Apply(cmds []Command) error {
	if len(cmds) == 0 {
		return nil
	}
	e.mu.Lock()
	e.staged = append(e.staged, cmds...)
	e.mu.Unlock()
	return nil
}

// Step runs one tick: the write phase commits every staged grid mutation,
// the unit phase applies movement commands and evaluates triggers, the plan
// phase searches in parallel over an immutable snapshot, and the apply phase
// installs results that were not superseded.
func (e *Engine) Step(tick uint64, delta float64) StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick = tick
	commands := e.staged
	e.staged = nil
	result := StepResult{Tick: tick}

	changes := e.commitGrid(commands, &result)
	e.applyUnitCommands(commands, &result)

	var obstacleHits []string
	if changes.Len() > 0 {
		obstacleHits = e.dispatcher.GridChanged(changes.Has)
	}
	arrived, stuck := e.dispatcher.Tick(delta)
	result.Arrived = arrived

	ctx := context.Background()
	pub := e.deps.Publisher
	for _, id := range obstacleHits {
		navigation.ReplanTriggered(ctx, pub, tick, logging.UnitRef(id), navigation.ReplanTriggeredPayload{Trigger: string(replan.TriggerObstacle)}, nil)
	}
	for _, id := range stuck {
		navigation.ReplanTriggered(ctx, pub, tick, logging.UnitRef(id), navigation.ReplanTriggeredPayload{Trigger: string(replan.TriggerStuck)}, nil)
	}
	for _, id := range arrived {
		navigation.UnitArrived(ctx, pub, tick, logging.UnitRef(id), nil)
	}

	e.plan(ctx, &result)
	e.audit(ctx)

	e.last = result
	return result
}

func (e *Engine) commitGrid(commands []Command, result *StepResult) obstacles.ChangeSet {
	for _, cmd := range commands {
		if !cmd.Type.MutatesGrid() {
			continue
		}
		if reason := cmd.Validate(); reason != "" {
			result.Rejected = append(result.Rejected, CommandRejection{Command: cmd, Reason: reason})
			continue
		}
		switch cmd.Type {
		case CommandAddObstacle:
			e.tracker.Apply(e.record(cmd.Obstacle))
		case CommandMoveObstacle:
			e.tracker.Move(e.record(cmd.Obstacle))
		case CommandRemoveObstacle:
			e.tracker.Retract(cmd.Obstacle.ID)
		case CommandSetCorruption:
			e.tracker.SetCorruption(cmd.Corruption.Cell, cmd.Corruption.Level)
		}
		result.Mutations++
	}
	changes := e.tracker.TakeChanges()
	if result.Mutations == 0 {
		return changes
	}
	result.Changed = changes.Cells()
	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(gridChangesMetricKey, uint64(changes.Len()))
	}
	navigation.ObstaclesCommitted(context.Background(), e.deps.Publisher, e.tick, navigation.ObstaclesCommittedPayload{
		Mutations:    result.Mutations,
		ChangedCells: changes.Len(),
		LiveRecords:  e.tracker.Len(),
	}, nil)
	return changes
}

func (e *Engine) record(cmd *ObstacleCommand) obstacles.Record {
	clearance := e.cfg.DefaultClearance
	if cmd.Clearance != nil {
		clearance = *cmd.Clearance
	}
	return obstacles.Record{ID: cmd.ID, Cells: cmd.Cells, Clearance: clearance}
}

func (e *Engine) applyUnitCommands(commands []Command, result *StepResult) {
	for _, cmd := range commands {
		if cmd.Type.MutatesGrid() {
			continue
		}
		if reason := cmd.Validate(); reason != "" {
			result.Rejected = append(result.Rejected, CommandRejection{Command: cmd, Reason: reason})
			continue
		}
		switch cmd.Type {
		case CommandReportPosition:
			e.dispatcher.ReportPosition(cmd.UnitID, cmd.Position.Position)
		case CommandMoveTo:
			if cmd.Move.From != nil {
				e.dispatcher.ReportPosition(cmd.UnitID, *cmd.Move.From)
			}
			e.dispatcher.Command(cmd.UnitID, cmd.Move.Goal, cmd.Move.Speed)
		case CommandSetPath:
			e.installBypass(cmd, result)
		case CommandStop:
			if !e.dispatcher.Stop(cmd.UnitID) {
				result.Rejected = append(result.Rejected, CommandRejection{Command: cmd, Reason: CommandRejectUnknownUnit})
			}
		case CommandRemoveUnit:
			if !e.dispatcher.Remove(cmd.UnitID) {
				result.Rejected = append(result.Rejected, CommandRejection{Command: cmd, Reason: CommandRejectUnknownUnit})
				continue
			}
			result.Removed = append(result.Removed, cmd.UnitID)
			result.Paths = dropUnit(result.Paths, cmd.UnitID)
		}
	}
}

func (e *Engine) installBypass(cmd Command, result *StepResult) {
	path, ok := e.dispatcher.SetPath(cmd.UnitID, cmd.SetPath.Waypoints, cmd.SetPath.Speed)
	if !ok {
		return
	}
	result.Paths = append(dropUnit(result.Paths, cmd.UnitID), PathUpdate{UnitID: cmd.UnitID, Path: path, Trigger: replan.TriggerCommand})
	navigation.PathPlanned(context.Background(), e.deps.Publisher, e.tick, logging.UnitRef(cmd.UnitID), navigation.PathPlannedPayload{
		Trigger:   string(replan.TriggerCommand),
		Waypoints: len(path.Waypoints),
		Speed:     path.Speed,
		Bypass:    true,
	}, nil)
}

func dropUnit(updates []PathUpdate, id string) []PathUpdate {
	out := updates[:0]
	for _, update := range updates {
		if update.UnitID != id {
			out = append(out, update)
		}
	}
	return out
}

// snapshotTerrain returns an immutable copy of the grid, reusing the previous
// copy while the grid version is unchanged.
func (e *Engine) snapshotTerrain() *world.Grid {
	version := e.grid.Version()
	if e.terrain == nil || e.terrainVersion != version {
		e.terrain = e.grid.Clone()
		e.terrainVersion = version
	}
	return e.terrain
}

func (e *Engine) plan(ctx context.Context, result *StepResult) {
	requests := e.dispatcher.Requests()
	if len(requests) == 0 {
		return
	}
	terrain := e.snapshotTerrain()
	outcomes := make([]planOutcome, len(requests))

	var group errgroup.Group
	group.SetLimit(e.cfg.Workers)
	for i, req := range requests {
		group.Go(func() error {
			route, ok := e.planner.Plan(req.From, req.Goal, terrain)
			outcomes[i] = planOutcome{route: route, ok: ok}
			return nil
		})
	}
	_ = group.Wait()

	result.Planned = len(requests)
	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(planRequestsMetricKey, uint64(len(requests)))
	}
	pub := e.deps.Publisher
	for i, req := range requests {
		outcome := outcomes[i]
		unit := logging.UnitRef(req.UnitID)
		if !outcome.ok {
			if !e.dispatcher.Resolve(req, pathfind.Path{}, false) {
				result.Discarded++
				continue
			}
			result.Failures = append(result.Failures, PathFailure{
				UnitID:  req.UnitID,
				Trigger: req.Trigger,
				Start:   outcome.route.Start,
				Goal:    outcome.route.Goal,
			})
			if e.deps.Metrics != nil {
				e.deps.Metrics.Add(planFailuresMetricKey, 1)
			}
			navigation.PathFailed(ctx, pub, e.tick, unit, navigation.PathFailedPayload{
				Trigger: string(req.Trigger),
				StartX:  outcome.route.Start.X,
				StartY:  outcome.route.Start.Y,
				GoalX:   outcome.route.Goal.X,
				GoalY:   outcome.route.Goal.Y,
			}, nil)
			continue
		}
		path := outcome.route.Path(req.Speed)
		if !e.dispatcher.Resolve(req, path, true) {
			result.Discarded++
			continue
		}
		if path.Empty() {
			result.Arrived = append(result.Arrived, req.UnitID)
			navigation.UnitArrived(ctx, pub, e.tick, unit, nil)
			continue
		}
		result.Paths = append(dropUnit(result.Paths, req.UnitID), PathUpdate{
			UnitID:     req.UnitID,
			Path:       path,
			Trigger:    req.Trigger,
			Generation: req.Generation,
		})
		navigation.PathPlanned(ctx, pub, e.tick, unit, navigation.PathPlannedPayload{
			Trigger:   string(req.Trigger),
			Waypoints: len(path.Waypoints),
			Cells:     len(outcome.route.Cells),
			Speed:     path.Speed,
		}, nil)
	}
	if result.Discarded > 0 && e.deps.Metrics != nil {
		e.deps.Metrics.Add(planDiscardsMetricKey, uint64(result.Discarded))
	}
}

func (e *Engine) audit(ctx context.Context) {
	every := uint64(e.cfg.AuditEveryTicks)
	if every == 0 || e.tick%every != 0 {
		return
	}
	issues := e.tracker.Audit()
	if len(issues) == 0 {
		return
	}
	e.deps.Logger.Printf("[obstacles] audit found %d issue(s) at tick %d", len(issues), e.tick)
	navigation.ObstacleAuditFailed(ctx, e.deps.Publisher, e.tick, navigation.ObstacleAuditPayload{Issues: issues}, nil)
}

// ExportGrid returns the dense form of the live grid.
func (e *Engine) ExportGrid() world.Dense {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid.Export()
}

// GridLayout renders the live grid as layout glyphs.
func (e *Engine) GridLayout() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return world.FormatLayout(e.grid)
}

// HasUnit reports whether the dispatcher knows the unit.
func (e *Engine) HasUnit(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dispatcher.Has(id)
}

// Path returns the unit's current path.
func (e *Engine) Path(id string) (pathfind.Path, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dispatcher.Path(id)
}

// Audit runs the obstacle audit immediately.
func (e *Engine) Audit() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Audit()
}
