package sim

import (
	"context"
	"time"

	"cosmic-nav/server/internal/telemetry"
	"cosmic-nav/server/logging"
	"cosmic-nav/server/logging/navigation"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-unit
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the staging queue is saturated.
	CommandRejectQueueFull = "queue_full"
)

const (
	tickDurationMetricKey = "nav_tick_duration_millis"
	tickOverrunMetricKey  = "nav_tick_budget_overrun_total"
	tickCounterMetricKey  = "nav_ticks_total"
)

// LoopConfig tunes the command queue and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerUnitLimit    int
	WarningStep     int
}

// LoopTickContext describes the tick about to run.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult is handed to AfterStep once a tick completes.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Commands     []Command
	Step         StepResult
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// LoopHooks lets the owner observe and sequence the loop.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
	// NextTick supplies the tick number. The loop counts on its own when nil.
	NextTick func() uint64
}

// Loop coordinates command ingestion and the fixed-timestep simulation runner.
type Loop struct {
	core    EngineCore
	queue   *commandQueue
	hooks   LoopHooks
	config  LoopConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher

	tick          uint64
	overrunStreak uint64
}

// NewLoop wraps the provided engine core with a staging queue and loop.
func NewLoop(core EngineCore, cfg LoopConfig, hooks LoopHooks) *Loop {
	if core == nil {
		return nil
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 15
	}
	deps := core.Deps().withDefaults()
	return &Loop{
		core:    core,
		queue:   newCommandQueue(cfg.CommandCapacity, cfg.PerUnitLimit, deps.Metrics),
		hooks:   hooks,
		config:  cfg,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		pub:     deps.Publisher,
	}
}

// Deps returns the injected dependencies for the underlying engine.
func (l *Loop) Deps() Deps {
	if l == nil {
		return Deps{}
	}
	return l.core.Deps()
}

// Snapshot delegates to the underlying engine.
func (l *Loop) Snapshot() Snapshot {
	if l == nil {
		return Snapshot{}
	}
	return l.core.Snapshot()
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.queue.depth()
}

// Capacity reports how many commands may be staged per tick.
func (l *Loop) Capacity() int {
	if l == nil {
		return 0
	}
	return l.queue.capacity
}

// Enqueue stages a command, enforcing per-unit throttling and capacity limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	depth, reason, rejects := l.queue.stage(cmd)
	if reason != "" {
		l.reportDrop(reason, cmd, rejects)
		return false, reason
	}
	if step := l.config.WarningStep; step > 0 && depth >= step && depth%step == 0 {
		l.warnQueue(depth)
	}
	return true, ""
}

// Advance executes a single simulation step using the staged commands.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	commands := l.drainCommands()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	_ = l.core.Apply(commands)
	step := l.core.Step(ctx.Tick, ctx.Delta)
	return LoopStepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
		Commands: commands,
		Step:     step,
	}
}

// Run drives the fixed-timestep loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if l == nil {
		return
	}
	tickRate := l.config.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	clock := l.core.Deps().withDefaults().Clock
	last := clock.Now()
	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}
	budgetDuration := time.Second / time.Duration(tickRate)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			tick := l.nextTick()
			start := clock.Now()
			result := l.Advance(LoopTickContext{Tick: tick, Now: now, Delta: dt})
			result.Duration = clock.Now().Sub(start)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			l.checkBudget(ctx, result)

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) nextTick() uint64 {
	if l.hooks.NextTick != nil {
		return l.hooks.NextTick()
	}
	l.tick++
	return l.tick
}

func (l *Loop) checkBudget(ctx context.Context, result LoopStepResult) {
	if l.metrics != nil {
		l.metrics.Add(tickCounterMetricKey, 1)
		l.metrics.Store(tickDurationMetricKey, uint64(result.Duration.Milliseconds()))
	}
	if result.Budget <= 0 || result.Duration <= result.Budget {
		l.overrunStreak = 0
		return
	}
	l.overrunStreak++
	if l.metrics != nil {
		l.metrics.Add(tickOverrunMetricKey, 1)
	}
	navigation.TickBudgetOverrun(ctx, l.pub, result.Tick, navigation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         l.overrunStreak,
		Planned:        result.Step.Planned,
	}, nil)
}

func (l *Loop) drainCommands() []Command {
	return l.queue.drain()
}

func (l *Loop) warnQueue(length int) {
	if l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(length)
	}
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	// log on powers of two to keep a flooding client from flooding the log
	if count > 0 && count&(count-1) == 0 {
		l.logger.Printf(
			"[backpressure] dropping command unit=%s type=%s reason=%s count=%d limit=%d",
			cmd.UnitID,
			cmd.Type,
			reason,
			count,
			l.config.PerUnitLimit,
		)
	}
}
