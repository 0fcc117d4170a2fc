package navigation

import (
	"context"

	"cosmic-nav/server/logging"
)

const (
	// EventPathPlanned is emitted when a unit receives a new path.
	EventPathPlanned logging.EventType = "navigation.path_planned"
	// EventPathFailed is emitted when search finds no route for a unit.
	EventPathFailed logging.EventType = "navigation.path_failed"
	// EventReplanTriggered is emitted when the dispatcher schedules a new search.
	EventReplanTriggered logging.EventType = "navigation.replan_triggered"
	// EventUnitArrived is emitted when a unit reaches its goal and its path is dropped.
	EventUnitArrived logging.EventType = "navigation.unit_arrived"
	// EventObstaclesCommitted is emitted once per tick that changed the grid.
	EventObstaclesCommitted logging.EventType = "navigation.obstacles_committed"
	// EventObstacleAudit is emitted when the obstacle tracker finds residual marks.
	EventObstacleAudit logging.EventType = "navigation.obstacle_audit_failed"
	// EventTickBudgetOverrun is emitted when a tick exceeds its time budget.
	EventTickBudgetOverrun logging.EventType = "navigation.tick_budget_overrun"
)

// PathPlannedPayload summarises an installed path.
type PathPlannedPayload struct {
	Trigger   string  `json:"trigger"`
	Waypoints int     `json:"waypoints"`
	Cells     int     `json:"cells"`
	Speed     float64 `json:"speed"`
	Bypass    bool    `json:"bypass,omitempty"`
}

// PathPlanned publishes a debug event for a successful plan.
func PathPlanned(ctx context.Context, pub logging.Publisher, tick uint64, unit logging.EntityRef, payload PathPlannedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPathPlanned,
		Tick:     tick,
		Actor:    unit,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}

// PathFailedPayload records a search that found no route.
type PathFailedPayload struct {
	Trigger string `json:"trigger"`
	StartX  int    `json:"startX"`
	StartY  int    `json:"startY"`
	GoalX   int    `json:"goalX"`
	GoalY   int    `json:"goalY"`
}

// PathFailed publishes an info event; no path is a normal outcome.
func PathFailed(ctx context.Context, pub logging.Publisher, tick uint64, unit logging.EntityRef, payload PathFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPathFailed,
		Tick:     tick,
		Actor:    unit,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}

// ReplanTriggeredPayload names the reason a unit is being replanned.
type ReplanTriggeredPayload struct {
	Trigger string `json:"trigger"`
}

func ReplanTriggered(ctx context.Context, pub logging.Publisher, tick uint64, unit logging.EntityRef, payload ReplanTriggeredPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReplanTriggered,
		Tick:     tick,
		Actor:    unit,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}

func UnitArrived(ctx context.Context, pub logging.Publisher, tick uint64, unit logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnitArrived,
		Tick:     tick,
		Actor:    unit,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Extra:    extra,
	})
}

// ObstaclesCommittedPayload describes one write phase.
type ObstaclesCommittedPayload struct {
	Mutations    int `json:"mutations"`
	ChangedCells int `json:"changedCells"`
	LiveRecords  int `json:"liveRecords"`
}

func ObstaclesCommitted(ctx context.Context, pub logging.Publisher, tick uint64, payload ObstaclesCommittedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObstaclesCommitted,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}

// ObstacleAuditPayload lists the inconsistencies found.
type ObstacleAuditPayload struct {
	Issues []string `json:"issues"`
}

// ObstacleAuditFailed publishes an error; residual marks are a defect.
func ObstacleAuditFailed(ctx context.Context, pub logging.Publisher, tick uint64, payload ObstacleAuditPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObstacleAudit,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityError,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
	Planned        int     `json:"planned"`
}

// TickBudgetOverrun publishes a warning when a tick exceeds the configured budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	})
}
