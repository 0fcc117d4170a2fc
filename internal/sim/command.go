package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/world"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMoveTo         CommandType = "MoveTo"
	CommandSetPath        CommandType = "SetPath"
	CommandStop           CommandType = "Stop"
	CommandRemoveUnit     CommandType = "RemoveUnit"
	CommandReportPosition CommandType = "ReportPosition"
	CommandAddObstacle    CommandType = "AddObstacle"
	CommandRemoveObstacle CommandType = "RemoveObstacle"
	CommandMoveObstacle   CommandType = "MoveObstacle"
	CommandSetCorruption  CommandType = "SetCorruption"
)

// MutatesGrid reports whether the command belongs to the write phase.
func (t CommandType) MutatesGrid() bool {
	switch t {
	case CommandAddObstacle, CommandRemoveObstacle, CommandMoveObstacle, CommandSetCorruption:
		return true
	default:
		return false
	}
}

// MoveCommand asks for a searched path to Goal. From, when set, doubles as a
// position report.
type MoveCommand struct {
	Goal  mgl64.Vec3  `json:"goal"`
	Speed float64     `json:"speed"`
	From  *mgl64.Vec3 `json:"from,omitempty"`
}

// SetPathCommand installs explicit waypoints without searching.
type SetPathCommand struct {
	Waypoints []mgl64.Vec3 `json:"waypoints"`
	Speed     float64      `json:"speed"`
}

// PositionCommand reports where the movement layer placed a unit.
type PositionCommand struct {
	Position mgl64.Vec3 `json:"position"`
}

// ObstacleCommand adds, moves or removes an obstacle record. Clearance nil
// selects the configured default.
type ObstacleCommand struct {
	ID        string       `json:"id"`
	Cells     []world.Cell `json:"cells,omitempty"`
	Clearance *int         `json:"clearance,omitempty"`
}

// CorruptionCommand sets the corruption level of one cell.
type CorruptionCommand struct {
	Cell  world.Cell `json:"cell"`
	Level float64    `json:"level"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64             `json:"originTick"`
	UnitID     string             `json:"unitId,omitempty"`
	Type       CommandType        `json:"type"`
	IssuedAt   time.Time          `json:"issuedAt"`
	Move       *MoveCommand       `json:"move,omitempty"`
	SetPath    *SetPathCommand    `json:"setPath,omitempty"`
	Position   *PositionCommand   `json:"position,omitempty"`
	Obstacle   *ObstacleCommand   `json:"obstacle,omitempty"`
	Corruption *CorruptionCommand `json:"corruption,omitempty"`
}

// Validate reports the reject reason for a malformed command, or "".
func (c Command) Validate() string {
	switch c.Type {
	case CommandMoveTo:
		if c.UnitID == "" || c.Move == nil {
			return CommandRejectInvalid
		}
	case CommandSetPath:
		if c.UnitID == "" || c.SetPath == nil || len(c.SetPath.Waypoints) == 0 {
			return CommandRejectInvalid
		}
	case CommandReportPosition:
		if c.UnitID == "" || c.Position == nil {
			return CommandRejectInvalid
		}
	case CommandStop, CommandRemoveUnit:
		if c.UnitID == "" {
			return CommandRejectInvalid
		}
	case CommandAddObstacle, CommandMoveObstacle:
		if c.Obstacle == nil || c.Obstacle.ID == "" || len(c.Obstacle.Cells) == 0 {
			return CommandRejectInvalid
		}
		if c.Obstacle.Clearance != nil && *c.Obstacle.Clearance < 0 {
			return CommandRejectInvalid
		}
	case CommandRemoveObstacle:
		if c.Obstacle == nil || c.Obstacle.ID == "" {
			return CommandRejectInvalid
		}
	case CommandSetCorruption:
		if c.Corruption == nil {
			return CommandRejectInvalid
		}
	default:
		return CommandRejectInvalid
	}
	return ""
}
