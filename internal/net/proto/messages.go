// Package proto defines the websocket wire format shared by the session
// handler and the schema generator.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/sim"
	"cosmic-nav/server/internal/world"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeWelcome       = "welcome"
	typePath          = "path"
	typePathFailed    = "pathFailed"
	typeArrived       = "arrived"
	typeGridChanged   = "gridChanged"
)

// Client message type identifiers.
const (
	TypeMoveTo         = "moveTo"
	TypeSetPath        = "setPath"
	TypeStop           = "stop"
	TypePosition       = "position"
	TypeAddObstacle    = "addObstacle"
	TypeRemoveObstacle = "removeObstacle"
	TypeMoveObstacle   = "moveObstacle"
	TypeSetCorruption  = "setCorruption"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeWelcome     = typeWelcome
	TypePath        = typePath
	TypePathFailed  = typePathFailed
	TypeArrived     = typeArrived
	TypeGridChanged = typeGridChanged
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver        int          `json:"ver,omitempty"`
	Type       string       `json:"type"`
	CommandSeq *uint64      `json:"seq,omitempty"`
	Goal       *mgl64.Vec3  `json:"goal,omitempty"`
	From       *mgl64.Vec3  `json:"from,omitempty"`
	Position   *mgl64.Vec3  `json:"position,omitempty"`
	Waypoints  []mgl64.Vec3 `json:"waypoints,omitempty"`
	Speed      float64      `json:"speed,omitempty"`
	ObstacleID string       `json:"obstacleId,omitempty"`
	Cells      []world.Cell `json:"cells,omitempty"`
	Clearance  *int         `json:"clearance,omitempty"`
	Cell       *world.Cell  `json:"cell,omitempty"`
	Level      float64      `json:"level,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// Seq returns the client sequence number, or zero when absent.
func (m ClientMessage) Seq() uint64 {
	if m.CommandSeq == nil {
		return 0
	}
	return *m.CommandSeq
}

// ClientCommand converts a client message into a simulation command. Origin
// metadata and the unit ID are filled in by intake.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeMoveTo:
		if msg.Goal == nil {
			return sim.Command{}, false
		}
		return sim.Command{
			Type: sim.CommandMoveTo,
			Move: &sim.MoveCommand{Goal: *msg.Goal, Speed: msg.Speed, From: msg.From},
		}, true
	case TypeSetPath:
		if len(msg.Waypoints) == 0 {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:    sim.CommandSetPath,
			SetPath: &sim.SetPathCommand{Waypoints: msg.Waypoints, Speed: msg.Speed},
		}, true
	case TypeStop:
		return sim.Command{Type: sim.CommandStop}, true
	case TypePosition:
		if msg.Position == nil {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:     sim.CommandReportPosition,
			Position: &sim.PositionCommand{Position: *msg.Position},
		}, true
	case TypeAddObstacle, TypeMoveObstacle:
		if msg.ObstacleID == "" || len(msg.Cells) == 0 {
			return sim.Command{}, false
		}
		kind := sim.CommandAddObstacle
		if msg.Type == TypeMoveObstacle {
			kind = sim.CommandMoveObstacle
		}
		return sim.Command{
			Type:     kind,
			Obstacle: &sim.ObstacleCommand{ID: msg.ObstacleID, Cells: msg.Cells, Clearance: msg.Clearance},
		}, true
	case TypeRemoveObstacle:
		if msg.ObstacleID == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:     sim.CommandRemoveObstacle,
			Obstacle: &sim.ObstacleCommand{ID: msg.ObstacleID},
		}, true
	case TypeSetCorruption:
		if msg.Cell == nil {
			return sim.Command{}, false
		}
		return sim.Command{
			Type:       sim.CommandSetCorruption,
			Corruption: &sim.CorruptionCommand{Cell: *msg.Cell, Level: msg.Level},
		}, true
	default:
		return sim.Command{}, false
	}
}

// CommandAck describes an acknowledgement of an accepted command.
type CommandAck struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick,omitempty"`
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typeCommandAck
	return json.Marshal(msg)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
	Tick   uint64 `json:"tick,omitempty"`
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typeCommandReject
	return json.Marshal(msg)
}

// Welcome is the first frame of every session.
type Welcome struct {
	Ver      int          `json:"ver"`
	Type     string       `json:"type"`
	UnitID   string       `json:"unitId"`
	Tick     uint64       `json:"t"`
	TileSize float64      `json:"tileSize"`
	Bounds   world.Bounds `json:"bounds"`
	Layout   string       `json:"layout"`
}

// EncodeWelcome renders the session greeting.
func EncodeWelcome(msg Welcome) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typeWelcome
	return json.Marshal(msg)
}

// PathUpdate carries a freshly installed path for the session's unit.
type PathUpdate struct {
	Ver        int          `json:"ver"`
	Type       string       `json:"type"`
	UnitID     string       `json:"unitId"`
	Tick       uint64       `json:"t"`
	Waypoints  []mgl64.Vec3 `json:"waypoints"`
	Speed      float64      `json:"speed"`
	Trigger    string       `json:"trigger"`
	Generation uint64       `json:"generation,omitempty"`
}

// NewPathUpdate converts an engine update into its wire form.
func NewPathUpdate(tick uint64, update sim.PathUpdate) PathUpdate {
	return PathUpdate{
		UnitID:     update.UnitID,
		Tick:       tick,
		Waypoints:  update.Path.Waypoints,
		Speed:      update.Path.Speed,
		Trigger:    string(update.Trigger),
		Generation: update.Generation,
	}
}

// EncodePathUpdate renders a path message.
func EncodePathUpdate(msg PathUpdate) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typePath
	if msg.Waypoints == nil {
		msg.Waypoints = []mgl64.Vec3{}
	}
	return json.Marshal(msg)
}

// PathFailed tells the client no route exists from the unit's cell.
type PathFailed struct {
	Ver     int        `json:"ver"`
	Type    string     `json:"type"`
	UnitID  string     `json:"unitId"`
	Tick    uint64     `json:"t"`
	Trigger string     `json:"trigger"`
	Start   world.Cell `json:"start"`
	Goal    world.Cell `json:"goal"`
}

// NewPathFailed converts an engine failure into its wire form.
func NewPathFailed(tick uint64, failure sim.PathFailure) PathFailed {
	return PathFailed{
		UnitID:  failure.UnitID,
		Tick:    tick,
		Trigger: string(failure.Trigger),
		Start:   failure.Start,
		Goal:    failure.Goal,
	}
}

// EncodePathFailed renders a failure message.
func EncodePathFailed(msg PathFailed) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typePathFailed
	return json.Marshal(msg)
}

// Arrived tells the client its unit reached the goal.
type Arrived struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	UnitID string `json:"unitId"`
	Tick   uint64 `json:"t"`
}

// EncodeArrived renders an arrival message.
func EncodeArrived(msg Arrived) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typeArrived
	return json.Marshal(msg)
}

// GridChanged lists the cells whose walkability or cost changed this tick.
type GridChanged struct {
	Ver   int          `json:"ver"`
	Type  string       `json:"type"`
	Tick  uint64       `json:"t"`
	Cells []world.Cell `json:"cells"`
}

// EncodeGridChanged renders a grid change broadcast.
func EncodeGridChanged(msg GridChanged) ([]byte, error) {
	msg.Ver = Version
	msg.Type = typeGridChanged
	return json.Marshal(msg)
}
