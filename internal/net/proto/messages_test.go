package proto

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"cosmic-nav/server/internal/pathfind"
	"cosmic-nav/server/internal/replan"
	"cosmic-nav/server/internal/sim"
	"cosmic-nav/server/internal/world"
)

func TestClientCommand(t *testing.T) {
	t.Run("move command", func(t *testing.T) {
		goal := mgl64.Vec3{12.5, 0, -4}
		cmd, ok := ClientCommand(ClientMessage{Type: TypeMoveTo, Goal: &goal, Speed: 3})
		if !ok {
			t.Fatalf("expected move command to be recognized")
		}
		if cmd.Type != sim.CommandMoveTo || cmd.Move == nil {
			t.Fatalf("expected move payload, got %+v", cmd)
		}
		if cmd.Move.Goal != goal || cmd.Move.Speed != 3 || cmd.Move.From != nil {
			t.Fatalf("unexpected move payload: %+v", cmd.Move)
		}
	})

	t.Run("move command without goal", func(t *testing.T) {
		if _, ok := ClientCommand(ClientMessage{Type: TypeMoveTo}); ok {
			t.Fatalf("expected move without goal to be rejected")
		}
	})

	t.Run("set path command", func(t *testing.T) {
		cmd, ok := ClientCommand(ClientMessage{Type: TypeSetPath, Waypoints: []mgl64.Vec3{{1, 0, 1}}})
		if !ok || cmd.Type != sim.CommandSetPath || len(cmd.SetPath.Waypoints) != 1 {
			t.Fatalf("unexpected set path command %+v", cmd)
		}
		if _, ok := ClientCommand(ClientMessage{Type: TypeSetPath}); ok {
			t.Fatalf("expected empty waypoint list to be rejected")
		}
	})

	t.Run("obstacle commands", func(t *testing.T) {
		clearance := 0
		cmd, ok := ClientCommand(ClientMessage{
			Type:       TypeMoveObstacle,
			ObstacleID: "crate",
			Cells:      []world.Cell{{X: 3, Y: 4}},
			Clearance:  &clearance,
		})
		if !ok || cmd.Type != sim.CommandMoveObstacle || cmd.Obstacle.ID != "crate" || *cmd.Obstacle.Clearance != 0 {
			t.Fatalf("unexpected move obstacle command %+v", cmd)
		}
		cmd, ok = ClientCommand(ClientMessage{Type: TypeRemoveObstacle, ObstacleID: "crate"})
		if !ok || cmd.Type != sim.CommandRemoveObstacle {
			t.Fatalf("unexpected remove obstacle command %+v", cmd)
		}
		if _, ok := ClientCommand(ClientMessage{Type: TypeAddObstacle, ObstacleID: "crate"}); ok {
			t.Fatalf("expected add without cells to be rejected")
		}
	})

	t.Run("corruption command", func(t *testing.T) {
		cell := world.Cell{X: -1, Y: 2}
		cmd, ok := ClientCommand(ClientMessage{Type: TypeSetCorruption, Cell: &cell, Level: 0.95})
		if !ok || cmd.Corruption.Cell != cell || cmd.Corruption.Level != 0.95 {
			t.Fatalf("unexpected corruption command %+v", cmd)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, ok := ClientCommand(ClientMessage{Type: "dance"}); ok {
			t.Fatalf("expected unknown type to be rejected")
		}
	})
}

func TestDecodeClientMessageVersion(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"stop","seq":4}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Ver != Version || msg.Seq() != 4 {
		t.Fatalf("expected defaulted version and seq 4, got %+v", msg)
	}
	if _, err := DecodeClientMessage([]byte(`{"ver":99,"type":"stop"}`)); err == nil {
		t.Fatalf("expected unsupported version error")
	}
	if _, err := DecodeClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("expected malformed payload error")
	}
}

func TestEncodePathUpdate(t *testing.T) {
	update := sim.PathUpdate{
		UnitID:     "u1",
		Path:       pathfind.NewPath([]mgl64.Vec3{{10, 0, 0}, {20, 0, 10}}, 4),
		Trigger:    replan.TriggerObstacle,
		Generation: 3,
	}
	data, err := EncodePathUpdate(NewPathUpdate(9, update))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != TypePath || decoded["ver"].(float64) != Version || decoded["t"].(float64) != 9 {
		t.Fatalf("unexpected header %v", decoded)
	}
	if decoded["trigger"] != "obstacle" || decoded["unitId"] != "u1" {
		t.Fatalf("unexpected body %v", decoded)
	}
	waypoints := decoded["waypoints"].([]any)
	if len(waypoints) != 2 {
		t.Fatalf("expected two waypoints, got %v", waypoints)
	}
}

func TestEncodeRejectAndAck(t *testing.T) {
	data, err := EncodeCommandReject(CommandReject{Seq: 7, Reason: sim.CommandRejectQueueLimit, Retry: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var reject CommandReject
	if err := json.Unmarshal(data, &reject); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reject.Type != typeCommandReject || reject.Seq != 7 || !reject.Retry {
		t.Fatalf("unexpected reject %+v", reject)
	}

	data, err = EncodeCommandAck(CommandAck{Seq: 8})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ack CommandAck
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Type != typeCommandAck || ack.Seq != 8 || ack.Tick != 0 {
		t.Fatalf("unexpected ack %+v", ack)
	}
}
