package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"cosmic-nav/server/internal/net/proto"
	"cosmic-nav/server/logging"
)

// bindSubscriber opens a real websocket pair and binds the server side to
// unitID on hub.
func bindSubscriber(t *testing.T, hub *Hub, unitID string) (*subscriber, *websocket.Conn) {
	t.Helper()
	bound := make(chan *subscriber, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub, _, err := hub.Subscribe(unitID, conn)
		if err != nil {
			conn.Close()
			return
		}
		bound <- sub
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case sub := <-bound:
		return sub, client
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber was never bound")
	}
	return nil, nil
}

func stage(t *testing.T, hub *Hub, unitID string, msg proto.ClientMessage) {
	t.Helper()
	if _, ok, reason := hub.HandleMessage(unitID, msg); !ok {
		t.Fatalf("expected %s to be staged, got %s", msg.Type, reason)
	}
}

func TestAdvanceCountsTicksAndPlans(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.Metrics = &logging.Metrics{}
	hub := NewHub(cfg)

	goal := mgl64.Vec3{40, 0, 0}
	from := mgl64.Vec3{}
	stage(t, hub, "u1", proto.ClientMessage{Type: proto.TypeMoveTo, Goal: &goal, From: &from})

	first := hub.Advance(1.0 / 15)
	if first.Tick != 1 || hub.Tick() != 1 {
		t.Fatalf("expected tick 1, got result=%d hub=%d", first.Tick, hub.Tick())
	}
	if len(first.Step.Paths) != 1 {
		t.Fatalf("expected one planned path, got %+v", first.Step)
	}
	if second := hub.Advance(1.0 / 15); second.Tick != 2 {
		t.Fatalf("expected tick 2, got %d", second.Tick)
	}

	status, ok := hub.UnitStatus("u1")
	if !ok || status.Path.Empty() {
		t.Fatalf("expected u1 to hold a path, got %+v", status)
	}
	diag := hub.Diagnostics()
	if diag.Tick != 2 || diag.Units != 1 || diag.Pending != 0 {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}
}

func TestBroadcastSendsPathToOwner(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.Metrics = &logging.Metrics{}
	hub := NewHub(cfg)
	_, client := bindSubscriber(t, hub, "u1")

	goal := mgl64.Vec3{20, 0, 20}
	from := mgl64.Vec3{}
	stage(t, hub, "u1", proto.ClientMessage{Type: proto.TypeMoveTo, Goal: &goal, From: &from})
	hub.Advance(1.0 / 15)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read path frame: %v", err)
	}
	if !strings.Contains(string(payload), `"type":"`+proto.TypePath+`"`) {
		t.Fatalf("expected path frame, got %s", payload)
	}
	if frames := cfg.Metrics.Snapshot()[broadcastFramesMetricKey]; frames != 1 {
		t.Fatalf("expected one broadcast frame, got %d", frames)
	}
}

func TestDisconnectRemovesUnit(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	sub, _ := bindSubscriber(t, hub, "u1")

	pos := mgl64.Vec3{}
	stage(t, hub, "u1", proto.ClientMessage{Type: proto.TypePosition, Position: &pos})
	hub.Advance(1.0 / 15)
	if _, ok := hub.UnitStatus("u1"); !ok {
		t.Fatalf("expected u1 to be tracked")
	}

	if !hub.Disconnect("u1", sub) {
		t.Fatalf("expected disconnect to remove the binding")
	}
	if hub.Disconnect("u1", sub) {
		t.Fatalf("second disconnect must be a no-op")
	}
	result := hub.Advance(1.0 / 15)
	if len(result.Step.Removed) != 1 || result.Step.Removed[0] != "u1" {
		t.Fatalf("expected u1 removed, got %+v", result.Step.Removed)
	}
	if _, ok := hub.UnitStatus("u1"); ok {
		t.Fatalf("expected u1 to be forgotten")
	}
}

func TestDisconnectKeepsUnitWhenConfigured(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.RemoveOnDisconnect = false
	hub := NewHub(cfg)
	sub, _ := bindSubscriber(t, hub, "u1")

	pos := mgl64.Vec3{}
	stage(t, hub, "u1", proto.ClientMessage{Type: proto.TypePosition, Position: &pos})
	hub.Advance(1.0 / 15)
	hub.Disconnect("u1", sub)
	hub.Advance(1.0 / 15)
	if _, ok := hub.UnitStatus("u1"); !ok {
		t.Fatalf("expected u1 to survive the disconnect")
	}
	if sessions := hub.Sessions(); len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %v", sessions)
	}
}
