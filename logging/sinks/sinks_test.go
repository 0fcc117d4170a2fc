package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cosmic-nav/server/logging"
	"cosmic-nav/server/logging/navigation"
)

func TestConsoleSinkWritesFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{Format: "text"})
	err := sink.Write(logging.Event{
		Type:     navigation.EventPathFailed,
		Tick:     12,
		Actor:    logging.UnitRef("u7"),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNavigation,
		Payload:  navigation.PathFailedPayload{Trigger: "command", GoalX: 3},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=warning", "tick=12", "actor=\"unit:u7\"", "navigation.path_failed", "goalX"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestConsoleSinkJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{Format: "json"})
	if err := sink.Write(logging.Event{Type: "x", Tick: 3, Extra: map[string]any{"grid": "main"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if decoded["msg"] != "x" || decoded["grid"] != "main" {
		t.Fatalf("unexpected fields %+v", decoded)
	}
}

func TestJSONSinkEncodesEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := sink.Write(logging.Event{Type: "a", Tick: 1, Time: when, Severity: logging.SeverityError}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write(logging.Event{Type: "b", Tick: 2, Time: when}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["severity"] != "error" || first["time"] != "2024-05-06T07:08:09Z" {
		t.Fatalf("unexpected record %+v", first)
	}
}

func TestRecorderCapturesSynchronously(t *testing.T) {
	rec := NewRecorder()
	navigation.ReplanTriggered(context.Background(), rec, 4, logging.UnitRef("u1"), navigation.ReplanTriggeredPayload{Trigger: "stuck"}, nil)
	navigation.UnitArrived(context.Background(), rec, 5, logging.UnitRef("u1"), nil)
	if got := rec.OfType(navigation.EventReplanTriggered); len(got) != 1 || got[0].Tick != 4 {
		t.Fatalf("unexpected recorded events %+v", rec.Events())
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("reset should clear events")
	}
}

func TestRouterDeliversToMemorySink(t *testing.T) {
	memory := NewMemorySink()
	router, err := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: logging.SinkMemory, Sink: memory}})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	navigation.ObstaclesCommitted(context.Background(), router, 9, navigation.ObstaclesCommittedPayload{Mutations: 2}, nil)
	navigation.PathPlanned(context.Background(), router, 9, logging.UnitRef("u1"), navigation.PathPlannedPayload{}, nil)
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(memory.Events()) != 0 {
		t.Fatalf("debug events should be filtered at info level, got %+v", memory.Events())
	}
}
