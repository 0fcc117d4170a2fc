package telemetry

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"cosmic-nav/server/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestWrapLogrusExtractsComponent(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	WrapLogrus(base).Printf("[backpressure] dropping unit=%s", "u1")
	out := buf.String()
	if !strings.Contains(out, "component=backpressure") {
		t.Fatalf("expected component field, got %q", out)
	}
	if !strings.Contains(out, `msg="dropping unit=u1"`) {
		t.Fatalf("expected tag stripped from message, got %q", out)
	}

	WrapLogrus(nil).Printf("ignored")
}

func TestNewLogrusFallsBack(t *testing.T) {
	logger := NewLogrus("nonsense", "json")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter, got %T", logger.Formatter)
	}
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("test_counter", 2)
	adapter.Store("test_counter", 5)
	adapter.Add("test_counter", 3)

	snapshot := metrics.Snapshot()
	if got := snapshot["test_counter"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}
