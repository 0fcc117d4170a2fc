package telemetry

import (
	"fmt"
	"log"
	"strings"

	"github.com/sirupsen/logrus"

	"cosmic-nav/server/logging"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return LoggerFunc(func(format string, args ...any) {
		if logger == nil {
			return
		}
		logger.Printf(format, args...)
	})
}

// WrapLogrus adapts a logrus logger. A leading "[component]" tag in the
// format string becomes a "component" field.
func WrapLogrus(logger *logrus.Logger) Logger {
	return LoggerFunc(func(format string, args ...any) {
		if logger == nil {
			return
		}
		message := fmt.Sprintf(format, args...)
		entry := logrus.NewEntry(logger)
		if strings.HasPrefix(message, "[") {
			if end := strings.IndexByte(message, ']'); end > 1 {
				entry = entry.WithField("component", message[1:end])
				message = strings.TrimSpace(message[end+1:])
			}
		}
		entry.Info(message)
	})
}

// NewLogrus builds the operational logger from level and format names,
// falling back to info and text.
func NewLogrus(level, format string) *logrus.Logger {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging metrics table into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
