package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	server "cosmic-nav/server"
	"cosmic-nav/server/internal/net/ws"
	"cosmic-nav/server/internal/observability"
	"cosmic-nav/server/internal/telemetry"
)

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Observability observability.Config
	TickRate      int
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string             `json:"status"`
			ServerTime int64              `json:"serverTime"`
			TickRate   int                `json:"tickRate"`
			Hub        server.Diagnostics `json:"hub"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   cfg.TickRate,
			Hub:        hub.Diagnostics(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/grid", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		engine := hub.Engine()
		if r.URL.Query().Get("format") == "layout" {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(engine.GridLayout()))
			return
		}
		writeJSON(w, engine.ExportGrid())
	})

	mux.HandleFunc("/units", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if id := r.URL.Query().Get("id"); id != "" {
			status, ok := hub.UnitStatus(id)
			if !ok {
				httpError(w, "unknown unit", nethttp.StatusNotFound)
				return
			}
			writeJSON(w, status)
			return
		}
		writeJSON(w, hub.Engine().Snapshot().Units)
	})

	mux.Handle("/ws", ws.NewHandler(hub, ws.HandlerConfig{Logger: logger}))

	cfg.Observability.Mount(mux)

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
