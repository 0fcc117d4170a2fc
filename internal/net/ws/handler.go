package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"

	server "cosmic-nav/server"
	"cosmic-nav/server/internal/telemetry"
)

type HandlerConfig struct {
	Logger telemetry.Logger
	// CheckOrigin overrides the default accept-all origin policy.
	CheckOrigin func(r *nethttp.Request) bool
}

type Handler struct {
	session  *Session
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *nethttp.Request) bool {
			return true
		}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return &Handler{
		session:  NewSession(hub, logger),
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle upgrades the request and binds the connection to the unit named by
// the id query parameter.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	unitID := r.URL.Query().Get("id")
	if unitID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed for %s: %v", unitID, err)
		return
	}

	h.session.Serve(unitID, conn)
}

// ServeHTTP lets the handler be mounted directly.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.Handle(w, r)
}
