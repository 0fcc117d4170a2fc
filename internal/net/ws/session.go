package ws

import (
	"github.com/gorilla/websocket"

	server "cosmic-nav/server"
	"cosmic-nav/server/internal/net/intake"
	"cosmic-nav/server/internal/net/proto"
	"cosmic-nav/server/internal/sim"
	"cosmic-nav/server/internal/telemetry"
)

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

// Session runs the read loop for websocket connections bound to units.
type Session struct {
	hub    *server.Hub
	logger telemetry.Logger
}

// NewSession constructs a session runner for the given hub.
func NewSession(hub *server.Hub, logger telemetry.Logger) *Session {
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return &Session{hub: hub, logger: logger}
}

// Serve sends the welcome frame and then stages every client command until
// the connection fails.
func (s *Session) Serve(unitID string, conn *websocket.Conn) {
	if s == nil || s.hub == nil || conn == nil {
		return
	}

	sub, welcome, err := s.hub.Subscribe(unitID, conn)
	if err != nil {
		s.logger.Printf("[ws] failed to build welcome for %s: %v", unitID, err)
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "welcome failed")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}
	session := subscription(sub)

	if err := session.WriteMessage(websocket.TextMessage, welcome); err != nil {
		s.hub.Disconnect(unitID, sub)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.hub.Disconnect(unitID, sub)
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			s.logger.Printf("[ws] discarding malformed message from %s: %v", unitID, err)
			continue
		}
		seq := msg.Seq()

		writeFrame := func(data []byte, err error) bool {
			if err != nil {
				s.logger.Printf("[ws] failed to marshal response for %s: %v", unitID, err)
				return true
			}
			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				s.hub.Disconnect(unitID, sub)
				return false
			}
			return true
		}

		if seq > 0 {
			if last := session.LastCommandSeq(); last > 0 && seq <= last {
				if !writeFrame(proto.EncodeCommandAck(proto.CommandAck{Seq: seq})) {
					return
				}
				continue
			}
		}

		cmd, ok, reason := s.hub.HandleMessage(unitID, msg)
		if !ok {
			if reason == sim.CommandRejectInvalid {
				s.logger.Printf("[ws] invalid %q message from %s", msg.Type, unitID)
			}
			if seq == 0 {
				continue
			}
			reject := proto.CommandReject{Seq: seq, Reason: reason, Retry: intake.Retryable(reason), Tick: s.hub.Tick()}
			if !writeFrame(proto.EncodeCommandReject(reject)) {
				return
			}
			continue
		}
		if seq == 0 {
			continue
		}
		if !writeFrame(proto.EncodeCommandAck(proto.CommandAck{Seq: seq, Tick: cmd.OriginTick})) {
			return
		}
		session.StoreLastCommandSeq(seq)
	}
}
