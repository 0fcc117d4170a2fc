package intake

import (
	"time"

	"cosmic-nav/server/internal/net/proto"
	"cosmic-nav/server/internal/sim"
)

// Enqueuer accepts commands for the next tick.
type Enqueuer interface {
	Enqueue(sim.Command) (bool, string)
}

type CommandContext struct {
	Engine Enqueuer
	Tick   func() uint64
	Now    func() time.Time
}

// StageClientCommand converts a client message into a command for unitID and
// stages it. It returns the staged command or the reject reason.
func StageClientCommand(ctx CommandContext, unitID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(msg)
	if !ok {
		return zero, false, sim.CommandRejectInvalid
	}

	// grid commands carry the session's unit too so per-unit throttling
	// covers them
	command.UnitID = unitID
	if reason := command.Validate(); reason != "" {
		return zero, false, reason
	}

	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Engine == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Engine.Enqueue(command); !ok {
		return zero, false, reason
	}

	return command, true, ""
}

// Retryable reports whether a rejected command may succeed if resent.
func Retryable(reason string) bool {
	return reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull
}
