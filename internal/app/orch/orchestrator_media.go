package orch

import (
	"context"

	"github.com/dkeye/Roomscribe/internal/app/capture"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/rs/zerolog/log"
)

// OnTrack is called when a remote audio track appears on conn's peer.
func (o *Orchestrator) OnTrack(ctx context.Context, conn core.SignalConnection, src capture.PacketSource) bool {
	roomID, uid, ok := o.Registry.RoomOf(conn)
	if !ok {
		log.Info().Str("module", "orch").Msg("OnTrack: connection not joined")
		return false
	}
	o.Captures.Start(ctx, roomID, uid, src)
	return true
}

// OnMediaClosed stops capture for conn's participant without leaving the room.
func (o *Orchestrator) OnMediaClosed(conn core.SignalConnection) {
	if roomID, uid, ok := o.Registry.RoomOf(conn); ok {
		o.Captures.Stop(roomID, uid)
	}
}
