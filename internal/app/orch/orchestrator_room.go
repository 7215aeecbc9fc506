package orch

import (
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Join(roomID domain.RoomID, uid domain.UserID, name string, conn core.SignalConnection) (core.RosterSnapshot, error) {
	if prevRoom, prevUser, ok := o.Registry.RoomOf(conn); ok && (prevRoom != roomID || prevUser != uid) {
		o.Captures.Stop(prevRoom, prevUser)
	}
	return o.Registry.Join(roomID, uid, name, conn)
}

// Leave removes uid from roomID. Chunks it already submitted still complete.
func (o *Orchestrator) Leave(roomID domain.RoomID, uid domain.UserID) core.RosterSnapshot {
	o.Captures.Stop(roomID, uid)
	return o.Registry.Leave(roomID, uid)
}

// OnDisconnect runs when a transport closes for any reason.
func (o *Orchestrator) OnDisconnect(conn core.SignalConnection) {
	roomID, uid, ok := o.Registry.RoomOf(conn)
	if !ok {
		return
	}
	o.Captures.Stop(roomID, uid)
	o.Registry.HandleDisconnect(conn)
}

func (o *Orchestrator) SubmitAudio(conn core.SignalConnection, payload []byte, filename string, denoise bool) (domain.RoomID, uint64, error) {
	roomID, uid, ok := o.Registry.RoomOf(conn)
	if !ok {
		return "", 0, domain.ErrNotJoined
	}
	seq, err := o.Pipeline.Submit(roomID, uid, payload, filename, denoise)
	return roomID, seq, err
}

// EvictRoom closes every connection in roomID and discards the room.
func (o *Orchestrator) EvictRoom(roomID domain.RoomID) bool {
	if _, ok := o.Rooms.GetRoom(roomID); !ok {
		return false
	}
	conns := o.Rooms.StopRoom(roomID)
	for _, c := range conns {
		c.Close()
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Int("closed", len(conns)).Msg("room evicted")
	return true
}
